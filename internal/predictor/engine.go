// Package predictor is the Prediction Engine (C5, spec.md §4.5): a pure
// decision function over a single open event. It performs no I/O and holds
// no state beyond its RNG, so it is trivial to test with a fixed seed.
package predictor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

// Kind is one of the three terminal shapes a decision can take.
type Kind string

const (
	Abstain Kind = "Abstain"
	Wait    Kind = "Wait"
	Bet     Kind = "Bet"
)

// Decision is the engine's verdict for one (event, balance, cfg, now) input.
type Decision struct {
	Kind      Kind
	OutcomeID string
	Points    int
}

func abstain() Decision { return Decision{Kind: Abstain} }
func wait() Decision    { return Decision{Kind: Wait} }
func bet(outcomeID string, points int) Decision {
	return Decision{Kind: Bet, OutcomeID: outcomeID, Points: points}
}

// Engine wraps a seeded RNG behind a mutex so multiple streamer goroutines
// can share one deterministic-from-a-seed sequence (spec.md §4.5
// "Determinism... seeded at component construction").
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Decide evaluates one open event against a streamer's resolved prediction
// config (spec.md §4.5 steps 1-5).
func (e *Engine) Decide(event *store.Event, balance int, cfg store.PredictionConfig, now time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Decide(event, balance, cfg, now, e.rng)
}

// Decide is the pure core, exported so tests can inject a fixed-seed
// *rand.Rand directly (spec.md §4.5 "tests inject a fixed seed").
func Decide(event *store.Event, balance int, cfg store.PredictionConfig, now time.Time, rng *rand.Rand) Decision {
	for _, f := range cfg.Filters {
		if !filterPasses(f, event, now) {
			return wait()
		}
	}

	if event.Pool() == 0 {
		return wait()
	}

	candidate, ok := event.Underdog()
	if !ok {
		return wait()
	}
	prob, ok := event.Probability(candidate)
	if !ok {
		return wait()
	}
	probPct := prob * 100
	outcomeID := event.Outcomes[candidate].ID

	for _, d := range cfg.Strategy.Detailed {
		if !thresholdMatches(d, probPct) {
			continue
		}
		if rng.Float64() < d.AttemptRate/100 {
			return sizeBet(outcomeID, balance, d.Points)
		}
		return abstain()
	}

	def := cfg.Strategy.Default
	if probPct >= def.MinPercentage && probPct <= def.MaxPercentage {
		return sizeBet(outcomeID, balance, def.Points)
	}

	return abstain()
}

// DecideManual sizes a bet for a caller-chosen outcome instead of the
// computed underdog, and skips the filter gate entirely: overrides and the
// default rule still apply (control plane `POST /api/predictions/bet/{streamer}`
// with points omitted, spec.md §6). Reports false if outcomeID does not name
// an outcome on the event.
func (e *Engine) DecideManual(event *store.Event, outcomeID string, balance int, cfg store.PredictionConfig) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return DecideManual(event, outcomeID, balance, cfg, e.rng)
}

// DecideManual is the pure core, exported so tests can inject a fixed-seed
// *rand.Rand directly.
func DecideManual(event *store.Event, outcomeID string, balance int, cfg store.PredictionConfig, rng *rand.Rand) (Decision, bool) {
	idx := -1
	for i, o := range event.Outcomes {
		if o.ID == outcomeID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Decision{}, false
	}

	prob, ok := event.Probability(idx)
	if !ok {
		return abstain(), true
	}
	probPct := prob * 100

	for _, d := range cfg.Strategy.Detailed {
		if !thresholdMatches(d, probPct) {
			continue
		}
		if rng.Float64() < d.AttemptRate/100 {
			return sizeBet(outcomeID, balance, d.Points), true
		}
		return abstain(), true
	}

	def := cfg.Strategy.Default
	if probPct >= def.MinPercentage && probPct <= def.MaxPercentage {
		return sizeBet(outcomeID, balance, def.Points), true
	}
	return abstain(), true
}

func thresholdMatches(d store.DetailedOdds, probPct float64) bool {
	switch d.Operator {
	case store.OperatorLE:
		return probPct <= d.Threshold
	case store.OperatorGE:
		return probPct >= d.Threshold
	default:
		return false
	}
}

func sizeBet(outcomeID string, balance int, spec store.PointsSpec) Decision {
	if balance <= 0 {
		return abstain()
	}

	points := int(math.Floor(float64(balance) * spec.Percent / 100))
	if points > spec.MaxValue {
		points = spec.MaxValue
	}
	if points > balance {
		points = balance
	}
	if points < 1 {
		points = 1
	}

	return bet(outcomeID, points)
}

func filterPasses(f store.Filter, event *store.Event, now time.Time) bool {
	switch f.Kind {
	case store.FilterTotalUsers:
		total := 0
		for _, o := range event.Outcomes {
			total += o.TotalUsers
		}
		return float64(total) >= f.Value
	case store.FilterDelaySeconds:
		return event.Elapsed(now) >= f.Value
	case store.FilterDelayPercentage:
		return event.Elapsed(now) >= event.PredictionWindowSeconds*f.Value/100
	default:
		return true
	}
}
