package predictor

import (
	"math/rand"
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

func baseEvent(now time.Time, createdOffset time.Duration, windowSeconds float64, outcomes ...store.Outcome) *store.Event {
	return &store.Event{
		EventID:                 "evt1",
		Status:                  store.EventActive,
		CreatedAt:               now.Add(-createdOffset),
		PredictionWindowSeconds: windowSeconds,
		Outcomes:                outcomes,
	}
}

func TestDecideUnderdogBetUnderDefaultRule(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Strategy: store.Strategy{
			Default: store.DefaultPrediction{
				MinPercentage: 10,
				MaxPercentage: 45,
				Points:        store.PointsSpec{Percent: 10, MaxValue: 50000},
			},
		},
	}

	// Pool is 10000; A's points-probability is 6000/10000 = 0.6, B's is
	// 4000/10000 = 0.4. The underdog (lowest points-probability, spec.md
	// §4.5 step 2) is B, not the outcome with fewer backers.
	d := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Bet || d.OutcomeID != "B" || d.Points != 10000 {
		t.Fatalf("expected Bet(B, 10000), got %+v", d)
	}
}

func TestDecideDetailedLEOverrideFires(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Strategy: store.Strategy{
			Default: store.DefaultPrediction{
				MinPercentage: 10,
				MaxPercentage: 45,
				Points:        store.PointsSpec{Percent: 10, MaxValue: 50000},
			},
			Detailed: []store.DetailedOdds{
				{Threshold: 45, Operator: store.OperatorLE, AttemptRate: 100, Points: store.PointsSpec{Percent: 5, MaxValue: 1000}},
			},
		},
	}

	d := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Bet || d.OutcomeID != "B" || d.Points != 1000 {
		t.Fatalf("expected Bet(B, 1000), got %+v", d)
	}
}

func TestDecideDetailedAttemptRateZeroAbstains(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Strategy: store.Strategy{
			Detailed: []store.DetailedOdds{
				{Threshold: 45, Operator: store.OperatorLE, AttemptRate: 0, Points: store.PointsSpec{Percent: 5, MaxValue: 1000}},
			},
		},
	}

	d := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Abstain {
		t.Fatalf("expected Abstain, got %+v", d)
	}
}

func TestDecideFilterDelayNotYetMetWaits(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Filters: []store.Filter{{Kind: store.FilterDelaySeconds, Value: 120}},
	}

	d := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Wait {
		t.Fatalf("expected Wait, got %+v", d)
	}
}

func TestDecidePoolZeroWaits(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 0, TotalUsers: 0},
		store.Outcome{ID: "B", TotalPoints: 0, TotalUsers: 0},
	)
	cfg := store.PredictionConfig{}

	d := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Wait {
		t.Fatalf("expected Wait, got %+v", d)
	}
}

func TestDecideBalanceZeroAbstains(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Strategy: store.Strategy{
			Default: store.DefaultPrediction{
				MinPercentage: 10,
				MaxPercentage: 45,
				Points:        store.PointsSpec{Percent: 10, MaxValue: 50000},
			},
		},
	}

	d := Decide(event, 0, cfg, now, rand.New(rand.NewSource(1)))
	if d.Kind != Abstain {
		t.Fatalf("expected Abstain on zero balance, got %+v", d)
	}
}

func TestDecideIsDeterministicForFixedSeed(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 80*time.Second, 120,
		store.Outcome{ID: "A", TotalPoints: 6000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 4000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Strategy: store.Strategy{
			Detailed: []store.DetailedOdds{
				{Threshold: 45, Operator: store.OperatorLE, AttemptRate: 50, Points: store.PointsSpec{Percent: 5, MaxValue: 1000}},
			},
		},
	}

	d1 := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(42)))
	d2 := Decide(event, 100000, cfg, now, rand.New(rand.NewSource(42)))
	if d1 != d2 {
		t.Fatalf("expected identical decisions for identical seed, got %+v vs %+v", d1, d2)
	}
}

func TestDecideTiesBrokenByOutcomeOrder(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 0, 120,
		store.Outcome{ID: "A", TotalPoints: 5000, TotalUsers: 10},
		store.Outcome{ID: "B", TotalPoints: 5000, TotalUsers: 10},
	)
	idx, ok := event.Underdog()
	if !ok || idx != 0 {
		t.Fatalf("expected tie broken toward first outcome, got idx=%d ok=%v", idx, ok)
	}
}

func TestDecideManualSizesCallerChosenOutcomeIgnoringFilters(t *testing.T) {
	now := time.Now()
	// The favorite, not the underdog: Decide would never pick this one.
	event := baseEvent(now, 0, 120,
		store.Outcome{ID: "A", TotalPoints: 8000, TotalUsers: 40},
		store.Outcome{ID: "B", TotalPoints: 2000, TotalUsers: 60},
	)
	cfg := store.PredictionConfig{
		Filters: []store.Filter{{Kind: store.FilterTotalUsers, Value: 1_000_000}}, // would fail Decide's gate
		Strategy: store.Strategy{
			Default: store.DefaultPrediction{
				MinPercentage: 0,
				MaxPercentage: 100,
				Points:        store.PointsSpec{Percent: 10, MaxValue: 5000},
			},
		},
	}

	d, ok := DecideManual(event, "A", 10000, cfg, rand.New(rand.NewSource(1)))
	if !ok {
		t.Fatalf("expected outcome A to resolve")
	}
	if d.Kind != Bet || d.OutcomeID != "A" || d.Points != 1000 {
		t.Fatalf("expected Bet(A, 1000), got %+v", d)
	}
}

func TestDecideManualUnknownOutcomeReportsFalse(t *testing.T) {
	now := time.Now()
	event := baseEvent(now, 0, 120, store.Outcome{ID: "A", TotalPoints: 100, TotalUsers: 1})
	_, ok := DecideManual(event, "nope", 1000, store.PredictionConfig{}, rand.New(rand.NewSource(1)))
	if ok {
		t.Fatalf("expected unknown outcome id to report false")
	}
}
