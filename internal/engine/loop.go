// Package engine is the Event Loop (C6, spec.md §4.6): the single consumer
// that drains decoded events off the PubSub Multiplexer, applies them to the
// State Store, and carries out whatever Effect the store hands back. It is
// the only place in the process that performs I/O in direct response to a
// decoded event; the store itself never suspends (spec.md §4.3, §5).
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/twitch-miner/predictor/internal/errs"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/store"
)

// Platform is the subset of the Platform Gateway the loop calls directly.
// Narrowed to an interface so tests run against a fake instead of a real
// *platform.Client (spec.md §4.1, §4.6).
type Platform interface {
	ClaimCommunityPoints(ctx context.Context, channelID, claimID string) error
	PlaceBet(ctx context.Context, eventID, outcomeID string, points int) error
	JoinRaid(ctx context.Context, raidID string) error
}

// Refresher is the narrow slice of the Platform Gateway's auth dependency
// the loop needs for the one-retry-then-escalate Auth policy (spec.md §7).
type Refresher interface {
	Refresh() error
}

// AnalyticsSink is the subset of the Analytics Writer (C7) the loop enqueues
// rows onto. Sends never block the loop for long: the writer itself owns
// the backpressure policy (spec.md §4.7).
type AnalyticsSink interface {
	RecordPointDelta(store.RecordPointDelta)
	RecordPrediction(store.RecordPredictionRow)
}

// Nudger is the scheduler recompute hook (spec.md §4.6 step 4).
type Nudger interface {
	Nudge()
}

// Notifier is the optional Discord notification sink (spec.md's control
// plane expansion). A nil Notifier disables all notification calls. Its
// methods return nothing, so a failed notification never fails the loop
// (spec.md §7 "background tasks recover locally and log"); they run
// synchronously on the loop goroutine.
type Notifier interface {
	BetPlaced(channelName, outcomeTitle string, points int)
	ClaimMade(channelName string)
	StreamStatusChanged(channelName string, live bool)
}

// Loop wires the store, the decision engine, and the gateway together. One
// Loop per process; it is not safe to run Run concurrently from two
// goroutines.
type Loop struct {
	store     *store.Store
	platform  Platform
	refresher Refresher
	predictor *predictor.Engine
	analytics AnalyticsSink
	scheduler Nudger
	notifier  Notifier
	names     func(channelID string) string // ChannelID -> ChannelName, for notifications
	simulate  bool
}

// New builds a Loop. notifier may be nil. names resolves a channel_id to its
// channel_name for Notifier calls; it is expected to be a cheap lookup
// against the Store (spec.md §4.3 "channel_name" is display-only).
func New(st *store.Store, pf Platform, refresher Refresher, pred *predictor.Engine, analytics AnalyticsSink, scheduler Nudger, notifier Notifier, names func(string) string, simulate bool) *Loop {
	return &Loop{
		store:     st,
		platform:  pf,
		refresher: refresher,
		predictor: pred,
		analytics: analytics,
		scheduler: scheduler,
		notifier:  notifier,
		names:     names,
		simulate:  simulate,
	}
}

// Run drains events until the channel closes or ctx is canceled. On
// cancellation it keeps draining already-buffered events for up to 5s
// before returning, so effects in flight when shutdown begins are not lost
// (spec.md §5 "graceful shutdown... drains the decoded-event channel for up
// to five seconds").
func (l *Loop) Run(ctx context.Context, events <-chan store.PubSubEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handle(ctx, ev)
		case <-ctx.Done():
			l.drain(events)
			return
		}
	}
}

func (l *Loop) drain(events <-chan store.PubSubEvent) {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handle(context.Background(), ev)
		case <-deadline:
			return
		}
	}
}

func (l *Loop) handle(ctx context.Context, ev store.PubSubEvent) {
	effects := l.store.ApplyPubSub(ev, time.Now())
	for _, eff := range effects {
		l.runEffect(ctx, eff)
	}
}

func (l *Loop) runEffect(ctx context.Context, eff store.Effect) {
	switch e := eff.(type) {
	case store.EvaluatePrediction:
		l.evaluatePrediction(ctx, e)

	case store.ClaimBonusRequested:
		l.claimBonus(ctx, e)

	case store.RecordPointDelta:
		if l.analytics != nil {
			l.analytics.RecordPointDelta(e)
		}

	case store.RecordPredictionRow:
		if l.analytics != nil {
			l.analytics.RecordPrediction(e)
		}

	case store.StreamStatusChanged:
		if l.scheduler != nil {
			l.scheduler.Nudge()
		}
		l.notifyStreamStatus(e)

	case store.JoinRaidRequested:
		l.joinRaid(ctx, e)
	}
}

// evaluatePrediction runs the decision engine (C5) against the named open
// event and, on a Bet verdict, places it (spec.md §4.6 step 2, §4.5).
func (l *Loop) evaluatePrediction(ctx context.Context, e store.EvaluatePrediction) {
	snap := l.store.Snapshot()
	st, ok := snap.Streamers[e.ChannelID]
	if !ok {
		return
	}
	event, ok := st.Events[e.EventID]
	if !ok || event.Status != store.EventActive {
		return
	}
	cfg := st.ResolvedConfig(snap.Presets).Prediction

	decision := l.predictor.Decide(event, st.Points, cfg, time.Now())
	if decision.Kind != predictor.Bet {
		return
	}

	if l.simulate {
		slog.Info("simulate: would place bet", "channel", st.ChannelName, "event", e.EventID, "outcome", decision.OutcomeID, "points", decision.Points)
		return
	}

	err := l.callWithAuthRetry(ctx, "PlaceBet", func(ctx context.Context) error {
		return l.platform.PlaceBet(ctx, e.EventID, decision.OutcomeID, decision.Points)
	})
	if err != nil {
		slog.Warn("place_bet failed", "channel", st.ChannelName, "event", e.EventID, "error", err)
		return
	}

	if err := l.store.RecordBet(e.ChannelID, store.PlacedBet{
		EventID:   e.EventID,
		OutcomeID: decision.OutcomeID,
		Points:    decision.Points,
		PlacedAt:  time.Now(),
	}); err != nil {
		slog.Warn("failed to record placed bet", "channel", st.ChannelName, "event", e.EventID, "error", err)
	}

	if l.notifier != nil {
		title := decision.OutcomeID
		for _, o := range event.Outcomes {
			if o.ID == decision.OutcomeID {
				title = o.Title
				break
			}
		}
		l.notifier.BetPlaced(st.ChannelName, title, decision.Points)
	}
}

// claimBonus redeems an available community-points bonus claim (spec.md
// §4.6 step 5).
func (l *Loop) claimBonus(ctx context.Context, e store.ClaimBonusRequested) {
	if l.simulate {
		slog.Info("simulate: would claim community points", "channel", e.ChannelID, "claim", e.ClaimID)
		return
	}

	err := l.callWithAuthRetry(ctx, "ClaimCommunityPoints", func(ctx context.Context) error {
		return l.platform.ClaimCommunityPoints(ctx, e.ChannelID, e.ClaimID)
	})
	if err != nil {
		slog.Warn("claim_community_points failed", "channel", e.ChannelID, "error", err)
		return
	}
	if l.notifier != nil {
		l.notifier.ClaimMade(l.channelName(e.ChannelID))
	}
}

// joinRaid follows an outgoing raid (spec.md §4.6 step 6).
func (l *Loop) joinRaid(ctx context.Context, e store.JoinRaidRequested) {
	if l.simulate {
		slog.Info("simulate: would join raid", "channel", e.ChannelID, "raid", e.RaidID)
		return
	}

	err := l.callWithAuthRetry(ctx, "JoinRaid", func(ctx context.Context) error {
		return l.platform.JoinRaid(ctx, e.RaidID)
	})
	if err != nil {
		slog.Warn("join_raid failed", "channel", e.ChannelID, "raid", e.RaidID, "error", err)
	}
}

func (l *Loop) notifyStreamStatus(e store.StreamStatusChanged) {
	if l.notifier == nil {
		return
	}
	l.notifier.StreamStatusChanged(l.channelName(e.ChannelID), e.Live)
}

func (l *Loop) channelName(channelID string) string {
	if l.names == nil {
		return channelID
	}
	return l.names(channelID)
}

// callWithAuthRetry runs fn once, and on a KindAuth failure refreshes the
// credential and retries fn exactly once before giving up (spec.md §7
// "Auth: refresh token once, then escalate").
func (l *Loop) callWithAuthRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if !errs.OfKind(err, errs.KindAuth) || l.refresher == nil {
		return err
	}

	slog.Debug("auth failure, refreshing and retrying", "op", op)
	if refreshErr := l.refresher.Refresh(); refreshErr != nil {
		return errs.New(errs.KindAuth, op, refreshErr)
	}
	return fn(ctx)
}
