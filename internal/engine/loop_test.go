package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/errs"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/store"
)

type fakePlatform struct {
	mu         sync.Mutex
	bets       []string
	claims     []string
	raids      []string
	placeErr   error
	failOnce   bool
	refresher  *fakeRefresher
}

func (f *fakePlatform) PlaceBet(ctx context.Context, eventID, outcomeID string, points int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce {
		f.failOnce = false
		return errs.New(errs.KindAuth, "PlaceBet", errors.New("token expired"))
	}
	if f.placeErr != nil {
		return f.placeErr
	}
	f.bets = append(f.bets, outcomeID)
	return nil
}

func (f *fakePlatform) ClaimCommunityPoints(ctx context.Context, channelID, claimID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, claimID)
	return nil
}

func (f *fakePlatform) JoinRaid(ctx context.Context, raidID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raids = append(f.raids, raidID)
	return nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh() error {
	f.calls++
	return f.err
}

type fakeAnalytics struct {
	mu     sync.Mutex
	points []store.RecordPointDelta
	preds  []store.RecordPredictionRow
}

func (f *fakeAnalytics) RecordPointDelta(r store.RecordPointDelta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, r)
}

func (f *fakeAnalytics) RecordPrediction(r store.RecordPredictionRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preds = append(f.preds, r)
}

type fakeNudger struct{ calls int }

func (f *fakeNudger) Nudge() { f.calls++ }

func testConfig() store.StreamerConfig {
	return store.StreamerConfig{Kind: store.ConfigSpecific, Specific: store.Specific{
		Prediction: store.PredictionConfig{
			Strategy: store.Strategy{
				Default: store.DefaultPrediction{
					MinPercentage: 0,
					MaxPercentage: 100,
					Points:        store.PointsSpec{Percent: 10, MaxValue: 50000},
				},
			},
		},
	}}
}

func newTestLoop(st *store.Store, pf Platform, refresher Refresher, analytics AnalyticsSink, nudger Nudger) *Loop {
	return New(st, pf, refresher, predictor.New(1), analytics, nudger, nil, nil, false)
}

func TestEvaluatePredictionPlacesBetAndRecordsIt(t *testing.T) {
	s := store.New()
	s.AddStreamer("123", "Foo", testConfig())
	s.SetPoints("123", 100000)
	now := time.Now()

	ev := store.Event{
		EventID: "pred1",
		Status:  store.EventActive,
		Outcomes: []store.Outcome{
			{ID: "A", TotalPoints: 9000, TotalUsers: 10},
			{ID: "B", TotalPoints: 1000, TotalUsers: 2},
		},
	}
	s.ApplyPubSub(store.NewPredictionUpdated("123", ev, now), now)

	pf := &fakePlatform{}
	l := newTestLoop(s, pf, nil, nil, nil)
	l.evaluatePrediction(context.Background(), store.EvaluatePrediction{ChannelID: "123", EventID: "pred1"})

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if len(pf.bets) != 1 {
		t.Fatalf("expected 1 bet placed, got %d: %v", len(pf.bets), pf.bets)
	}
	if !s.HasBet("123", "pred1") {
		t.Fatalf("expected bet to be recorded in the store")
	}
}

func TestEvaluatePredictionSimulateDoesNotCallPlatform(t *testing.T) {
	s := store.New()
	s.AddStreamer("123", "Foo", testConfig())
	s.SetPoints("123", 100000)
	now := time.Now()

	ev := store.Event{
		EventID:  "pred1",
		Status:   store.EventActive,
		Outcomes: []store.Outcome{{ID: "A", TotalPoints: 9000}, {ID: "B", TotalPoints: 1000}},
	}
	s.ApplyPubSub(store.NewPredictionUpdated("123", ev, now), now)

	pf := &fakePlatform{}
	l := New(s, pf, nil, predictor.New(1), nil, nil, nil, nil, true)
	l.evaluatePrediction(context.Background(), store.EvaluatePrediction{ChannelID: "123", EventID: "pred1"})

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if len(pf.bets) != 0 {
		t.Fatalf("expected no platform call under simulate, got %v", pf.bets)
	}
	if s.HasBet("123", "pred1") {
		t.Fatalf("expected no bet recorded under simulate")
	}
}

func TestCallWithAuthRetryRefreshesOnceThenRetries(t *testing.T) {
	s := store.New()
	pf := &fakePlatform{failOnce: true}
	refresher := &fakeRefresher{}
	l := newTestLoop(s, pf, refresher, nil, nil)

	err := l.callWithAuthRetry(context.Background(), "PlaceBet", func(ctx context.Context) error {
		return pf.PlaceBet(ctx, "e1", "A", 100)
	})
	if err != nil {
		t.Fatalf("expected success after refresh retry, got %v", err)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", refresher.calls)
	}
}

func TestCallWithAuthRetryEscalatesWhenRefreshFails(t *testing.T) {
	s := store.New()
	pf := &fakePlatform{}
	refresher := &fakeRefresher{err: errors.New("refresh rejected")}
	l := newTestLoop(s, pf, refresher, nil, nil)

	callErr := errs.New(errs.KindAuth, "PlaceBet", errors.New("token expired"))
	err := l.callWithAuthRetry(context.Background(), "PlaceBet", func(ctx context.Context) error {
		return callErr
	})
	if err == nil {
		t.Fatalf("expected an error when refresh fails")
	}
	if refresher.calls != 1 {
		t.Fatalf("expected exactly 1 refresh attempt, got %d", refresher.calls)
	}
}

func TestRunEffectStreamStatusChangedNudgesScheduler(t *testing.T) {
	s := store.New()
	nudger := &fakeNudger{}
	l := newTestLoop(s, &fakePlatform{}, nil, nil, nudger)

	l.runEffect(context.Background(), store.StreamStatusChanged{ChannelID: "123", Live: true})
	if nudger.calls != 1 {
		t.Fatalf("expected 1 Nudge call, got %d", nudger.calls)
	}
}

func TestRunEffectRoutesAnalyticsRows(t *testing.T) {
	s := store.New()
	analytics := &fakeAnalytics{}
	l := newTestLoop(s, &fakePlatform{}, nil, analytics, nil)

	l.runEffect(context.Background(), store.RecordPointDelta{ChannelID: "123", Value: 50, Reason: store.ReasonWatching})
	l.runEffect(context.Background(), store.RecordPredictionRow{ChannelID: "123", Event: store.Event{EventID: "e1"}})

	analytics.mu.Lock()
	defer analytics.mu.Unlock()
	if len(analytics.points) != 1 || len(analytics.preds) != 1 {
		t.Fatalf("expected 1 point row and 1 prediction row, got %d/%d", len(analytics.points), len(analytics.preds))
	}
}

func TestHandleClaimBonusCallsPlatform(t *testing.T) {
	s := store.New()
	pf := &fakePlatform{}
	l := newTestLoop(s, pf, nil, nil, nil)

	l.runEffect(context.Background(), store.ClaimBonusRequested{ChannelID: "123", ClaimID: "claim1"})

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if len(pf.claims) != 1 || pf.claims[0] != "claim1" {
		t.Fatalf("expected claim1 to be claimed, got %v", pf.claims)
	}
}

func TestHandleJoinRaidCallsPlatform(t *testing.T) {
	s := store.New()
	pf := &fakePlatform{}
	l := newTestLoop(s, pf, nil, nil, nil)

	l.runEffect(context.Background(), store.JoinRaidRequested{ChannelID: "123", RaidID: "raid1"})

	pf.mu.Lock()
	defer pf.mu.Unlock()
	if len(pf.raids) != 1 || pf.raids[0] != "raid1" {
		t.Fatalf("expected raid1 to be joined, got %v", pf.raids)
	}
}

func TestRunStopsWhenEventsChannelCloses(t *testing.T) {
	s := store.New()
	l := newTestLoop(s, &fakePlatform{}, nil, nil, nil)

	events := make(chan store.PubSubEvent)
	close(events)

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return when events channel closes")
	}
}
