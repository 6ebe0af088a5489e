package pubsub

import (
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

func newTestMultiplexer(capacity int) *Multiplexer {
	m := &Multiplexer{
		authToken:   func() string { return "" },
		out:         make(chan store.PubSubEvent, capacity),
		predPending: make(map[string]store.PredictionUpdated),
		predWake:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
	go m.forwardPredictions()
	return m
}

func TestHandleMessageViewCountDroppedWhenFull(t *testing.T) {
	m := newTestMultiplexer(1)
	defer m.Close()

	// Fill the channel with something that is never dropped.
	m.handleMessage(&PubSubMessage{
		Topic: Topic{Type: TopicVideoPlaybackByID, ChannelID: "1"}, Type: "stream-up", ChannelID: "1",
	})

	// A second, distinct event type would block forever on a full channel,
	// so use ViewCount to prove it is dropped instead.
	m.handleMessage(&PubSubMessage{
		Topic: Topic{Type: TopicVideoPlaybackByID, ChannelID: "1"}, Type: "viewcount", ChannelID: "1",
		Message: map[string]interface{}{"viewers": float64(7)},
	})

	if len(m.out) != 1 {
		t.Fatalf("expected channel to still hold only the StreamUp, got %d items", len(m.out))
	}
	ev := <-m.out
	if _, ok := ev.(store.StreamUp); !ok {
		t.Fatalf("expected StreamUp to have survived, got %T", ev)
	}
}

// TestQueuePredictionCoalescesByEventID drives queuePrediction directly,
// without the background forwarder running, so the "latest update wins"
// invariant is observed on predPending itself rather than raced against a
// concurrent drain goroutine.
func TestQueuePredictionCoalescesByEventID(t *testing.T) {
	m := &Multiplexer{
		out:         make(chan store.PubSubEvent, 8),
		predPending: make(map[string]store.PredictionUpdated),
		predWake:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}

	for i := 0; i < 5; i++ {
		m.queuePrediction(store.NewPredictionUpdated("1", store.Event{
			EventID:  "evt1",
			Status:   store.EventActive,
			Outcomes: []store.Outcome{{ID: "A", TotalPoints: i, TotalUsers: 1}},
		}, time.Now()))
	}

	if len(m.predPending) != 1 {
		t.Fatalf("expected exactly one pending entry for evt1, got %d", len(m.predPending))
	}
	if got := m.predPending["evt1"].Event.Outcomes[0].TotalPoints; got != 4 {
		t.Fatalf("expected the latest update (total_points=4) to win, got %d", got)
	}
}

func TestForwardPredictionsSendsLatestThenDrains(t *testing.T) {
	m := newTestMultiplexer(8)
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.queuePrediction(store.NewPredictionUpdated("1", store.Event{
			EventID:  "evt1",
			Status:   store.EventActive,
			Outcomes: []store.Outcome{{ID: "A", TotalPoints: i, TotalUsers: 1}},
		}, time.Now()))
	}

	deadline := time.After(time.Second)
	select {
	case ev := <-m.out:
		pu, ok := ev.(store.PredictionUpdated)
		if !ok || pu.Event.Outcomes[0].TotalPoints != 4 {
			t.Fatalf("expected coalesced PredictionUpdated(total_points=4), got %+v", ev)
		}
	case <-deadline:
		t.Fatal("timed out waiting for coalesced prediction update")
	}

	select {
	case ev := <-m.out:
		t.Fatalf("expected no further queued events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
