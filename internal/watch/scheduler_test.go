package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

func TestSelectPicksTopTwoByWatchPriority(t *testing.T) {
	s := store.New()
	cfg := store.StreamerConfig{Kind: store.ConfigSpecific, Specific: store.EmptySpecific()}
	s.AddStreamer("1", "X", cfg)
	s.AddStreamer("2", "Y", cfg)
	s.AddStreamer("3", "Z", cfg)
	s.SetWatchPriority([]string{"Z", "X"})

	now := time.Now()
	for _, id := range []string{"1", "2", "3"} {
		s.ApplyPubSub(store.NewStreamUp(id, "b", "", now), now)
	}

	selected := Select(s.Snapshot())
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected channels, got %d", len(selected))
	}
	if selected[0].ChannelName != "Z" || selected[1].ChannelName != "X" {
		t.Fatalf("expected [Z, X], got [%s, %s]", selected[0].ChannelName, selected[1].ChannelName)
	}
}

type fakeHeartbeater struct {
	mu   sync.Mutex
	calls []string
}

func (f *fakeHeartbeater) SendWatchHeartbeat(ctx context.Context, channelID, channelName, broadcastID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channelName)
	return nil
}

func TestSchedulerTickSendsHeartbeatToEachSelected(t *testing.T) {
	s := store.New()
	cfg := store.StreamerConfig{Kind: store.ConfigSpecific, Specific: store.EmptySpecific()}
	s.AddStreamer("1", "X", cfg)
	s.AddStreamer("2", "Y", cfg)

	now := time.Now()
	s.ApplyPubSub(store.NewStreamUp("1", "b1", "", now), now)
	s.ApplyPubSub(store.NewStreamUp("2", "b2", "", now), now)

	hb := &fakeHeartbeater{}
	sched := New(s, hb)
	sched.interval = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sched.tick(ctx)

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if len(hb.calls) != 2 {
		t.Fatalf("expected 2 heartbeat calls, got %d: %v", len(hb.calls), hb.calls)
	}
}

func TestSchedulerNudgeTriggersImmediateTick(t *testing.T) {
	s := store.New()
	cfg := store.StreamerConfig{Kind: store.ConfigSpecific, Specific: store.EmptySpecific()}
	s.AddStreamer("1", "X", cfg)
	now := time.Now()
	s.ApplyPubSub(store.NewStreamUp("1", "b1", "", now), now)

	hb := &fakeHeartbeater{}
	sched := New(s, hb)
	sched.interval = time.Hour // never fires on its own within the test window

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	sched.Nudge()

	deadline := time.After(time.Second)
	for {
		hb.mu.Lock()
		n := len(hb.calls)
		hb.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected Nudge to trigger an immediate heartbeat")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
