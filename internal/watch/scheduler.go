// Package watch is the Watch Scheduler (C4, spec.md §4.4): a periodic task
// that picks up to two live, configured channels by watch priority and
// sends each a viewing heartbeat. Adapted from the teacher's
// internal/watcher.MinuteWatcher, narrowed to spec.md's single ordered
// priority list and fixed two-slot cap.
package watch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/twitch-miner/predictor/internal/constants"
	"github.com/twitch-miner/predictor/internal/store"
)

// Heartbeater is the subset of the Platform Gateway the scheduler calls.
type Heartbeater interface {
	SendWatchHeartbeat(ctx context.Context, channelID, channelName, broadcastID string) error
}

// Scheduler runs the 60s tick loop. It never blocks the ingest loop: a
// heartbeat failure is logged and does not alter any state (spec.md §4.4).
type Scheduler struct {
	store    *store.Store
	client   Heartbeater
	interval time.Duration
	nudge    chan struct{}
}

func New(st *store.Store, client Heartbeater) *Scheduler {
	return &Scheduler{store: st, client: client, interval: 60 * time.Second, nudge: make(chan struct{}, 1)}
}

// Nudge asks the scheduler to recompute its selection on its next loop
// iteration without waiting for the full interval (spec.md §4.6 step 4,
// "trigger a scheduler recompute" on a StreamUp/Down transition). It never
// blocks: a pending nudge is coalesced with any already queued.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled, ticking every interval or on Nudge.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.nudge:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	snap := s.store.Snapshot()
	selected := Select(snap)
	if len(selected) == 0 {
		return
	}

	sleepBetween := s.interval / time.Duration(len(selected))

	for _, st := range selected {
		if err := s.client.SendWatchHeartbeat(ctx, st.ChannelID, st.ChannelName, st.Info.BroadcastID); err != nil {
			slog.Debug("watch heartbeat failed", "channel", st.ChannelName, "error", err)
		} else {
			slog.Debug("sent watch heartbeat", "channel", st.ChannelName)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(randomizedDelay(sleepBetween)):
		}
	}
}

// Select picks the channels to watch this tick: live streamers ordered by
// watch priority (listed first, in declared order; then unlisted by
// insertion order), first constants.MaxWatchSlots of them (spec.md §4.4).
func Select(snap store.Snapshot) []*store.Streamer {
	live := snap.LiveStreamers()
	if len(live) > constants.MaxWatchSlots {
		live = live[:constants.MaxWatchSlots]
	}
	return live
}

func randomizedDelay(base time.Duration) time.Duration {
	jitter := (rand.Float64() - 0.5) * 0.4
	return time.Duration(float64(base) * (1.0 + jitter))
}
