package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/database"
	"github.com/twitch-miner/predictor/internal/store"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWriterFlushesPointsOnRowThreshold(t *testing.T) {
	db := newTestDB(t)
	w, err := NewWriter(db, time.Hour, 2)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	now := time.Now()
	w.RecordPointDelta(store.RecordPointDelta{ChannelID: "1", CreatedAt: now, Value: 10, Reason: store.ReasonFirstEntry})
	w.RecordPointDelta(store.RecordPointDelta{ChannelID: "1", CreatedAt: now.Add(time.Second), Value: 20, Reason: store.ReasonCommunityPointsClaimed})

	repo := NewRepository(db)
	deadline := time.After(2 * time.Second)
	for {
		points, err := repo.Timeline("1", now.Add(-time.Minute), now.Add(time.Minute))
		if err != nil {
			t.Fatalf("Timeline: %v", err)
		}
		if len(points) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 flushed rows, got %d", len(points))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDuplicatePointDeltaAcrossFlushesProducesOneRow(t *testing.T) {
	db := newTestDB(t)
	// flushRows=1 forces each RecordPointDelta into its own flush, so the
	// dedup has to hold across flushes, not just within one in-memory batch.
	w, err := NewWriter(db, time.Hour, 1)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	now := time.Now()
	delta := store.RecordPointDelta{ChannelID: "1", CreatedAt: now, Value: 10, Reason: store.ReasonFirstEntry}
	w.RecordPointDelta(delta)
	w.RecordPointDelta(delta)

	repo := NewRepository(db)
	deadline := time.After(2 * time.Second)
	for {
		points, err := repo.Timeline("1", now.Add(-time.Minute), now.Add(time.Minute))
		if err != nil {
			t.Fatalf("Timeline: %v", err)
		}
		if len(points) == 1 {
			break
		}
		if len(points) > 1 {
			t.Fatalf("expected exactly 1 row for a duplicate delivery, got %d", len(points))
		}
		select {
		case <-deadline:
			t.Fatalf("expected 1 flushed row, got %d", len(points))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRecordPointDeltaDropsWatchingUnderBackpressure(t *testing.T) {
	db := newTestDB(t)
	w, err := NewWriter(db, time.Hour, 1<<30)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// fill the channel without a consumer running
	for i := 0; i < cap(w.points); i++ {
		w.points <- store.RecordPointDelta{ChannelID: "1", Reason: store.ReasonWatching}
	}

	done := make(chan struct{})
	go func() {
		w.RecordPointDelta(store.RecordPointDelta{ChannelID: "1", Reason: store.ReasonWatching})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RecordPointDelta to drop a Watching row instead of blocking when full")
	}
}
