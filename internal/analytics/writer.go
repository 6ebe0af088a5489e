// Package analytics is the Analytics Writer (C7, spec.md §4.7): a batched,
// best-effort sink for points-balance changes and prediction-event
// snapshots. Adapted from the teacher's internal/analytics SQLite
// repository (modernc.org/sqlite, schema-versioned migrations via
// database.RegisterModule), restructured around spec.md's `points` /
// `predictions` tables instead of the teacher's dashboard schema.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twitch-miner/predictor/internal/constants"
	"github.com/twitch-miner/predictor/internal/database"
	"github.com/twitch-miner/predictor/internal/store"
)

type module struct{}

func (module) Name() string { return "analytics" }

func (module) Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create points and predictions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS points (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					channel_id TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					value INTEGER NOT NULL,
					reason TEXT NOT NULL,
					event_id TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_points_channel_time ON points(channel_id, created_at);

				CREATE TABLE IF NOT EXISTS predictions (
					prediction_id TEXT PRIMARY KEY,
					channel_id TEXT NOT NULL,
					title TEXT NOT NULL,
					status TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					locked_at INTEGER,
					ended_at INTEGER,
					winning_outcome_id TEXT,
					outcomes_json TEXT NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_predictions_channel ON predictions(channel_id, created_at);
			`,
		},
		{
			Version:     2,
			Description: "Dedup points by channel/time/reason",
			SQL: `
				CREATE UNIQUE INDEX IF NOT EXISTS idx_points_dedup ON points(channel_id, created_at, reason);
			`,
		},
	}
}

// pointKey dedups a single flush batch by (channel_id, created_at, reason);
// the idx_points_dedup unique index plus INSERT OR IGNORE in flush() extends
// that dedup across separate flushes (spec.md §8 "two identical PointsEarned
// deliveries... produce exactly one analytics row").
type pointKey struct {
	channelID string
	createdAt int64
	reason    string
}

// Writer batches RecordPointDelta/RecordPredictionRow effects from the
// event loop and flushes them to SQLite every FlushInterval or FlushRows
// rows, whichever comes first (spec.md §4.7).
type Writer struct {
	db            *database.DB
	flushInterval time.Duration
	flushRows     int

	points      chan store.RecordPointDelta
	predictions chan store.RecordPredictionRow
}

// NewWriter registers the analytics schema and returns a Writer ready to
// Run. flushRows bounds how many buffered rows trigger an early flush.
func NewWriter(db *database.DB, flushInterval time.Duration, flushRows int) (*Writer, error) {
	if err := db.RegisterModule(module{}); err != nil {
		return nil, err
	}
	return &Writer{
		db:            db,
		flushInterval: flushInterval,
		flushRows:     flushRows,
		points:        make(chan store.RecordPointDelta, constants.AnalyticsQueueCapacity),
		predictions:   make(chan store.RecordPredictionRow, constants.AnalyticsQueueCapacity),
	}, nil
}

// RecordPointDelta enqueues a points row. Under backpressure, only rows
// with Reason == ReasonWatching are dropped (spec.md §4.7 "lossy under
// backpressure, but only for Watching rows"); every other reason blocks
// until there's room, since a dropped prediction-win/claim row would
// silently corrupt the balance history an operator actually cares about.
func (w *Writer) RecordPointDelta(e store.RecordPointDelta) {
	if e.Reason == store.ReasonWatching {
		select {
		case w.points <- e:
		default:
			slog.Debug("dropping watching point row under backpressure", "channel", e.ChannelID)
		}
		return
	}
	w.points <- e
}

// RecordPrediction enqueues a prediction snapshot row. Never dropped: the
// volume of prediction updates is bounded by how many events are open at
// once, far below the channel capacity in practice.
func (w *Writer) RecordPrediction(e store.RecordPredictionRow) {
	w.predictions <- e
}

// Run drains both channels until ctx is canceled, batching rows into an
// in-memory dedup set and flushing on a timer or when a batch fills up.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	pointBatch := make(map[pointKey]store.RecordPointDelta)
	predBatch := make(map[string]store.RecordPredictionRow)

	flush := func() {
		if len(pointBatch) == 0 && len(predBatch) == 0 {
			return
		}
		if err := w.flush(pointBatch, predBatch); err != nil {
			slog.Error("analytics flush failed", "error", err)
		}
		pointBatch = make(map[pointKey]store.RecordPointDelta)
		predBatch = make(map[string]store.RecordPredictionRow)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case p := <-w.points:
			pointBatch[pointKey{p.ChannelID, p.CreatedAt.Unix(), string(p.Reason)}] = p
			if len(pointBatch)+len(predBatch) >= w.flushRows {
				flush()
			}

		case p := <-w.predictions:
			predBatch[p.Event.EventID] = p
			if len(pointBatch)+len(predBatch) >= w.flushRows {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) flush(points map[pointKey]store.RecordPointDelta, preds map[string]store.RecordPredictionRow) error {
	w.db.Lock()
	defer w.db.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	for _, p := range points {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO points (channel_id, created_at, value, reason, event_id) VALUES (?, ?, ?, ?, ?)`,
			p.ChannelID, p.CreatedAt.Unix(), p.Value, string(p.Reason), p.EventID,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	for _, p := range preds {
		outcomesJSON, err := json.Marshal(p.Event.Outcomes)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		var lockedAt, endedAt *int64
		if p.Event.LockedAt != nil {
			v := p.Event.LockedAt.Unix()
			lockedAt = &v
		}
		if p.Event.EndedAt != nil {
			v := p.Event.EndedAt.Unix()
			endedAt = &v
		}
		winningOutcomeID := ""
		if p.Event.WinningOutcomeID != nil {
			winningOutcomeID = *p.Event.WinningOutcomeID
		}

		if _, err := tx.Exec(`
			INSERT INTO predictions (prediction_id, channel_id, title, status, created_at, locked_at, ended_at, winning_outcome_id, outcomes_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(prediction_id) DO UPDATE SET
				title = excluded.title,
				status = excluded.status,
				locked_at = excluded.locked_at,
				ended_at = excluded.ended_at,
				winning_outcome_id = excluded.winning_outcome_id,
				outcomes_json = excluded.outcomes_json
		`,
			p.Event.EventID, p.ChannelID, p.Event.Title, string(p.Event.Status), p.Event.CreatedAt.Unix(),
			lockedAt, endedAt, winningOutcomeID, string(outcomesJSON),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
