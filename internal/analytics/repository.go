package analytics

import (
	"database/sql"
	"time"

	"github.com/twitch-miner/predictor/internal/database"
)

// TimelinePoint is one sample in a channel's points-over-time series,
// returned by the control plane's `/api/analytics/timeline` route.
type TimelinePoint struct {
	Timestamp int64  `json:"timestamp"`
	Value     int    `json:"value"`
	Reason    string `json:"reason"`
}

// Repository serves read queries against the analytics database for the
// control plane. Separate from Writer because reads happen on an HTTP
// goroutine while writes are serialized through the batching loop.
type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Timeline returns a channel's point deltas between start and end,
// ordered oldest first (spec.md §6 `/api/analytics/timeline`).
func (r *Repository) Timeline(channelID string, start, end time.Time) ([]TimelinePoint, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Query(
		`SELECT created_at, value, reason FROM points WHERE channel_id = ? AND created_at BETWEEN ? AND ? ORDER BY created_at ASC`,
		channelID, start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelinePoint
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.Timestamp, &p.Value, &p.Reason); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PredictionRecord is the persisted view of one prediction row, returned by
// the control plane's `GET /api/predictions/live` route.
type PredictionRecord struct {
	PredictionID     string  `json:"predictionId"`
	ChannelID        string  `json:"channelId"`
	Title            string  `json:"title"`
	Status           string  `json:"status"`
	CreatedAt        int64   `json:"createdAt"`
	LockedAt         *int64  `json:"lockedAt,omitempty"`
	EndedAt          *int64  `json:"endedAt,omitempty"`
	WinningOutcomeID string  `json:"winningOutcomeId,omitempty"`
	OutcomesJSON     string  `json:"outcomes"`
}

// LatestPrediction returns the persisted row for one prediction_id scoped
// to a channel, or nil if no row has been flushed yet (spec.md §6
// `GET /api/predictions/live?channel_id&prediction_id`).
func (r *Repository) LatestPrediction(channelID, predictionID string) (*PredictionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var rec PredictionRecord
	err := r.db.QueryRow(
		`SELECT prediction_id, channel_id, title, status, created_at, locked_at, ended_at, winning_outcome_id, outcomes_json
		 FROM predictions WHERE channel_id = ? AND prediction_id = ?`,
		channelID, predictionID,
	).Scan(&rec.PredictionID, &rec.ChannelID, &rec.Title, &rec.Status, &rec.CreatedAt, &rec.LockedAt, &rec.EndedAt, &rec.WinningOutcomeID, &rec.OutcomesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
