package analytics

import "time"

// PointRow is one persisted points-balance change (spec.md §6 `points`
// table).
type PointRow struct {
	ChannelID string
	CreatedAt time.Time
	Value     int
	Reason    string
	EventID   string
}

// PredictionRow is one persisted snapshot of a prediction event (spec.md §6
// `predictions` table), upserted by PredictionID as its status advances.
type PredictionRow struct {
	PredictionID     string
	ChannelID        string
	Title            string
	Status           string
	CreatedAt        time.Time
	LockedAt         *time.Time
	EndedAt          *time.Time
	WinningOutcomeID string
	OutcomesJSON     string
}
