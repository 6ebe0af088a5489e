package store

import "time"

// Effect is a side-effect request ApplyPubSub hands back to its caller
// instead of performing I/O itself (spec.md §4.3: "pure mutator... returning
// a list of side-effect requests rather than performing them").
type Effect interface{ effect() }

type effectBase struct{}

func (effectBase) effect() {}

// ClaimBonusRequested asks the event loop to call Platform.ClaimCommunityPoints.
type ClaimBonusRequested struct {
	effectBase
	ChannelID string
	ClaimID   string
}

// RecordPointDelta asks the analytics writer to append a PointDelta row.
type RecordPointDelta struct {
	effectBase
	ChannelID string
	CreatedAt time.Time
	Value     int
	Reason    PointsReason
	EventID   string // set when Reason == ReasonPrediction
	RowID     int64  // set when Reason == ReasonPrediction
}

// RecordPredictionRow asks the analytics writer to upsert a predictions row.
type RecordPredictionRow struct {
	effectBase
	ChannelID string
	Event     Event
}

// EvaluatePrediction asks the event loop to run the decision engine (C5)
// against the named open event (spec.md §4.5 "Trigger points").
type EvaluatePrediction struct {
	effectBase
	ChannelID string
	EventID   string
}

// StreamStatusChanged asks the watch scheduler to recompute its selection
// (spec.md §4.6 step 4).
type StreamStatusChanged struct {
	effectBase
	ChannelID string
	Live      bool
}

// JoinRaidRequested asks the event loop to call Platform.JoinRaid. Only
// emitted when the streamer's resolved config has FollowRaid set.
type JoinRaidRequested struct {
	effectBase
	ChannelID string
	RaidID    string
}
