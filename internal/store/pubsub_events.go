package store

import "time"

// PointsReason tags why a PointDelta happened (spec.md §3, §9 tagged variant).
type PointsReason string

const (
	ReasonFirstEntry               PointsReason = "FirstEntry"
	ReasonWatching                 PointsReason = "Watching"
	ReasonCommunityPointsClaimed   PointsReason = "CommunityPointsClaimed"
	ReasonPrediction               PointsReason = "Prediction"
)

// PubSubEvent is the sum type of decoded events the multiplexer (C2) emits
// and the store's ApplyPubSub (C3) consumes (spec.md §4.2, §4.3).
type PubSubEvent interface {
	pubSubEvent()
	Channel() string
	OccurredAt() time.Time
}

type base struct {
	ChannelID string
	At        time.Time
}

func (b base) pubSubEvent()          {}
func (b base) Channel() string       { return b.ChannelID }
func (b base) OccurredAt() time.Time { return b.At }

type StreamUp struct {
	base
	BroadcastID string
	Game        string
}

type StreamDown struct {
	base
}

type ViewCount struct {
	base
	Count int
}

type PredictionUpdated struct {
	base
	Event Event
}

type PointsEarned struct {
	base
	Delta   int
	Reason  PointsReason
	Balance int
	// EventID/RowID are populated when Reason == ReasonPrediction.
	EventID string
	RowID   int64
}

type ClaimAvailable struct {
	base
	ClaimID string
}

type RaidUpdate struct {
	base
	RaidID string
}

func NewStreamUp(channelID, broadcastID, game string, at time.Time) StreamUp {
	return StreamUp{base: base{channelID, at}, BroadcastID: broadcastID, Game: game}
}

func NewStreamDown(channelID string, at time.Time) StreamDown {
	return StreamDown{base: base{channelID, at}}
}

func NewViewCount(channelID string, count int, at time.Time) ViewCount {
	return ViewCount{base: base{channelID, at}, Count: count}
}

func NewPredictionUpdated(channelID string, event Event, at time.Time) PredictionUpdated {
	return PredictionUpdated{base: base{channelID, at}, Event: event}
}

func NewPointsEarned(channelID string, delta int, reason PointsReason, balance int, at time.Time) PointsEarned {
	return PointsEarned{base: base{channelID, at}, Delta: delta, Reason: reason, Balance: balance}
}

func NewClaimAvailable(channelID, claimID string, at time.Time) ClaimAvailable {
	return ClaimAvailable{base: base{channelID, at}, ClaimID: claimID}
}

func NewRaidUpdate(channelID, raidID string, at time.Time) RaidUpdate {
	return RaidUpdate{base: base{channelID, at}, RaidID: raidID}
}
