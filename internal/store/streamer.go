package store

import "time"

// StreamerInfo is the live/offline view of a channel (spec.md §3).
// UpdatedAt is the OccurredAt() of the PubSub event that last set it, used
// to discard a StreamUp/StreamDown that arrives out of order across
// multiplexer connections (spec.md §5).
type StreamerInfo struct {
	Live        bool
	BroadcastID string
	Game        string
	UpdatedAt   time.Time
}

// Streamer is a tracked channel: identity, live info, points balance, open
// prediction events, and its resolved betting configuration.
//
// Streamer is a plain data holder; all mutation goes through Store so the
// invariants in spec.md §4.3 hold at a single seam. Fields are exported for
// read access from snapshot() copies, which are safe to read without the
// store lock because they are copies.
type Streamer struct {
	ChannelID   string
	ChannelName string
	Info        StreamerInfo
	Points      int
	Events      map[string]*Event
	PlacedBets  map[string]*PlacedBet // keyed by EventID
	Config      StreamerConfig
	LastRaidID  string // dedups repeated raid_update_v2 messages for the same raid
}

func newStreamer(channelID, channelName string, cfg StreamerConfig) *Streamer {
	return &Streamer{
		ChannelID:   channelID,
		ChannelName: channelName,
		Events:      make(map[string]*Event),
		PlacedBets:  make(map[string]*PlacedBet),
		Config:      cfg,
	}
}

// clone returns a deep-enough copy for snapshot() consumers: safe to read
// concurrently with further mutation of the original.
func (s *Streamer) clone() *Streamer {
	cp := *s
	cp.Events = make(map[string]*Event, len(s.Events))
	for id, e := range s.Events {
		ec := *e
		ec.Outcomes = append([]Outcome(nil), e.Outcomes...)
		cp.Events[id] = &ec
	}
	cp.PlacedBets = make(map[string]*PlacedBet, len(s.PlacedBets))
	for id, b := range s.PlacedBets {
		bc := *b
		cp.PlacedBets[id] = &bc
	}
	return &cp
}

// ResolvedConfig returns this streamer's effective Specific config given the
// current presets map (spec.md §4.3 invariant: missing preset -> no bets).
func (s *Streamer) ResolvedConfig(presets map[string]Specific) Specific {
	return s.Config.Resolve(presets)
}

// removeStaleEvents deletes events that resolved/canceled more than 10s ago
// (spec.md §3 lifecycle, §8 invariant 3).
func (s *Streamer) removeStaleEvents(now time.Time) {
	for id, e := range s.Events {
		if e.ResolvedAt != nil && now.Sub(*e.ResolvedAt) >= 10*time.Second {
			delete(s.Events, id)
		}
	}
}
