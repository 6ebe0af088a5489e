// Package store implements the process-wide State Store (C3, spec.md §4.3):
// a single lock-protected model of streamers, their live info, open
// prediction events, placed bets, and global configuration. Every mutator is
// total and non-suspending; any operation that needs I/O takes a Snapshot,
// releases the lock, does the I/O, then re-enters through a mutator to
// commit (spec.md §4.3, §5).
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/twitch-miner/predictor/internal/errs"
)

// Store is the single in-process object guarded by one outer RWMutex
// (spec.md §4.3, §9 "Shared mutable state").
type Store struct {
	mu            sync.RWMutex
	streamers     map[string]*Streamer // keyed by ChannelID
	order         []string             // ChannelIDs in insertion order, for stable default ordering
	nameIndex     map[string]string    // case-insensitive channel_name -> ChannelID
	presets       map[string]Specific
	watchPriority []string // ordered channel_name list
}

func New() *Store {
	return &Store{
		streamers: make(map[string]*Streamer),
		nameIndex: make(map[string]string),
		presets:   make(map[string]Specific),
	}
}

// AddStreamer registers a tracked channel. Re-adding an existing ChannelID
// replaces its config but preserves live state, points, and open events.
func (s *Store) AddStreamer(channelID, channelName string, cfg StreamerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeName(channelName)
	if existing, ok := s.streamers[channelID]; ok {
		existing.Config = cfg
		existing.ChannelName = channelName
		s.nameIndex[key] = channelID
		return
	}

	s.streamers[channelID] = newStreamer(channelID, channelName, cfg)
	s.nameIndex[key] = channelID
	s.order = append(s.order, channelID)
}

// RemoveStreamer forgets a channel entirely.
func (s *Store) RemoveStreamer(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streamers[channelID]
	if !ok {
		return
	}
	delete(s.nameIndex, normalizeName(st.ChannelName))
	delete(s.streamers, channelID)
	for i, id := range s.order {
		if id == channelID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// StreamerByName resolves a case-insensitive channel_name to its ChannelID.
func (s *Store) StreamerByName(channelName string) (channelID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nameIndex[normalizeName(channelName)]
	return id, ok
}

// SetConfig replaces a streamer's StreamerConfig (control plane §6
// `POST /api/config/streamer/{channel_name}`).
func (s *Store) SetConfig(channelID string, cfg StreamerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streamers[channelID]
	if !ok {
		return errs.ErrStreamerNotFound
	}
	st.Config = cfg
	return nil
}

// UpsertPreset creates or replaces a named preset.
func (s *Store) UpsertPreset(name string, body Specific) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[name] = body
}

// DeletePreset removes a preset. Streamers referencing it by name fall back
// to "no bets" on their next Resolve (spec.md §4.3 invariant).
func (s *Store) DeletePreset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presets, name)
}

// RenamePreset moves a preset's body to a new name, leaving streamer
// references by the old name to resolve to "no bets" until repointed
// (the store does no implicit reference rewriting, per spec.md §4.3's
// name-indirection design).
func (s *Store) RenamePreset(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.presets[oldName]
	if !ok {
		return errs.ErrPresetNotFound
	}
	delete(s.presets, oldName)
	s.presets[newName] = body
	return nil
}

// SetWatchPriority replaces the ordered channel_name preference list.
func (s *Store) SetWatchPriority(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchPriority = append([]string(nil), names...)
}

// WatchPriority returns the current ordered preference list.
func (s *Store) WatchPriority() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.watchPriority...)
}

// SetLive updates a streamer's live/offline flag and broadcast info. Returns
// whether the live flag changed so callers can detect an edge.
func (s *Store) SetLive(channelID string, info StreamerInfo) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streamers[channelID]
	if !ok {
		return false
	}
	changed = st.Info.Live != info.Live
	st.Info = info
	return changed
}

// SetPoints sets a streamer's points balance, clamped at zero (spec.md §3
// invariant: points >= 0).
func (s *Store) SetPoints(channelID string, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if points < 0 {
		points = 0
	}
	if st, ok := s.streamers[channelID]; ok {
		st.Points = points
	}
}

// RecordBet commits a confirmed PlacedBet. Idempotent: a second call for the
// same EventID is a no-op (spec.md §4.3 invariant).
func (s *Store) RecordBet(channelID string, bet PlacedBet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streamers[channelID]
	if !ok {
		return errs.ErrStreamerNotFound
	}
	if _, exists := st.PlacedBets[bet.EventID]; exists {
		return nil
	}
	st.PlacedBets[bet.EventID] = &bet
	return nil
}

// HasBet reports whether a streamer already has a placed bet for an event.
func (s *Store) HasBet(channelID, eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streamers[channelID]
	if !ok {
		return false
	}
	_, has := st.PlacedBets[eventID]
	return has
}

// ApplyPubSub is the pure mutator for incoming decoded events (spec.md
// §4.3). It never performs I/O; it returns the side effects the caller (the
// event loop, C6) must carry out.
func (s *Store) ApplyPubSub(ev PubSubEvent, now time.Time) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streamers[ev.Channel()]
	if !ok {
		return nil
	}

	switch e := ev.(type) {
	case StreamUp:
		// A StreamUp older than the streamer's current info timestamp is
		// stale cross-connection reordering (spec.md §5) and is discarded.
		if e.OccurredAt().Before(st.Info.UpdatedAt) {
			return nil
		}
		st.Info = StreamerInfo{Live: true, BroadcastID: e.BroadcastID, Game: e.Game, UpdatedAt: e.OccurredAt()}
		return []Effect{StreamStatusChanged{ChannelID: st.ChannelID, Live: true}}

	case StreamDown:
		if e.OccurredAt().Before(st.Info.UpdatedAt) {
			return nil
		}
		wasLive := st.Info.Live
		st.Info.Live = false
		st.Info.UpdatedAt = e.OccurredAt()
		if !wasLive {
			return nil
		}
		return []Effect{StreamStatusChanged{ChannelID: st.ChannelID, Live: false}}

	case ViewCount:
		return nil

	case PredictionUpdated:
		return s.applyPredictionUpdated(st, e, now)

	case PointsEarned:
		if e.Balance >= 0 {
			st.Points = e.Balance
		} else {
			st.Points += e.Delta
			if st.Points < 0 {
				st.Points = 0
			}
		}
		return []Effect{RecordPointDelta{
			ChannelID: st.ChannelID,
			CreatedAt: e.At,
			Value:     e.Delta,
			Reason:    e.Reason,
			EventID:   e.EventID,
			RowID:     e.RowID,
		}}

	case ClaimAvailable:
		return []Effect{ClaimBonusRequested{ChannelID: st.ChannelID, ClaimID: e.ClaimID}}

	case RaidUpdate:
		if !st.Config.Resolve(s.presets).FollowRaid || st.LastRaidID == e.RaidID {
			return nil
		}
		st.LastRaidID = e.RaidID
		return []Effect{JoinRaidRequested{
			ChannelID: st.ChannelID,
			RaidID:    e.RaidID,
		}}
	}

	return nil
}

func (s *Store) applyPredictionUpdated(st *Streamer, e PredictionUpdated, now time.Time) []Effect {
	incoming := e.Event

	existing, hadEvent := st.Events[incoming.EventID]
	if !hadEvent {
		st.Events[incoming.EventID] = &incoming
		existing = st.Events[incoming.EventID]
	} else {
		existing.Status = incoming.Status
		existing.Outcomes = incoming.Outcomes
		existing.LockedAt = incoming.LockedAt
		existing.EndedAt = incoming.EndedAt
		existing.WinningOutcomeID = incoming.WinningOutcomeID
	}

	effects := []Effect{RecordPredictionRow{ChannelID: st.ChannelID, Event: *existing}}

	if existing.Status == EventResolved || existing.Status == EventCanceled {
		if existing.ResolvedAt == nil {
			t := now
			existing.ResolvedAt = &t
		}
	} else if _, hasBet := st.PlacedBets[existing.EventID]; !hasBet {
		effects = append(effects, EvaluatePrediction{ChannelID: st.ChannelID, EventID: existing.EventID})
	}

	st.removeStaleEvents(now)

	return effects
}

// Sweep removes events that resolved more than 10s ago across all streamers.
// Called periodically by cmd/miner's sweepLoop so streamers with no further PubSub
// traffic still meet the 10s removal invariant (spec.md §8 invariant 3).
func (s *Store) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streamers {
		st.removeStaleEvents(now)
	}
}

// Snapshot is a cheap copy-on-read view for HTTP responses and the watch
// scheduler (spec.md §4.3 "snapshot()").
type Snapshot struct {
	Streamers     map[string]*Streamer // keyed by ChannelID, deep-copied
	Order         []string             // ChannelIDs in insertion order
	Presets       map[string]Specific
	WatchPriority []string
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	streamers := make(map[string]*Streamer, len(s.streamers))
	for id, st := range s.streamers {
		streamers[id] = st.clone()
	}
	presets := make(map[string]Specific, len(s.presets))
	for name, body := range s.presets {
		presets[name] = body
	}

	return Snapshot{
		Streamers:     streamers,
		Order:         append([]string(nil), s.order...),
		Presets:       presets,
		WatchPriority: append([]string(nil), s.watchPriority...),
	}
}

// LiveStreamers returns the currently-live streamers from a
// Snapshot, ordered by watch priority then stable insertion order (spec.md
// §4.4).
func (snap Snapshot) LiveStreamers() []*Streamer {
	var live []*Streamer
	for _, id := range snap.Order {
		if st := snap.Streamers[id]; st != nil && st.Info.Live {
			live = append(live, st)
		}
	}

	priorityRank := make(map[string]int, len(snap.WatchPriority))
	for i, name := range snap.WatchPriority {
		priorityRank[normalizeName(name)] = i
	}

	sort.SliceStable(live, func(i, j int) bool {
		ri, iok := priorityRank[normalizeName(live[i].ChannelName)]
		rj, jok := priorityRank[normalizeName(live[j].ChannelName)]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return false
		}
	})

	return live
}

func normalizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
