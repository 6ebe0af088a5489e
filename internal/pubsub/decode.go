package pubsub

import (
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

// decodeEvent maps one decoded PubSubMessage onto the store's PubSubEvent
// sum type (spec.md §4.2: "the multiplexer's only job is decode+dispatch").
// Topics this module does not track (predictions-user-v1,
// community-moments-channel-v1, community-points-channel-v1) decode to
// ok=false; cmd/miner never subscribes to them and nothing downstream
// consumes them, since no component named in SPEC_FULL.md acts on
// moments or community goals.
func decodeEvent(msg *PubSubMessage) (store.PubSubEvent, bool) {
	switch msg.Topic.Type {
	case TopicVideoPlaybackByID:
		return decodeVideoPlayback(msg)
	case TopicCommunityPointsUser:
		return decodeCommunityPointsUser(msg)
	case TopicPredictionsChannel:
		return decodePredictionsChannel(msg)
	case TopicRaid:
		return decodeRaid(msg)
	default:
		return nil, false
	}
}

func decodeVideoPlayback(msg *PubSubMessage) (store.PubSubEvent, bool) {
	switch msg.Type {
	case "stream-up":
		return store.NewStreamUp(msg.ChannelID, "", "", msg.Timestamp), true
	case "stream-down":
		return store.NewStreamDown(msg.ChannelID, msg.Timestamp), true
	case "viewcount":
		if count, ok := msg.Message["viewers"].(float64); ok {
			return store.NewViewCount(msg.ChannelID, int(count), msg.Timestamp), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func decodeCommunityPointsUser(msg *PubSubMessage) (store.PubSubEvent, bool) {
	switch msg.Type {
	case "points-earned", "points-spent":
		if msg.Data == nil {
			return nil, false
		}
		balance := -1
		if b, ok := asMap(msg.Data["balance"]); ok {
			if bal, ok := b["balance"].(float64); ok {
				balance = int(bal)
			}
		}

		delta := 0
		reason := store.ReasonWatching
		if gain, ok := asMap(msg.Data["point_gain"]); ok {
			if pts, ok := gain["total_points"].(float64); ok {
				delta = int(pts)
			}
			if rc, ok := gain["reason_code"].(string); ok {
				reason = reasonFromCode(rc)
			}
		} else if msg.Type == "points-spent" {
			if spent, ok := msg.Data["balance"].(map[string]interface{}); ok {
				_ = spent
			}
		}

		return store.NewPointsEarned(msg.ChannelID, delta, reason, balance, msg.Timestamp), true

	case "claim-available":
		if msg.Data == nil {
			return nil, false
		}
		claim, ok := asMap(msg.Data["claim"])
		if !ok {
			return nil, false
		}
		claimID, _ := claim["id"].(string)
		if claimID == "" {
			return nil, false
		}
		return store.NewClaimAvailable(msg.ChannelID, claimID, msg.Timestamp), true

	default:
		return nil, false
	}
}

func reasonFromCode(code string) store.PointsReason {
	switch code {
	case "CLAIM":
		return store.ReasonCommunityPointsClaimed
	case "WATCH_STREAK", "WATCH":
		return store.ReasonWatching
	default:
		return store.ReasonFirstEntry
	}
}

func decodePredictionsChannel(msg *PubSubMessage) (store.PubSubEvent, bool) {
	if msg.Type != "event-created" && msg.Type != "event-updated" {
		return nil, false
	}
	if msg.Data == nil {
		return nil, false
	}
	eventData, ok := asMap(msg.Data["event"])
	if !ok {
		return nil, false
	}

	ev := decodePubSubEvent(eventData)
	if ev.EventID == "" {
		return nil, false
	}
	return store.NewPredictionUpdated(msg.ChannelID, *ev, msg.Timestamp), true
}

func decodeRaid(msg *PubSubMessage) (store.PubSubEvent, bool) {
	if msg.Type != "raid_update_v2" {
		return nil, false
	}
	raid, ok := asMap(msg.Message["raid"])
	if !ok {
		return nil, false
	}
	raidID, _ := raid["id"].(string)
	if raidID == "" {
		return nil, false
	}
	return store.NewRaidUpdate(msg.ChannelID, raidID, msg.Timestamp), true
}

// decodePubSubEvent mirrors the Platform Gateway's GQL event decoder
// (internal/platform/prediction_decode.go) for the analogous but
// differently-shaped wire message the multiplexer receives over PubSub.
func decodePubSubEvent(raw map[string]interface{}) *store.Event {
	ev := &store.Event{}

	ev.EventID, _ = raw["id"].(string)
	ev.Title, _ = raw["title"].(string)
	if status, ok := raw["status"].(string); ok {
		ev.Status = store.EventStatus(status)
	}
	if windowSeconds, ok := raw["prediction_window_seconds"].(float64); ok {
		ev.PredictionWindowSeconds = windowSeconds
	}
	if createdAt, ok := parseRFC3339(raw["created_at"]); ok {
		ev.CreatedAt = createdAt
	}
	if lockedAt, ok := parseRFC3339(raw["locked_at"]); ok {
		ev.LockedAt = &lockedAt
	}
	if endedAt, ok := parseRFC3339(raw["ended_at"]); ok {
		ev.EndedAt = &endedAt
	}
	if winID, ok := raw["winning_outcome_id"].(string); ok && winID != "" {
		ev.WinningOutcomeID = &winID
	}

	if outcomes, ok := raw["outcomes"].([]interface{}); ok {
		for _, o := range outcomes {
			om, ok := asMap(o)
			if !ok {
				continue
			}
			outcome := store.Outcome{}
			outcome.ID, _ = om["id"].(string)
			outcome.Title, _ = om["title"].(string)
			if tp, ok := om["total_points"].(float64); ok {
				outcome.TotalPoints = int(tp)
			}
			if tu, ok := om["total_users"].(float64); ok {
				outcome.TotalUsers = int(tu)
			}
			ev.Outcomes = append(ev.Outcomes, outcome)
		}
	}

	return ev
}

func parseRFC3339(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}
