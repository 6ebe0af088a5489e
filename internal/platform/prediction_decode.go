package platform

import (
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

// decodePredictionEvent maps the platform's GQL prediction shape onto
// store.Event. Unknown/zero fields decode to their Go zero values rather
// than erroring — the caller treats a partially-decoded event the same as
// any other snapshot (spec.md §5 "Platform payloads decode leniently").
func decodePredictionEvent(raw map[string]interface{}) *store.Event {
	ev := &store.Event{}

	ev.EventID, _ = raw["id"].(string)
	ev.Title, _ = raw["title"].(string)
	ev.Status = store.EventStatus(stringField(raw, "status"))

	if windowSeconds, ok := raw["prediction_window_seconds"].(float64); ok {
		ev.PredictionWindowSeconds = windowSeconds
	}
	if createdAt, ok := parseTime(raw["created_at"]); ok {
		ev.CreatedAt = createdAt
	}
	if lockedAt, ok := parseTime(raw["locked_at"]); ok {
		ev.LockedAt = &lockedAt
	}
	if endedAt, ok := parseTime(raw["ended_at"]); ok {
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

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func parseTime(v interface{}) (time.Time, bool) {
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
