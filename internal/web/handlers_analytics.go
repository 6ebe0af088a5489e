package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/twitch-miner/predictor/internal/analytics"
)

type timelineRequest struct {
	Channels []string  `json:"channels"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

type timelineResponse struct {
	ChannelID string                     `json:"channelId"`
	Points    []analytics.TimelinePoint `json:"points"`
}

// handleAnalyticsTimeline is `POST /api/analytics/timeline`.
func (s *Server) handleAnalyticsTimeline(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(req.Channels) == 0 {
		writeBadRequest(w, "channels is required")
		return
	}
	if req.To.IsZero() {
		req.To = time.Now()
	}

	out := make([]timelineResponse, 0, len(req.Channels))
	for _, channelID := range req.Channels {
		points, err := s.repo.Timeline(channelID, req.From, req.To)
		if err != nil {
			writeInternalError(w, "failed to read timeline")
			return
		}
		out = append(out, timelineResponse{ChannelID: channelID, Points: points})
	}

	writeJSONOK(w, out)
}
