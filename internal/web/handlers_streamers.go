package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/twitch-miner/predictor/internal/store"
)

type addStreamerRequest struct {
	Config store.StreamerConfig `json:"config"`
}

// handleAddStreamer is `PUT /api/streamers/mine/{channel_name}`: resolves
// the channel, seeds its live/points state best-effort, and starts tracking
// it (spec.md §6 "add and start mining").
func (s *Server) handleAddStreamer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel_name")
	if name == "" {
		writeBadRequest(w, "channel_name is required")
		return
	}

	var req addStreamerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	channelID, err := s.platform.ResolveChannel(ctx, name)
	if err != nil {
		slog.Warn("resolve channel failed", "channel", name, "request_id", requestIDFromContext(ctx), "error", err)
		writeBadRequest(w, "could not resolve channel: "+err.Error())
		return
	}

	s.store.AddStreamer(channelID, name, req.Config)

	if info, err := s.platform.StreamInfo(ctx, name); err == nil {
		s.store.SetLive(channelID, info)
	} else {
		slog.Debug("initial stream info lookup failed", "channel", name, "error", err)
	}
	if points, _, err := s.platform.ChannelPointsBalance(ctx, name); err == nil {
		s.store.SetPoints(channelID, points)
	} else {
		slog.Debug("initial points balance lookup failed", "channel", name, "error", err)
	}

	s.nudge()
	s.persistChange()
	writeSuccess(w)
}

// handleRemoveStreamer is `DELETE /api/streamers/mine/{channel_name}`.
func (s *Server) handleRemoveStreamer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel_name")
	channelID, ok := s.store.StreamerByName(name)
	if !ok {
		writeNotFound(w, "streamer not tracked")
		return
	}

	s.store.RemoveStreamer(channelID)
	s.nudge()
	s.persistChange()
	writeSuccess(w)
}

// handleSetStreamerConfig is `POST /api/config/streamer/{channel_name}`:
// replaces a tracked streamer's StreamerConfig.
func (s *Server) handleSetStreamerConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel_name")
	channelID, ok := s.store.StreamerByName(name)
	if !ok {
		writeNotFound(w, "streamer not tracked")
		return
	}

	var cfg store.StreamerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.store.SetConfig(channelID, cfg); err != nil {
		writeNotFound(w, err.Error())
		return
	}

	s.nudge()
	s.persistChange()
	writeSuccess(w)
}
