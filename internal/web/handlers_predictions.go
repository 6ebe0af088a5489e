package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/twitch-miner/predictor/internal/errs"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/store"
)

type manualBetRequest struct {
	EventID   string `json:"event_id"`
	OutcomeID string `json:"outcome_id"`
	Points    int    `json:"points,omitempty"`
}

// handleManualBet is `POST /api/predictions/bet/{streamer}`: places a
// caller-directed bet. When Points is zero, the engine sizes it with the
// filter gate disabled (overrides and the default rule still apply),
// per spec.md §6.
func (s *Server) handleManualBet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("streamer")
	channelID, ok := s.store.StreamerByName(name)
	if !ok {
		writeNotFound(w, "streamer not tracked")
		return
	}

	var req manualBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.EventID == "" || req.OutcomeID == "" {
		writeBadRequest(w, "event_id and outcome_id are required")
		return
	}

	snap := s.store.Snapshot()
	st, ok := snap.Streamers[channelID]
	if !ok {
		writeNotFound(w, "streamer not tracked")
		return
	}
	event, ok := st.Events[req.EventID]
	if !ok {
		writeNotFound(w, "prediction event not found")
		return
	}
	if _, hasBet := st.PlacedBets[req.EventID]; hasBet {
		writeBadRequest(w, errs.ErrDuplicateBet.Error())
		return
	}

	points := req.Points
	if points <= 0 {
		cfg := st.ResolvedConfig(snap.Presets).Prediction
		decision, ok := s.predictor.DecideManual(event, req.OutcomeID, st.Points, cfg)
		if !ok {
			writeBadRequest(w, "outcome_id does not belong to this event")
			return
		}
		if decision.Kind != predictor.Bet {
			writeJSONOK(w, map[string]string{"decision": string(decision.Kind)})
			return
		}
		points = decision.Points
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.platform.PlaceBet(ctx, req.EventID, req.OutcomeID, points); err != nil {
		status := http.StatusBadGateway
		if e, ok := errs.As(err); ok {
			status = e.Kind.HTTPStatus()
		}
		writeError(w, status, err.Error())
		return
	}

	_ = s.store.RecordBet(channelID, store.PlacedBet{
		EventID:   req.EventID,
		OutcomeID: req.OutcomeID,
		Points:    points,
		PlacedAt:  time.Now(),
	})
	writeSuccess(w)
}

// handlePredictionLive is `GET /api/predictions/live?channel_id&prediction_id`.
func (s *Server) handlePredictionLive(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	predictionID := r.URL.Query().Get("prediction_id")
	if channelID == "" || predictionID == "" {
		writeBadRequest(w, "channel_id and prediction_id are required")
		return
	}

	rec, err := s.repo.LatestPrediction(channelID, predictionID)
	if err != nil {
		writeInternalError(w, "failed to read prediction")
		return
	}
	if rec == nil {
		writeNotFound(w, "no persisted prediction row yet")
		return
	}
	writeJSONOK(w, rec)
}
