package web

import (
	"encoding/json"
	"net/http"

	"github.com/twitch-miner/predictor/internal/store"
)

// handleListPresets is `GET /api/config/presets`.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSONOK(w, snap.Presets)
}

// handleUpsertPreset is `POST /api/config/presets/{name}`, part of the
// `GET|POST|DELETE /api/config/presets[...]` CRUD surface (spec.md §6).
func (s *Server) handleUpsertPreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeBadRequest(w, "preset name is required")
		return
	}

	var body store.Specific
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	s.store.UpsertPreset(name, body)
	s.persistChange()
	writeSuccess(w)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.store.DeletePreset(name)
	s.persistChange()
	writeSuccess(w)
}

// handleGetWatchPriority is `GET /api/config/watch_priority`.
func (s *Server) handleGetWatchPriority(w http.ResponseWriter, r *http.Request) {
	writeJSONOK(w, s.store.WatchPriority())
}

// handleSetWatchPriority is `POST /api/config/watch_priority`, body is the
// ordered channel_name list.
func (s *Server) handleSetWatchPriority(w http.ResponseWriter, r *http.Request) {
	var names []string
	if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	s.store.SetWatchPriority(names)
	s.nudge()
	s.persistChange()
	writeSuccess(w)
}
