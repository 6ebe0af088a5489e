package web

import (
	"encoding/json"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/twitch-miner/predictor/internal/store"
)

// appStateResponse is the body of `GET /api`: the full application state
// snapshot spec.md §6 names (streamers map, presets, configs, user identity).
type appStateResponse struct {
	User          *userView                `json:"user,omitempty"`
	Streamers     map[string]*store.Streamer `json:"streamers"`
	Presets       map[string]store.Specific  `json:"presets"`
	WatchPriority []string                   `json:"watchPriority"`
}

type userView struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (s *Server) handleAppState(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()

	resp := appStateResponse{
		Streamers:     snap.Streamers,
		Presets:       snap.Presets,
		WatchPriority: snap.WatchPriority,
	}
	if s.identity != nil {
		resp.User = &userView{UserID: s.identity.GetUserID(), UserName: s.identity.GetUserName()}
	}
	writeJSONOK(w, resp)
}

// liveStreamerView adds a human-readable points balance to a live
// streamer, for clients that render it directly without their own
// formatting layer.
type liveStreamerView struct {
	*store.Streamer
	PointsFormatted string `json:"pointsFormatted"`
}

func (s *Server) handleStreamersLive(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	live := snap.LiveStreamers()

	views := make([]liveStreamerView, 0, len(live))
	for _, st := range live {
		views = append(views, liveStreamerView{Streamer: st, PointsFormatted: humanize.Comma(int64(st.Points))})
	}
	writeJSONOK(w, views)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONOK(w, s.status.GetStatus())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.status.Subscribe()
	defer s.status.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
