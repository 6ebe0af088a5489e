// Package web is the Control Plane (spec.md §6): a JSON REST API on port
// 3000 for inspecting and steering the running miner. Replaces the
// teacher's internal/web html/template dashboard with the route list
// spec.md §6 names, keeping the teacher's basicAuthMiddleware gating and
// its status-broadcaster/SSE pattern (internal/web/status.go) adapted for
// a convenience status stream; the log tail is a paginated JSON endpoint.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/twitch-miner/predictor/internal/analytics"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/store"
)

// Platform is the subset of the Platform Gateway the control plane calls
// directly: resolving a channel name to start tracking it, and placing a
// manual bet.
type Platform interface {
	ResolveChannel(ctx context.Context, channelName string) (string, error)
	StreamInfo(ctx context.Context, channelName string) (store.StreamerInfo, error)
	ChannelPointsBalance(ctx context.Context, channelLogin string) (points int, availableClaimID string, err error)
	PlaceBet(ctx context.Context, eventID, outcomeID string, points int) error
}

// Nudger lets the control plane ask the watch scheduler to recompute its
// selection right after a streamer is added, removed, or goes live/offline
// through a control-plane call rather than PubSub.
type Nudger interface {
	Nudge()
}

// Identity is the authenticated user the `GET /api` snapshot reports.
type Identity interface {
	GetUserID() string
	GetUserName() string
}

// Server is the control plane's HTTP server.
type Server struct {
	store     *store.Store
	repo      *analytics.Repository
	platform  Platform
	predictor *predictor.Engine
	scheduler Nudger
	identity  Identity
	status    *StatusBroadcaster
	logFile   string

	basicAuthUser string
	basicAuthPass string

	persist func()

	httpServer *http.Server
	mu         sync.Mutex
}

// Deps bundles the collaborators a Server needs. Optional fields
// (Scheduler, Identity, Persist) may be left nil.
type Deps struct {
	Store         *store.Store
	Repository    *analytics.Repository
	Platform      Platform
	Predictor     *predictor.Engine
	Scheduler     Nudger
	Identity      Identity
	LogFile       string
	BasicAuthUser string
	BasicAuthPass string
	// Persist is called after a control-plane mutation so the caller can
	// re-save the on-disk config (spec.md §6 persisted-state note). May be
	// nil if the caller doesn't want mutations persisted.
	Persist func()
}

func New(d Deps) *Server {
	return &Server{
		store:         d.Store,
		repo:          d.Repository,
		platform:      d.Platform,
		predictor:     d.Predictor,
		scheduler:     d.Scheduler,
		identity:      d.Identity,
		status:        NewStatusBroadcaster(),
		logFile:       d.LogFile,
		basicAuthUser: d.BasicAuthUser,
		basicAuthPass: d.BasicAuthPass,
		persist:       d.Persist,
	}
}

// Status returns the broadcaster so the caller (cmd/miner) can push
// lifecycle updates (auth required, running, error) as they happen.
func (s *Server) Status() *StatusBroadcaster {
	return s.status
}

func (s *Server) nudge() {
	if s.scheduler != nil {
		s.scheduler.Nudge()
	}
}

func (s *Server) persistChange() {
	if s.persist != nil {
		s.persist()
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api", s.handleAppState)
	mux.HandleFunc("GET /api/streamers/live", s.handleStreamersLive)

	mux.HandleFunc("PUT /api/streamers/mine/{channel_name}", s.handleAddStreamer)
	mux.HandleFunc("DELETE /api/streamers/mine/{channel_name}", s.handleRemoveStreamer)
	mux.HandleFunc("POST /api/config/streamer/{channel_name}", s.handleSetStreamerConfig)

	mux.HandleFunc("GET /api/config/presets", s.handleListPresets)
	mux.HandleFunc("POST /api/config/presets/{name}", s.handleUpsertPreset)
	mux.HandleFunc("DELETE /api/config/presets/{name}", s.handleDeletePreset)

	mux.HandleFunc("GET /api/config/watch_priority", s.handleGetWatchPriority)
	mux.HandleFunc("POST /api/config/watch_priority", s.handleSetWatchPriority)

	mux.HandleFunc("POST /api/predictions/bet/{streamer}", s.handleManualBet)
	mux.HandleFunc("GET /api/predictions/live", s.handlePredictionLive)

	mux.HandleFunc("POST /api/analytics/timeline", s.handleAnalyticsTimeline)

	mux.HandleFunc("GET /api/logs", s.handleLogs)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)

	var handler http.Handler = mux
	if s.basicAuthUser != "" && s.basicAuthPass != "" {
		handler = s.basicAuthMiddleware(handler)
	}
	return requestIDMiddleware(handler)
}

// requestIDMiddleware tags every request with an id, echoed back in a
// response header and stored in the request context, where handlers read
// it with requestIDFromContext to tag their log lines.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.basicAuthUser || pass != s.basicAuthPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="predictor control plane"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving on addr in the background. Errors after startup are
// logged, not returned, since the control plane is never fatal to the core
// loop (spec.md §7 "background tasks recover locally and log").
func (s *Server) Start(addr string) {
	s.mu.Lock()
	s.httpServer = &http.Server{Addr: addr, Handler: s.routes()}
	srv := s.httpServer
	s.mu.Unlock()

	slog.Info("control plane listening", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control plane server error", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down, honoring spec.md §5's cancellation
// policy ("stop accepting new HTTP control-plane requests").
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
