package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/twitch-miner/predictor/internal/analytics"
	"github.com/twitch-miner/predictor/internal/database"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/store"
)

var errChannelNotResolved = errors.New("channel not found")

type fakePlatform struct {
	resolved  map[string]string
	streamErr error
	placed    []struct {
		eventID, outcomeID string
		points             int
	}
	placeErr error
}

func (f *fakePlatform) ResolveChannel(ctx context.Context, channelName string) (string, error) {
	if id, ok := f.resolved[channelName]; ok {
		return id, nil
	}
	return "", errChannelNotResolved
}

func (f *fakePlatform) StreamInfo(ctx context.Context, channelName string) (store.StreamerInfo, error) {
	return store.StreamerInfo{}, f.streamErr
}

func (f *fakePlatform) ChannelPointsBalance(ctx context.Context, channelLogin string) (int, string, error) {
	return 0, "", f.streamErr
}

func (f *fakePlatform) PlaceBet(ctx context.Context, eventID, outcomeID string, points int) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, struct {
		eventID, outcomeID string
		points             int
	}{eventID, outcomeID, points})
	return nil
}

type fakeNudger struct{ calls int }

func (n *fakeNudger) Nudge() { n.calls++ }

func newTestServer(t *testing.T, pf *fakePlatform) (*Server, *store.Store) {
	t.Helper()
	st := store.New()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := analytics.NewRepository(db)

	s := New(Deps{
		Store:      st,
		Repository: repo,
		Platform:   pf,
		Predictor:  predictor.New(1),
		Scheduler:  &fakeNudger{},
	})
	return s, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleAppStateReturnsSnapshot(t *testing.T) {
	s, st := newTestServer(t, &fakePlatform{})
	st.AddStreamer("123", "someone", store.StreamerConfig{})

	rec := doJSON(t, s.routes(), http.MethodGet, "/api", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp appStateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp.Streamers["123"]; !ok {
		t.Fatalf("expected streamer 123 in response, got %+v", resp.Streamers)
	}
}

func TestHandleAddStreamerResolvesAndTracks(t *testing.T) {
	pf := &fakePlatform{resolved: map[string]string{"someone": "123"}}
	s, st := newTestServer(t, pf)

	body := addStreamerRequest{Config: store.StreamerConfig{Kind: store.ConfigSpecific}}
	rec := doJSON(t, s.routes(), http.MethodPut, "/api/streamers/mine/someone", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if _, ok := st.StreamerByName("someone"); !ok {
		t.Fatalf("expected streamer to be tracked")
	}
}

func TestHandleRemoveStreamerForgetsChannel(t *testing.T) {
	s, st := newTestServer(t, &fakePlatform{})
	st.AddStreamer("123", "someone", store.StreamerConfig{})

	rec := doJSON(t, s.routes(), http.MethodDelete, "/api/streamers/mine/someone", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := st.StreamerByName("someone"); ok {
		t.Fatalf("expected streamer to be forgotten")
	}
}

func TestHandleSetStreamerConfigReplacesConfig(t *testing.T) {
	s, st := newTestServer(t, &fakePlatform{})
	st.AddStreamer("123", "someone", store.StreamerConfig{})

	newCfg := store.StreamerConfig{Kind: store.ConfigSpecific, Specific: store.Specific{FollowRaid: true}}
	rec := doJSON(t, s.routes(), http.MethodPost, "/api/config/streamer/someone", newCfg)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	snap := st.Snapshot()
	if !snap.Streamers["123"].Config.Specific.FollowRaid {
		t.Fatalf("expected config to be replaced")
	}
}

func TestHandlePresetsCRUD(t *testing.T) {
	s, _ := newTestServer(t, &fakePlatform{})

	body := store.Specific{FollowRaid: true}
	rec := doJSON(t, s.routes(), http.MethodPost, "/api/config/presets/aggressive", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 upserting preset, got %d", rec.Code)
	}

	rec = doJSON(t, s.routes(), http.MethodGet, "/api/config/presets", nil)
	var presets map[string]store.Specific
	if err := json.Unmarshal(rec.Body.Bytes(), &presets); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !presets["aggressive"].FollowRaid {
		t.Fatalf("expected preset to round-trip, got %+v", presets)
	}

	rec = doJSON(t, s.routes(), http.MethodDelete, "/api/config/presets/aggressive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting preset, got %d", rec.Code)
	}
}

func TestHandleWatchPriorityRoundTrips(t *testing.T) {
	s, _ := newTestServer(t, &fakePlatform{})

	rec := doJSON(t, s.routes(), http.MethodPost, "/api/config/watch_priority", []string{"a", "b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, s.routes(), http.MethodGet, "/api/config/watch_priority", nil)
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected [a b], got %v", names)
	}
}

func TestHandleManualBetUsesProvidedPoints(t *testing.T) {
	pf := &fakePlatform{}
	s, st := newTestServer(t, pf)
	st.AddStreamer("123", "someone", store.StreamerConfig{})
	event := store.Event{
		EventID:  "evt1",
		Status:   store.EventActive,
		Outcomes: []store.Outcome{{ID: "A", TotalPoints: 100, TotalUsers: 5}, {ID: "B", TotalPoints: 100, TotalUsers: 5}},
	}
	st.ApplyPubSub(store.NewPredictionUpdated("123", event, time.Now()), time.Now())

	rec := doJSON(t, s.routes(), http.MethodPost, "/api/predictions/bet/someone", manualBetRequest{
		EventID: "evt1", OutcomeID: "A", Points: 500,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pf.placed) != 1 || pf.placed[0].points != 500 {
		t.Fatalf("expected a bet of 500 placed, got %+v", pf.placed)
	}
}

func TestHandleLogsPaginatesMostRecentFirst(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "miner-*.log")
	if err != nil {
		t.Fatalf("create temp log: %v", err)
	}
	for i := 0; i < 5; i++ {
		tmp.WriteString("line\n")
	}
	tmp.Close()

	s, _ := newTestServer(t, &fakePlatform{})
	s.logFile = tmp.Name()

	rec := doJSON(t, s.routes(), http.MethodGet, "/api/logs?page=1&per_page=2", nil)
	var resp logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 5 || len(resp.Lines) != 2 {
		t.Fatalf("expected total=5 lines=2, got %+v", resp)
	}
}

func TestBasicAuthMiddlewareRejectsWrongCredentials(t *testing.T) {
	s, _ := newTestServer(t, &fakePlatform{})
	s.basicAuthUser = "admin"
	s.basicAuthPass = "secret"

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct credentials, got %d", rec.Code)
	}
}
