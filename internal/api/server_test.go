package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/playtime"
	"github.com/wardenbot/warden/internal/storage"
	"github.com/wardenbot/warden/internal/supervisor"
)

const testToken = "s3cret"

// fakeCommander scripts the command surface of one profile.
type fakeCommander struct {
	response string
	err      error
	state    supervisor.State
}

func (c *fakeCommander) Execute(context.Context, string) (string, error) {
	return c.response, c.err
}

func (c *fakeCommander) State() supervisor.State { return c.state }

// fakeRoster serves a fixed set of open sessions.
type fakeRoster struct {
	online map[string]time.Time
}

func (r *fakeRoster) Online() map[string]time.Time {
	out := make(map[string]time.Time, len(r.online))
	for k, v := range r.online {
		out[k] = v
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.API{
			AuthToken:   testToken,
			MaxBodySize: 4096,
		},
		RateLimit: config.RateLimit{
			HardLimitCount: 100,
			HardLimitWin:   time.Minute,
		},
		Query: config.Query{
			Timeout:    time.Second,
			BufferSize: 1400,
		},
	}
}

func testServer(t *testing.T, cfg *config.Config, targets []*Target) (http.Handler, *playtime.Store, *storage.Repository) {
	t.Helper()

	dir := t.TempDir()
	store, err := playtime.Open(filepath.Join(dir, "playtime.json"), playtime.PolicyQuarantine)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		store.Run(ctx, time.Minute)
	}()
	t.Cleanup(func() {
		cancel()
		<-storeDone
	})

	history, err := storage.New(filepath.Join(dir, "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	return New(cfg, targets, store, history).Run(), store, history
}

func authedRequest(method, target string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set("Authorization", "Bearer "+testToken)

	return r
}

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	handler, _, _ := testServer(t, testConfig(), nil)

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/status", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	targets := []*Target{
		{
			Commander: &fakeCommander{state: supervisor.StateAuthenticated},
			Roster:    &fakeRoster{online: map[string]time.Time{"alice": time.Now(), "bob": time.Now()}},
			Profile:   config.Profile{Name: "main", Kind: "minecraft", Host: "mc.example.com", Port: 25575},
			Country:   "DE",
		},
		{
			Commander: &fakeCommander{state: supervisor.StateDisconnected},
			Roster:    &fakeRoster{},
			Profile:   config.Profile{Name: "cs", Kind: "source", Host: "cs.example.com", Port: 27015, QueryPort: 27016},
		},
	}
	handler, _, _ := testServer(t, testConfig(), targets)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/status", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []serverStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "main", got[0].Name)
	assert.Equal(t, "authenticated", got[0].State)
	assert.Equal(t, 2, got[0].Players)
	assert.Equal(t, "DE", got[0].Country)

	assert.Equal(t, "cs", got[1].Name)
	assert.Equal(t, "disconnected", got[1].State)
	assert.Equal(t, 0, got[1].Players)
	assert.Equal(t, 27016, got[1].QueryPort)
}

func TestHandlePlayers(t *testing.T) {
	t.Parallel()

	joined := time.Now().Add(-90 * time.Second)
	targets := []*Target{{
		Commander: &fakeCommander{state: supervisor.StateAuthenticated},
		Roster:    &fakeRoster{online: map[string]time.Time{"alice": joined}},
		Profile:   config.Profile{Name: "main", Kind: "minecraft", Host: "mc.example.com", Port: 25575},
	}}
	handler, store, _ := testServer(t, testConfig(), targets)

	store.PlayerSeen("main", "alice", joined.Add(-time.Hour))
	store.SessionClosed("main", "alice", joined.Add(-time.Hour), 600)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/players?server=main", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []playerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Identity)
	assert.GreaterOrEqual(t, got[0].SessionSeconds, int64(90))
	assert.Equal(t, int64(600), got[0].TotalSeconds)

	// Unknown server.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/players?server=missing", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing server param.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/players", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecute(t *testing.T) {
	t.Parallel()

	cmd := &fakeCommander{response: "Saved the game", state: supervisor.StateAuthenticated}
	targets := []*Target{{
		Commander: cmd,
		Roster:    &fakeRoster{},
		Profile:   config.Profile{Name: "main", Kind: "minecraft", Host: "mc.example.com", Port: 25575},
	}}
	handler, _, _ := testServer(t, testConfig(), targets)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/execute", body)
		req.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"server":"main","command":"save-all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Saved the game", got["response"])

	// Disconnected profile answers 503 without retry or queueing.
	cmd.err = supervisor.ErrNotConnected
	assert.Equal(t, http.StatusServiceUnavailable, post(`{"server":"main","command":"list"}`).Code)
	cmd.err = nil

	assert.Equal(t, http.StatusNotFound, post(`{"server":"missing","command":"list"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"server":"main"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}

func TestHandleSessionsAndMaintenance(t *testing.T) {
	t.Parallel()

	targets := []*Target{{
		Commander: &fakeCommander{state: supervisor.StateAuthenticated},
		Roster:    &fakeRoster{},
		Profile:   config.Profile{Name: "main", Kind: "minecraft", Host: "mc.example.com", Port: 25575},
	}}
	handler, _, history := testServer(t, testConfig(), targets)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, history.RecordSession(storage.Session{
		Profile: "main", Identity: "alice",
		JoinedAt: base, LeftAt: base.Add(125 * time.Second), Seconds: 125,
	}))
	require.NoError(t, history.RecordMaintenance(storage.MaintenanceRun{
		Profile: "main", Task: "maintenance", OK: true, Outcome: "Saved", RanAt: base,
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/sessions?server=main", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []storage.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(125), sessions[0].Seconds)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/maintenance?limit=10", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []storage.MaintenanceRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].OK)

	// Unknown profile on a filtered query is a 404, not an empty list.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/sessions?server=missing", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePlaytime(t *testing.T) {
	t.Parallel()

	handler, store, _ := testServer(t, testConfig(), nil)
	joined := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SessionClosed("main", "alice", joined, 125)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/playtime", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap map[string]playtime.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Contains(t, snap, "main:alice")
	assert.Equal(t, int64(125), snap["main:alice"].TotalPlaytimeSeconds)
}

func TestHandleQueryWithoutQueryPort(t *testing.T) {
	t.Parallel()

	targets := []*Target{{
		Commander: &fakeCommander{state: supervisor.StateAuthenticated},
		Roster:    &fakeRoster{},
		Profile:   config.Profile{Name: "main", Kind: "minecraft", Host: "mc.example.com", Port: 25575},
	}}
	handler, _, _ := testServer(t, testConfig(), targets)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/query?server=main", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimit.HardLimitCount = 2
	handler, _, _ := testServer(t, cfg, nil)

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/status", ""))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
