package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wardenbot/warden/internal/game"
	"github.com/wardenbot/warden/internal/storage"
	"github.com/wardenbot/warden/internal/supervisor"
)

// serverStatus is one profile's entry in the status response.
type serverStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Address   string `json:"address"`
	State     string `json:"state"`
	Country   string `json:"country,omitempty"`
	Players   int    `json:"players"`
	QueryPort int    `json:"query_port,omitempty"`
}

// playerEntry is one online player in the players response.
type playerEntry struct {
	JoinedAt       time.Time `json:"joined_at"`
	FirstJoin      time.Time `json:"first_join,omitempty"`
	Identity       string    `json:"identity"`
	SessionSeconds int64     `json:"session_seconds"`
	TotalSeconds   int64     `json:"total_seconds"`
}

// target resolves the ?server= parameter, writing the error response on
// failure.
func (s *Server) target(w http.ResponseWriter, r *http.Request) *Target {
	name := r.URL.Query().Get("server")
	if name == "" {
		http.Error(w, "Missing server param", http.StatusBadRequest)
		return nil
	}

	t, ok := s.targets[name]
	if !ok {
		http.Error(w, "Unknown server", http.StatusNotFound)
		return nil
	}

	return t
}

// handleStatus returns the connection state and player count per profile.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	out := make([]serverStatus, 0, len(s.order))
	for _, name := range s.order {
		t := s.targets[name]
		out = append(out, serverStatus{
			Name:      t.Profile.Name,
			Kind:      t.Profile.Kind,
			Address:   t.Profile.Addr(),
			State:     t.Commander.State().String(),
			Country:   t.Country,
			Players:   len(t.Roster.Online()),
			QueryPort: t.Profile.QueryPort,
		})
	}

	writeJSON(w, out)
}

// handlePlayers returns the current roster of one profile with open-session
// durations and persisted totals.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	t := s.target(w, r)
	if t == nil {
		return
	}

	totals := s.store.Snapshot()
	now := time.Now()

	players := make([]playerEntry, 0)
	for identity, joinedAt := range t.Roster.Online() {
		entry := playerEntry{
			Identity:       identity,
			JoinedAt:       joinedAt,
			SessionSeconds: int64(now.Sub(joinedAt) / time.Second),
		}
		if rec, ok := totals[t.Profile.Name+":"+identity]; ok {
			entry.FirstJoin = rec.FirstJoin
			entry.TotalSeconds = rec.TotalPlaytimeSeconds
		}
		players = append(players, entry)
	}

	writeJSON(w, players)
}

// handlePlaytime returns the full playtime mapping snapshot.
func (s *Server) handlePlaytime(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	if snap == nil {
		http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, snap)
}

// handleSessions returns recent finished sessions from the history ledger.
// Query params: ?server=name&limit=50 (server optional).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("server")
	if name != "" {
		if s.target(w, r) == nil {
			return
		}
	}

	sessions, err := s.history.Sessions(name, limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch sessions")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []storage.Session{}
	}

	writeJSON(w, sessions)
}

// handleMaintenance returns recent maintenance run outcomes.
func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("server")
	if name != "" {
		if s.target(w, r) == nil {
			return
		}
	}

	runs, err := s.history.MaintenanceRuns(name, limitParam(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch maintenance runs")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.MaintenanceRun{}
	}

	writeJSON(w, runs)
}

// handleQuery performs a live A2S_INFO query against a profile's query
// port. Only Source-family profiles configure one.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	t := s.target(w, r)
	if t == nil {
		return
	}

	if t.Profile.QueryPort == 0 {
		http.Error(w, "Profile has no query port", http.StatusBadRequest)
		return
	}

	info, err := game.QueryInfo(t.Profile.Host, t.Profile.QueryPort, s.queryOpts)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusGatewayTimeout)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, info)
}

// executeRequest is the body of POST /api/execute.
type executeRequest struct {
	Server  string `json:"server"`
	Command string `json:"command"`
}

// handleExecute forwards a raw console command to one profile and relays
// the raw response. The command text is passed through untouched; argument
// validation is the caller's responsibility.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Server == "" || req.Command == "" {
		http.Error(w, "Missing server or command", http.StatusBadRequest)
		return
	}

	t, ok := s.targets[req.Server]
	if !ok {
		http.Error(w, "Unknown server", http.StatusNotFound)
		return
	}

	response, err := t.Commander.Execute(r.Context(), req.Command)
	if err != nil {
		log.Warn().Err(err).
			Str("server", req.Server).
			Str("command", req.Command).
			Msg("Admin command failed")

		status := http.StatusBadGateway
		if errors.Is(err, supervisor.ErrNotConnected) {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	log.Info().
		Str("server", req.Server).
		Str("command", req.Command).
		Msg("Admin command executed")

	writeJSON(w, map[string]string{"response": response})
}

func limitParam(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return 0
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
