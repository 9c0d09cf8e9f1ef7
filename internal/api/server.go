// Package api implements the thin administrative HTTP surface: raw command
// execution, profile status, roster and playtime queries. All state lives
// in the core components; handlers only read snapshots and forward
// commands.
package api

import "net/http"

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	admin := func(h http.HandlerFunc) http.Handler {
		return s.RateLimitMiddleware(AdminAuthMiddleware(s.authToken, h))
	}

	mux.Handle("GET /api/status", admin(s.handleStatus))
	mux.Handle("GET /api/players", admin(s.handlePlayers))
	mux.Handle("GET /api/playtime", admin(s.handlePlaytime))
	mux.Handle("GET /api/sessions", admin(s.handleSessions))
	mux.Handle("GET /api/maintenance", admin(s.handleMaintenance))
	mux.Handle("GET /api/query", admin(s.handleQuery))
	mux.Handle("POST /api/execute", admin(s.handleExecute))

	return s.LoggingMiddleware(mux)
}
