package api

import (
	"context"
	"time"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/game"
	"github.com/wardenbot/warden/internal/playtime"
	"github.com/wardenbot/warden/internal/storage"
	"github.com/wardenbot/warden/internal/supervisor"
)

// Commander is the administrative command surface of one profile.
// Satisfied by *supervisor.Supervisor.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
	State() supervisor.State
}

// Roster exposes the open sessions of one profile. Satisfied by
// *roster.Tracker.
type Roster interface {
	Online() map[string]time.Time
}

// Target bundles everything the API needs to serve one profile.
type Target struct {
	Commander Commander
	Roster    Roster
	Profile   config.Profile

	// Country is the ISO code of the server host, empty when GeoIP is
	// disabled or the lookup failed.
	Country string
}

// Server holds the dependencies, configuration, and runtime state required
// to handle admin API requests.
type Server struct {
	// targets maps profile name to its command/roster surfaces.
	targets map[string]*Target

	// order preserves the configured profile order for list responses.
	order []string

	// store is the playtime mapping owner; read through snapshots only.
	store *playtime.Store

	// history is the SQLite session/maintenance ledger.
	history *storage.Repository

	// queryOpts tunes live A2S queries proxied through the API.
	queryOpts game.QueryOptions

	// authToken is the secret required on every /api endpoint.
	authToken string

	// maxBody caps incoming request bodies.
	maxBody int64

	// hardLimitCount / hardLimitWin configure the per-IP rate limiter.
	hardLimitCount int
	hardLimitWin   time.Duration

	// trustProxy enables X-Forwarded-For handling.
	trustProxy bool
}

// New creates the admin API server.
func New(cfg *config.Config, targets []*Target, store *playtime.Store, history *storage.Repository) *Server {
	byName := make(map[string]*Target, len(targets))
	order := make([]string, 0, len(targets))
	for _, t := range targets {
		byName[t.Profile.Name] = t
		order = append(order, t.Profile.Name)
	}

	return &Server{
		targets: byName,
		order:   order,
		store:   store,
		history: history,
		queryOpts: game.QueryOptions{
			Timeout:    cfg.Query.Timeout,
			BufferSize: cfg.Query.BufferSize,
		},
		authToken:      cfg.API.AuthToken,
		maxBody:        cfg.API.MaxBodySize,
		trustProxy:     cfg.API.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
	}
}
