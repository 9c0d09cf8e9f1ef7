// Package supervisor owns one RCON connection per server profile, running
// the Disconnected → Connecting → Authenticated state machine with health
// checks and backoff-driven reconnection.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wardenbot/warden/internal/events"
)

// ErrNotConnected is returned by Execute when the profile has no
// authenticated connection. Callers fail fast; they do not queue behind a
// reconnect.
var ErrNotConnected = errors.New("supervisor: not connected")

// State is the connection lifecycle state of one profile.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Conn is the transport surface the supervisor drives. *rcon.Client
// satisfies it.
type Conn interface {
	Authenticate(ctx context.Context, password string) error
	Execute(ctx context.Context, command string) (string, error)
	Close() error
}

// DialFunc opens a fresh transport for the profile.
type DialFunc func(ctx context.Context) (Conn, error)

// Options configures a Supervisor.
type Options struct {
	Dial             DialFunc
	Bus              *events.Bus
	Profile          string
	Password         string
	PingCommand      string
	FailureThreshold int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	BackoffJitter    float64
}

// Supervisor runs the connection state machine for a single profile.
// Requests are strictly serialized: the wire protocol cannot multiplex, so
// a second Execute waits for the first to finish or time out. Different
// profiles never share a Supervisor and never block each other.
type Supervisor struct {
	opts    Options
	backoff *backoff
	kick    chan struct{}

	// reqMu is the per-profile request queue.
	reqMu sync.Mutex

	// mu guards state, conn and failures.
	mu       sync.Mutex
	conn     Conn
	state    State
	failures int
}

// New creates a supervisor in the Disconnected state. Run must be called
// to start connecting.
func New(opts Options) *Supervisor {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}

	return &Supervisor{
		opts:    opts,
		backoff: newBackoff(opts.BackoffBase, opts.BackoffCap, opts.BackoffJitter),
		kick:    make(chan struct{}, 1),
	}
}

// Profile returns the profile name this supervisor serves.
func (s *Supervisor) Profile() string {
	return s.opts.Profile
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives connect/authenticate/reconnect until ctx is canceled, then
// closes the transport.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return
		}

		if err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Str("server", s.opts.Profile).Msg("Connection attempt failed")

			if !s.sleep(ctx, s.backoff.Next()) {
				s.shutdown()
				return
			}
			continue
		}

		s.backoff.Reset()
		log.Info().Str("server", s.opts.Profile).Msg("RCON session established")

		// Hold until the connection is declared dead or we are stopping.
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.kick:
			if !s.sleep(ctx, s.backoff.Next()) {
				s.shutdown()
				return
			}
		}
	}
}

// Execute forwards a raw command to the transport. Fails fast with
// ErrNotConnected unless the profile is fully authenticated.
func (s *Supervisor) Execute(ctx context.Context, command string) (string, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	if s.state != StateAuthenticated || s.conn == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	return conn.Execute(ctx, command)
}

// HealthCheck issues the profile's ping command. Success clears the
// failure counter and restores Authenticated from Degraded; reaching the
// consecutive-failure threshold forces a disconnect and schedules a
// reconnect.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	if (s.state != StateAuthenticated && s.state != StateDegraded) || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	_, err := conn.Execute(ctx, s.opts.PingCommand)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.failures = 0
		if s.state == StateDegraded {
			s.setStateLocked(StateAuthenticated)
		}
		return nil
	}

	s.failures++
	log.Warn().Err(err).
		Str("server", s.opts.Profile).
		Int("failures", s.failures).
		Msg("Health check failed")

	if s.failures >= s.opts.FailureThreshold {
		s.dropLocked()
	} else if s.state == StateAuthenticated {
		s.setStateLocked(StateDegraded)
	}

	return err
}

// connect dials and authenticates one transport.
func (s *Supervisor) connect(ctx context.Context) error {
	s.mu.Lock()
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	conn, err := s.opts.Dial(ctx)
	if err == nil {
		if aerr := conn.Authenticate(ctx, s.opts.Password); aerr != nil {
			_ = conn.Close()
			err = aerr
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.setStateLocked(StateDisconnected)
		return err
	}

	s.conn = conn
	s.failures = 0
	s.setStateLocked(StateAuthenticated)

	return nil
}

// dropLocked tears the connection down and wakes the reconnect loop.
// Caller holds s.mu.
func (s *Supervisor) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.failures = 0
	s.setStateLocked(StateDisconnected)

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// shutdown closes the transport on the way out of Run.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.state != StateDisconnected {
		s.setStateLocked(StateDisconnected)
	}
}

// setStateLocked records a transition and publishes it. Transitions are
// published in the order they happen for a given profile. Caller holds s.mu.
func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next

	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.ConnectionStateChanged{
			When:    time.Now(),
			Profile: s.opts.Profile,
			From:    prev.String(),
			To:      next.String(),
		})
	}
}

// sleep waits d or until ctx is canceled; reports false on cancellation.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
