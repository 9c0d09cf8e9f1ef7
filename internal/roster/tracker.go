// Package roster polls a server's player list, diffs it against the last
// snapshot and turns the difference into join/leave events and playtime
// session boundaries.
package roster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/wardenbot/warden/internal/events"
	"github.com/wardenbot/warden/internal/game"
)

// Executor issues a console command against one profile. Satisfied by
// *supervisor.Supervisor.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// SessionSink receives session lifecycle notifications. The tracker never
// mutates playtime records itself; it only notifies the single writer.
type SessionSink interface {
	// PlayerSeen reports a new or continuing identity on a profile.
	PlayerSeen(profile, identity string, at time.Time)

	// SessionClosed folds a finished session into the identity's record.
	SessionClosed(profile, identity string, joinedAt time.Time, seconds int64)
}

// Options configures a Tracker.
type Options struct {
	Exec    Executor
	Adapter game.Adapter
	Bus     *events.Bus
	Sink    SessionSink
	Now     func() time.Time
	Profile string
}

// Tracker tracks the roster of one profile across polls.
type Tracker struct {
	opts Options

	mu       sync.Mutex
	prev     map[string]struct{}
	sessions map[string]time.Time
	lastHash uint64
	primed   bool
}

// New creates a tracker with an empty previous snapshot: every identity
// online at the first successful poll is reported as joined.
func New(opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Tracker{
		opts:     opts,
		prev:     map[string]struct{}{},
		sessions: map[string]time.Time{},
	}
}

// Poll requests the player list, parses it and emits join/leave events for
// the delta. Any failure — transport, protocol or parse — skips the cycle
// without touching the previous snapshot: a failed poll must never read as
// "all players left".
func (t *Tracker) Poll(ctx context.Context) error {
	raw, err := t.opts.Exec.Execute(ctx, t.opts.Adapter.PlayerListCommand())
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Identical raw response means an identical roster; skip the parse.
	hash := xxhash.Sum64String(raw)
	if t.primed && hash == t.lastHash {
		return nil
	}

	names, err := t.opts.Adapter.ParsePlayerList(raw)
	if err != nil {
		return err
	}

	curr := make(map[string]struct{}, len(names))
	for _, n := range names {
		curr[n] = struct{}{}
	}

	now := t.opts.Now()
	joined, left := Diff(t.prev, curr)

	for _, identity := range joined {
		t.sessions[identity] = now
		t.opts.Sink.PlayerSeen(t.opts.Profile, identity, now)
		t.opts.Bus.Publish(events.PlayerJoined{
			When:     now,
			Profile:  t.opts.Profile,
			Identity: identity,
		})
	}

	for _, identity := range left {
		joinedAt, seconds := t.closeSessionLocked(identity, now)
		t.opts.Sink.SessionClosed(t.opts.Profile, identity, joinedAt, seconds)
		t.opts.Bus.Publish(events.PlayerLeft{
			When:           now,
			Profile:        t.opts.Profile,
			Identity:       identity,
			SessionSeconds: seconds,
		})
	}

	t.prev = curr
	t.lastHash = hash
	t.primed = true

	return nil
}

// Online returns the open sessions as identity → joinedAt.
func (t *Tracker) Online() map[string]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]time.Time, len(t.sessions))
	for id, at := range t.sessions {
		out[id] = at
	}

	return out
}

// CloseAll folds every open session into the sink. Called on shutdown;
// no PlayerLeft events are emitted since nobody actually left.
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Now()
	for identity := range t.sessions {
		joinedAt, seconds := t.closeSessionLocked(identity, now)
		t.opts.Sink.SessionClosed(t.opts.Profile, identity, joinedAt, seconds)
	}
}

// closeSessionLocked removes the session and returns its start and
// duration in whole seconds. An unknown join time (tracker restarted while
// the player was online) counts as zero rather than a guess.
func (t *Tracker) closeSessionLocked(identity string, now time.Time) (time.Time, int64) {
	joinedAt, ok := t.sessions[identity]
	delete(t.sessions, identity)

	if !ok {
		log.Warn().
			Str("server", t.opts.Profile).
			Str("player", identity).
			Msg("Session close without a recorded join, counting zero playtime")
		return now, 0
	}

	seconds := int64(now.Sub(joinedAt) / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	return joinedAt, seconds
}

// Diff computes the set difference between two roster snapshots. The
// returned slices are sorted and disjoint.
func Diff(prev, curr map[string]struct{}) (joined, left []string) {
	for id := range curr {
		if _, ok := prev[id]; !ok {
			joined = append(joined, id)
		}
	}
	for id := range prev {
		if _, ok := curr[id]; !ok {
			left = append(left, id)
		}
	}

	sort.Strings(joined)
	sort.Strings(left)

	return joined, left
}
