// Package game provides per-game adapters: the console commands a server
// kind understands and the parser for its player-list output. Adapters
// register themselves at init time and are looked up by profile kind.
package game

import (
	"fmt"
	"sort"
	"sync"
)

// Adapter supplies game-specific behavior for one server kind.
type Adapter interface {
	// Kind returns the adapter identifier (e.g. "minecraft", "palworld").
	Kind() string

	// PlayerListCommand returns the console command that lists online players.
	PlayerListCommand() string

	// SaveCommand returns the command issued by the periodic maintenance
	// task. For games without a save concept this is a benign check.
	SaveCommand() string

	// PingCommand returns a lightweight command used for health checks.
	PingCommand() string

	// ParsePlayerList extracts the set of online player identities from a
	// raw player-list response. A response in an unrecognized format
	// returns a *ParseError.
	ParsePlayerList(text string) ([]string, error)
}

// ParseError reports a player-list response the adapter could not make
// sense of. The polling cycle that hit it is discarded without touching
// the previous roster snapshot.
type ParseError struct {
	Kind   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("game %s: unparseable player list: %s", e.Kind, e.Reason)
}

var (
	mu       sync.RWMutex
	adapters = map[string]Adapter{}
)

// Register adds an adapter to the registry. Called from init().
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	adapters[a.Kind()] = a
}

// Lookup returns the adapter for a kind, or an error listing the known kinds.
func Lookup(kind string) (Adapter, error) {
	mu.RLock()
	defer mu.RUnlock()

	a, ok := adapters[kind]
	if !ok {
		return nil, fmt.Errorf("unknown game kind %q (supported: %v)", kind, kindsLocked())
	}

	return a, nil
}

// Kinds returns the registered adapter identifiers, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return kindsLocked()
}

func kindsLocked() []string {
	out := make([]string, 0, len(adapters))
	for k := range adapters {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}
