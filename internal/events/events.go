// Package events defines the typed notifications the core publishes for
// external consumers: player presence changes, connection state changes,
// and maintenance outcomes. Ordering is FIFO per profile; cross-profile
// ordering is not guaranteed.
package events

import "time"

// Event is implemented by every notification type.
type Event interface {
	EventProfile() string
}

// PlayerJoined is emitted when a roster poll first observes an identity.
type PlayerJoined struct {
	When     time.Time
	Profile  string
	Identity string
}

// PlayerLeft is emitted when an identity disappears from the roster.
// SessionSeconds is the closed session length, floored to whole seconds;
// zero when the join time was unknown (e.g. after a restart).
type PlayerLeft struct {
	When           time.Time
	Profile        string
	Identity       string
	SessionSeconds int64
}

// ConnectionStateChanged is emitted on every supervisor state transition.
type ConnectionStateChanged struct {
	When    time.Time
	Profile string
	From    string
	To      string
}

// MaintenanceCompleted is emitted after each scheduled maintenance run,
// successful or not.
type MaintenanceCompleted struct {
	When    time.Time
	Profile string
	Task    string
	Outcome string
	OK      bool
}

func (e PlayerJoined) EventProfile() string           { return e.Profile }
func (e PlayerLeft) EventProfile() string             { return e.Profile }
func (e ConnectionStateChanged) EventProfile() string { return e.Profile }
func (e MaintenanceCompleted) EventProfile() string   { return e.Profile }

// Bus is the channel between the core and its notifiers. Publish blocks
// when the buffer is full rather than dropping: state notifications must
// never be lost silently.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}

	return &Bus{ch: make(chan Event, buffer)}
}

// Publish enqueues an event.
func (b *Bus) Publish(e Event) {
	b.ch <- e
}

// Events returns the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the bus. Publishers must be stopped first.
func (b *Bus) Close() {
	close(b.ch)
}
