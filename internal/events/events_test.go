package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(8)
	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	bus.Publish(PlayerJoined{When: when, Profile: "main", Identity: "alice"})
	bus.Publish(PlayerLeft{When: when.Add(125 * time.Second), Profile: "main", Identity: "alice", SessionSeconds: 125})
	bus.Close()

	var got []Event
	for ev := range bus.Events() {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	joined, ok := got[0].(PlayerJoined)
	require.True(t, ok)
	assert.Equal(t, "alice", joined.Identity)

	left, ok := got[1].(PlayerLeft)
	require.True(t, ok)
	assert.Equal(t, int64(125), left.SessionSeconds)
}

func TestBusPublishBlocksInsteadOfDropping(t *testing.T) {
	t.Parallel()

	bus := NewBus(1)
	bus.Publish(ConnectionStateChanged{Profile: "main", From: "disconnected", To: "connecting"})

	published := make(chan struct{})
	go func() {
		defer close(published)
		bus.Publish(ConnectionStateChanged{Profile: "main", From: "connecting", To: "authenticated"})
	}()

	select {
	case <-published:
		t.Fatal("publish should block on a full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	// Draining one slot unblocks the publisher; nothing was dropped.
	<-bus.Events()
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish did not complete after drain")
	}

	ev := <-bus.Events()
	sc, ok := ev.(ConnectionStateChanged)
	require.True(t, ok)
	assert.Equal(t, "authenticated", sc.To)
}

func TestEventProfile(t *testing.T) {
	t.Parallel()

	for _, ev := range []Event{
		PlayerJoined{Profile: "main"},
		PlayerLeft{Profile: "main"},
		ConnectionStateChanged{Profile: "main"},
		MaintenanceCompleted{Profile: "main"},
	} {
		assert.Equal(t, "main", ev.EventProfile())
	}
}
