package rcon

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer runs a scripted RCON endpoint on a loopback listener. The
// handler receives each decoded request and writes responses directly.
func fakeServer(t *testing.T, handler func(conn net.Conn, p packet)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer func() { _ = conn.Close() }()
				for {
					p, err := readPacket(conn)
					if err != nil {
						return
					}
					handler(conn, p)
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

// sourceAuth mimics a Source-style server: an empty mirror packet followed
// by the auth verdict.
func sourceAuth(password string) func(conn net.Conn, p packet) {
	return func(conn net.Conn, p packet) {
		if p.Type != typeLogin {
			return
		}
		_ = writePacket(conn, packet{ID: p.ID, Type: typeResponse})
		id := p.ID
		if p.Body != password {
			id = -1
		}
		_ = writePacket(conn, packet{ID: id, Type: typeCommand})
	}
}

func TestClientAuthenticate(t *testing.T) {
	t.Parallel()

	addr := fakeServer(t, sourceAuth("hunter2"))

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Authenticate(context.Background(), "hunter2"))
}

func TestClientAuthenticateRejected(t *testing.T) {
	t.Parallel()

	addr := fakeServer(t, sourceAuth("hunter2"))

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	err = client.Authenticate(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestClientExecute(t *testing.T) {
	t.Parallel()

	addr := fakeServer(t, func(conn net.Conn, p packet) {
		if p.Body == "" {
			// sentinel echo
			_ = writePacket(conn, packet{ID: p.ID, Type: typeResponse})
			return
		}
		_ = writePacket(conn, packet{ID: p.ID, Type: typeResponse, Body: "pong"})
	})

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	out, err := client.Execute(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestClientExecuteFragmented(t *testing.T) {
	t.Parallel()

	fragments := []string{"There are 3 players online: ", "Alice, ", "Bob, Carol"}

	addr := fakeServer(t, func(conn net.Conn, p packet) {
		if p.Body == "" {
			_ = writePacket(conn, packet{ID: p.ID, Type: typeResponse})
			return
		}
		for _, frag := range fragments {
			_ = writePacket(conn, packet{ID: p.ID, Type: typeResponse, Body: frag})
		}
	})

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	out, err := client.Execute(context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(fragments, ""), out)
}

func TestClientExecuteTimeout(t *testing.T) {
	t.Parallel()

	// Server swallows everything and never answers.
	addr := fakeServer(t, func(net.Conn, packet) {})

	client, err := Dial(context.Background(), addr, 100*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = client.Execute(context.Background(), "list")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout())
}

func TestClientExecuteUnexpectedID(t *testing.T) {
	t.Parallel()

	addr := fakeServer(t, func(conn net.Conn, p packet) {
		_ = writePacket(conn, packet{ID: 99999, Type: typeResponse, Body: "who asked"})
	})

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = client.Execute(context.Background(), "list")
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestClientDialRefused(t *testing.T) {
	t.Parallel()

	// Grab a port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, 500*time.Millisecond)
	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
}

func TestClientCloseIdempotent(t *testing.T) {
	t.Parallel()

	addr := fakeServer(t, sourceAuth("pw"))

	client, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Execute(context.Background(), "list")
	assert.ErrorIs(t, err, ErrClosed)
}
