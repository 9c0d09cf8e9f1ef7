package rcon

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 5 * time.Second

// Client is a single RCON connection. At most one request is in flight at
// any time; concurrent callers serialize on an internal mutex because the
// protocol cannot multiplex outstanding requests — fragment reassembly
// depends on response ordering.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	mu     sync.Mutex
	nextID int32
	closed bool
}

// Dial opens a TCP connection to an RCON endpoint. The returned client is
// not yet authenticated.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}

	return &Client{conn: conn, timeout: timeout, nextID: 1}, nil
}

// Authenticate sends the password as a login packet. A response with
// request id -1 means the credential was rejected. Must succeed before
// Execute is called.
func (c *Client) Authenticate(ctx context.Context, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	id := c.allocID()
	if err := c.exchangeSetup(ctx); err != nil {
		return err
	}

	if err := writePacket(c.conn, packet{ID: id, Type: typeLogin, Body: password}); err != nil {
		c.teardown()
		return &TransportError{Op: "auth write", Err: err}
	}

	// Source-style servers mirror the request with an empty type-0 packet
	// before the actual auth response; skip at most one of those.
	for i := 0; i < 2; i++ {
		p, err := c.readResponse("auth read")
		if err != nil {
			return err
		}

		if p.ID == -1 {
			return ErrAuthFailed
		}

		if p.Type == typeResponse && p.ID == id && i == 0 {
			continue
		}

		return nil
	}

	return nil
}

// Execute sends a command and returns the full response text. Long
// responses split across several packets are detected with a trailing
// sentinel request: an empty command with a distinct id is sent right after
// the real one, and fragments are collected until the sentinel's echo
// arrives.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	id := c.allocID()
	sentinel := c.allocID()

	if err := c.exchangeSetup(ctx); err != nil {
		return "", err
	}

	if err := writePacket(c.conn, packet{ID: id, Type: typeCommand, Body: command}); err != nil {
		c.teardown()
		return "", &TransportError{Op: "write", Err: err}
	}
	if err := writePacket(c.conn, packet{ID: sentinel, Type: typeCommand}); err != nil {
		c.teardown()
		return "", &TransportError{Op: "write sentinel", Err: err}
	}

	var sb strings.Builder
	for {
		p, err := c.readResponse("read")
		if err != nil {
			return "", err
		}

		switch p.ID {
		case id:
			sb.WriteString(p.Body)
		case sentinel:
			return sb.String(), nil
		default:
			c.teardown()
			return "", &ProtocolError{Reason: "unexpected request id in response"}
		}
	}
}

// Close releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	return c.teardown()
}

// allocID returns a fresh positive request id. Wraps around well before
// int32 overflow; ids only need to be unique among outstanding requests.
func (c *Client) allocID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID > 1<<30 {
		c.nextID = 1
	}

	return id
}

// exchangeSetup arms the connection deadline for one request/response
// exchange, honoring an earlier context deadline when present.
func (c *Client) exchangeSetup(ctx context.Context) error {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetDeadline(deadline); err != nil {
		c.teardown()
		return &TransportError{Op: "set deadline", Err: err}
	}

	return nil
}

// readResponse reads one packet, converting failures into the error
// taxonomy. Any failure poisons the stream, so the socket is torn down.
func (c *Client) readResponse(op string) (packet, error) {
	p, err := readPacket(c.conn)
	if err != nil {
		c.teardown()
		if perr, ok := err.(*ProtocolError); ok {
			return packet{}, perr
		}
		return packet{}, &TransportError{Op: op, Err: err}
	}

	return p, nil
}

// teardown closes the socket under c.mu.
func (c *Client) teardown() error {
	c.closed = true
	return c.conn.Close()
}
