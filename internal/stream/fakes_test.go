package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/models"
)

var (
	errFakeWrite  = errors.New("fake write failure")
	errPeerClosed = errors.New("websocket: close 1000 (normal)")
)

// fakeConn records everything written to it.
type fakeConn struct {
	mu          sync.Mutex
	msgs        []models.Message
	pings       int
	closed      bool
	terminated  bool
	closeCode   int
	closeReason string
	failWrites  bool
	failPing    bool
	onPong      func()
	done        chan struct{}
	hangup      chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{}), hangup: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failWrites {
		return errFakeWrite
	}
	c.msgs = append(c.msgs, v.(models.Message))
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failPing {
		return errFakeWrite
	}
	c.pings++
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	return nil
}

func (c *fakeConn) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.terminated = true
	close(c.done)
	return nil
}

func (c *fakeConn) ReadLoop(onPong func()) error {
	c.mu.Lock()
	c.onPong = onPong
	c.mu.Unlock()
	select {
	case <-c.done:
		return io.EOF
	case <-c.hangup:
		return errPeerClosed
	}
}

// Hangup makes the read loop return as if the peer went away, without
// releasing the connection.
func (c *fakeConn) Hangup() {
	close(c.hangup)
}

// Pong simulates a pong from the peer. It reports false if the read loop
// has not started yet.
func (c *fakeConn) Pong() bool {
	c.mu.Lock()
	fn := c.onPong
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (c *fakeConn) SetFailWrites(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = v
}

func (c *fakeConn) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.msgs...)
}

func (c *fakeConn) Types() []models.MessageType {
	var out []models.MessageType
	for _, m := range c.Messages() {
		out = append(out, m.Type)
	}
	return out
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

func (c *fakeConn) State() (closed, terminated bool, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.terminated, c.closeCode
}

func (c *fakeConn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// fakeUsers is a static roster.
type fakeUsers struct {
	users []models.User
	err   error
}

func (f *fakeUsers) List(ctx context.Context) ([]models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users, nil
}

// fakeTokens maps literal tokens to claims.
type fakeTokens map[string]*auth.Claims

func (f fakeTokens) ValidateToken(token string) (*auth.Claims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

// healthRecorder captures observed fleet health.
type healthRecorder struct {
	mu   sync.Mutex
	seen []models.SystemHealth
}

func (h *healthRecorder) ObserveHealth(s models.SystemHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, s)
}

func (h *healthRecorder) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
