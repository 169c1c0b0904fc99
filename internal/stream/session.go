package stream

import (
	"sync"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the live state of one authenticated stream connection.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn Conn

	// writeMu serialises frames on the connection.
	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	alive    bool
	lastSeen time.Time
}

func newSession(id, userID string, conn Conn, now time.Time) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		ConnectedAt: now,
		conn:        conn,
		state:       StateConnecting,
		alive:       true,
		lastSeen:    now,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// beginClose moves an Open or Connecting session to Closing. It reports
// false if the session was already closing or closed.
func (s *Session) beginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= StateClosing {
		return false
	}
	s.state = StateClosing
	return true
}

// Alive reports whether the last probe was answered, and when the peer was
// last heard from.
func (s *Session) Alive() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive, s.lastSeen
}

func (s *Session) markAlive(now time.Time) {
	s.mu.Lock()
	s.alive = true
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) markProbed() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
}

func (s *Session) send(msg models.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}
