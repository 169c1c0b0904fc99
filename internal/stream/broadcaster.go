// Package stream pushes fleet state to authenticated WebSocket subscribers.
//
// The Broadcaster owns the session registry and two periodic loops: the
// update tick, which advances the simulation and fans out every change, and
// the liveness probe, which pings sessions and reaps those that stop
// answering. A newly admitted session first receives a replay of the current
// state so it never needs a separate bulk fetch.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/internal/nodes"
)

// ErrClosed is returned by Admit after Cleanup.
var ErrClosed = errors.New("broadcaster is closed")

// NodeStore is the simulated fleet.
type NodeStore interface {
	List() []models.Node
	Tick()
	Upsert(n models.Node) models.Node
	Remove(id string) bool
}

// AlertEngine evaluates rules and lists unacknowledged alerts.
type AlertEngine interface {
	Evaluate(node models.Node) []models.Alert
	ActiveAlerts() []models.Alert
}

// MetricsRecorder keeps per-node history.
type MetricsRecorder interface {
	RecordNodeSample(node models.Node)
}

// UserLister lists accounts without secrets.
type UserLister interface {
	List(ctx context.Context) ([]models.User, error)
}

// TokenValidator verifies stream access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// HealthObserver is told about every fleet health result the tick computes.
type HealthObserver interface {
	ObserveHealth(h models.SystemHealth)
}

// Deps are the collaborators of a Broadcaster. Metrics and Health may be nil.
type Deps struct {
	Nodes   NodeStore
	Alerts  AlertEngine
	Metrics MetricsRecorder
	Users   UserLister
	Tokens  TokenValidator
	Health  HealthObserver
}

// Config holds the loop timings.
type Config struct {
	UpdateInterval time.Duration
	PingInterval   time.Duration
	// PingTimeout is how long an unanswered session may stay silent before
	// the probe terminates it.
	PingTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 5 * time.Second,
		PingInterval:   10 * time.Second,
		PingTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// Broadcaster fans out fleet updates to every open session.
type Broadcaster struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]*Session
	closed   bool

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewBroadcaster creates a Broadcaster. Zero timings fall back to DefaultConfig.
func NewBroadcaster(deps Deps, cfg Config, logger *slog.Logger) *Broadcaster {
	def := DefaultConfig()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		upgrader: newUpgrader(),
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
		stopChan: make(chan struct{}),
	}
}

// Admit registers conn as userID's session, superseding any session that
// user already has, and replays the current state to it. On replay failure
// the connection is closed with an internal error code and not registered.
func (b *Broadcaster) Admit(ctx context.Context, conn Conn, userID string) (*Session, error) {
	sess := newSession(uuid.New().String(), userID, conn, b.now())

	// Hold the write lock across registration and replay so broadcasts that
	// race with admission queue behind the replay instead of preceding it.
	sess.writeMu.Lock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sess.writeMu.Unlock()
		_ = conn.Close(CloseGoingAway, "server shutting down")
		return nil, ErrClosed
	}
	old := b.byUser[userID]
	if old != nil {
		delete(b.sessions, old.ID)
	}
	sess.setState(StateOpen)
	b.sessions[sess.ID] = sess
	b.byUser[userID] = sess
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("superseding stream session",
			"user_id", userID,
			"old_session_id", old.ID,
			"session_id", sess.ID,
		)
		b.closeSession(old, CloseSuperseded, "superseded by a new connection")
	}

	err := b.replay(ctx, sess)
	sess.writeMu.Unlock()
	if err != nil {
		b.logger.Error("stream replay failed", "session_id", sess.ID, "user_id", userID, "error", err)
		b.unregister(sess)
		b.closeSession(sess, CloseInternalError, "error sending initial data")
		return nil, err
	}

	b.logger.Info("stream session opened", "session_id", sess.ID, "user_id", userID)
	go b.readPump(sess)
	return sess, nil
}

// replay writes the current state to a session whose write lock is held:
// every node, the fleet status, the fleet health, every active alert and
// the account roster, in that order.
func (b *Broadcaster) replay(ctx context.Context, sess *Session) error {
	fleet := b.deps.Nodes.List()
	now := b.now()

	msgs := make([]models.Message, 0, len(fleet)+3)
	for _, n := range fleet {
		msgs = append(msgs, models.NodeUpdate(n))
	}
	msgs = append(msgs,
		models.SystemStatusUpdate(nodes.Status(fleet, now)),
		models.HealthUpdate(nodes.Health(fleet, now)),
	)
	for _, a := range b.deps.Alerts.ActiveAlerts() {
		msgs = append(msgs, models.AlertUpdate(a))
	}

	roster, err := b.roster(ctx)
	if err != nil {
		return err
	}
	msgs = append(msgs, models.UsersUpdate(roster))

	for _, m := range msgs {
		if err := sess.conn.WriteJSON(m); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) roster(ctx context.Context) ([]models.User, error) {
	if b.deps.Users == nil {
		return []models.User{}, nil
	}
	return b.deps.Users.List(ctx)
}

// readPump keeps the session's inbound side running so pongs and close
// frames are processed. It removes the session and releases its transport
// once the peer goes away.
func (b *Broadcaster) readPump(sess *Session) {
	err := sess.conn.ReadLoop(func() {
		sess.markAlive(b.now())
	})
	if b.unregister(sess) {
		b.logger.Info("stream session disconnected", "session_id", sess.ID, "user_id", sess.UserID, "reason", err)
	}
	// A hijacked connection is no longer closed by the HTTP server.
	if sess.beginClose() {
		_ = sess.conn.Terminate()
	}
	sess.setState(StateClosed)
}

// Broadcast sends msg to every open session. A failed send drops only that
// session. Sends run one after another, so a stalled peer holds the caller
// for at most the write timeout before it is dropped.
func (b *Broadcaster) Broadcast(msg models.Message) {
	for _, sess := range b.openSessions() {
		if err := sess.send(msg); err != nil {
			b.drop(sess, "send failed", err)
		}
	}
}

func (b *Broadcaster) openSessions() []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		if s.State() == StateOpen {
			out = append(out, s)
		}
	}
	return out
}

// Tick advances the fleet one step and publishes the result. For each node
// in turn it broadcasts the node's new alerts and then the node itself; a
// single fleet status and health follow once every node is done. Subscribers
// can therefore see a node update before the status that reflects it.
func (b *Broadcaster) Tick() {
	b.deps.Nodes.Tick()

	for _, n := range b.deps.Nodes.List() {
		for _, a := range b.deps.Alerts.Evaluate(n) {
			b.Broadcast(models.AlertUpdate(a))
		}
		if b.deps.Metrics != nil {
			b.deps.Metrics.RecordNodeSample(n)
		}
		b.Broadcast(models.NodeUpdate(n))
	}

	b.publishFleetSummary()
}

func (b *Broadcaster) publishFleetSummary() {
	fleet := b.deps.Nodes.List()
	now := b.now()
	health := nodes.Health(fleet, now)

	b.Broadcast(models.SystemStatusUpdate(nodes.Status(fleet, now)))
	b.Broadcast(models.HealthUpdate(health))
	if b.deps.Health != nil {
		b.deps.Health.ObserveHealth(health)
	}
}

// Probe checks liveness. A session that did not answer the previous ping and
// has been silent for longer than PingTimeout is terminated; every other
// session is marked unanswered and pinged again.
func (b *Broadcaster) Probe() {
	now := b.now()
	for _, sess := range b.openSessions() {
		alive, lastSeen := sess.Alive()
		if !alive && now.Sub(lastSeen) > b.cfg.PingTimeout {
			b.drop(sess, "liveness timeout", nil)
			continue
		}
		sess.markProbed()
		if err := sess.conn.Ping(); err != nil {
			b.drop(sess, "ping failed", err)
		}
	}
}

// UpsertNode stores a node and broadcasts it.
func (b *Broadcaster) UpsertNode(n models.Node) models.Node {
	stored := b.deps.Nodes.Upsert(n)
	b.Broadcast(models.NodeUpdate(stored))
	return stored
}

// RemoveNode deletes a node and broadcasts the new fleet status. It
// reports false if the node was unknown.
func (b *Broadcaster) RemoveNode(id string) bool {
	if !b.deps.Nodes.Remove(id) {
		return false
	}
	fleet := b.deps.Nodes.List()
	b.Broadcast(models.SystemStatusUpdate(nodes.Status(fleet, b.now())))
	return true
}

// RuleUpdated broadcasts a changed alert rule.
func (b *Broadcaster) RuleUpdated(rule models.AlertRule) {
	b.Broadcast(models.AlertRuleUpdate(rule))
}

// AlertAcknowledged broadcasts an alert whose acknowledgement changed.
func (b *Broadcaster) AlertAcknowledged(alert models.Alert) {
	b.Broadcast(models.AlertUpdate(alert))
}

// UsersUpdated broadcasts the current account roster.
func (b *Broadcaster) UsersUpdated(ctx context.Context) {
	roster, err := b.roster(ctx)
	if err != nil {
		b.logger.Error("listing users for broadcast", "error", err)
		return
	}
	b.Broadcast(models.UsersUpdate(roster))
}

// Run drives the update tick and the liveness probe until ctx is cancelled
// or Stop is called. The two loops run independently of each other.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = true
	b.stopChan = make(chan struct{})
	stop := b.stopChan
	b.runMu.Unlock()

	b.logger.Info("starting stream loops",
		"update_interval", b.cfg.UpdateInterval,
		"ping_interval", b.cfg.PingInterval,
		"ping_timeout", b.cfg.PingTimeout,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.loop(ctx, stop, b.cfg.UpdateInterval, b.Tick)
	}()
	go func() {
		defer wg.Done()
		b.loop(ctx, stop, b.cfg.PingInterval, b.Probe)
	}()
	wg.Wait()

	b.runMu.Lock()
	b.running = false
	b.runMu.Unlock()

	select {
	case <-stop:
		b.logger.Info("stream loops stopped")
		return nil
	default:
		b.logger.Info("stream loops stopped by context")
		return ctx.Err()
	}
}

func (b *Broadcaster) loop(ctx context.Context, stop <-chan struct{}, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop ends the loops started by Run.
func (b *Broadcaster) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.running {
		close(b.stopChan)
		b.running = false
	}
}

// Cleanup stops the loops, closes every session with a going-away code and
// refuses further admissions.
func (b *Broadcaster) Cleanup() {
	b.Stop()

	b.mu.Lock()
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*Session)
	b.byUser = make(map[string]*Session)
	b.mu.Unlock()

	for _, s := range sessions {
		b.closeSession(s, CloseGoingAway, "server shutting down")
	}
	b.logger.Info("stream closed", "sessions", len(sessions))
}

// Shutdown implements the shutdown coordinator's component contract.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.Cleanup()
	return nil
}

// Name identifies the broadcaster to the shutdown coordinator.
func (b *Broadcaster) Name() string {
	return "stream-broadcaster"
}

// Sessions returns the registered sessions.
func (b *Broadcaster) Sessions() []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of registered sessions.
func (b *Broadcaster) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// SessionFor returns userID's registered session, if any.
func (b *Broadcaster) SessionFor(userID string) (*Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.byUser[userID]
	return s, ok
}

// unregister removes sess from the registry and reports whether it was
// still registered.
func (b *Broadcaster) unregister(sess *Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sessions[sess.ID] != sess {
		return false
	}
	delete(b.sessions, sess.ID)
	if b.byUser[sess.UserID] == sess {
		delete(b.byUser, sess.UserID)
	}
	return true
}

// drop removes and terminates a session after a transport failure.
func (b *Broadcaster) drop(sess *Session, reason string, err error) {
	if !b.unregister(sess) {
		return
	}
	b.logger.Warn("dropping stream session",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"reason", reason,
		"error", err,
	)
	if sess.beginClose() {
		_ = sess.conn.Terminate()
		sess.setState(StateClosed)
	}
}

// closeSession performs a close handshake with the peer.
func (b *Broadcaster) closeSession(sess *Session, code int, reason string) {
	if !sess.beginClose() {
		return
	}
	if err := sess.conn.Close(code, reason); err != nil {
		b.logger.Debug("closing stream session", "session_id", sess.ID, "error", err)
	}
	sess.setState(StateClosed)
}
