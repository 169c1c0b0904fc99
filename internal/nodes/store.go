// Package nodes holds the authoritative in-memory fleet and advances it on a
// simulation tick.
package nodes

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// SimulatorConfig bounds the random walk applied on every tick.
type SimulatorConfig struct {
	// FlipProbability is the chance per tick that a node toggles online/offline.
	FlipProbability float64
	// Jitter values are the maximum absolute change per tick, in percentage points.
	CPUJitter     float64
	MemoryJitter  float64
	NetworkJitter float64
}

// DefaultSimulatorConfig returns the reference simulation parameters.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		FlipProbability: 0.1,
		CPUJitter:       10,
		MemoryJitter:    7.5,
		NetworkJitter:   12.5,
	}
}

// Store holds node records in insertion order.
type Store struct {
	mu    sync.RWMutex
	order []string
	nodes map[string]*models.Node

	cfg SimulatorConfig
	rng *rand.Rand
	now func() time.Time

	lastTick time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRand sets the random source used by Tick.
func WithRand(rng *rand.Rand) Option {
	return func(s *Store) {
		s.rng = rng
	}
}

// WithClock sets the clock used for LastUpdated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSimulatorConfig overrides the random walk parameters.
func WithSimulatorConfig(cfg SimulatorConfig) Option {
	return func(s *Store) {
		s.cfg = cfg
	}
}

// NewStore creates an empty node store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes: make(map[string]*models.Node),
		cfg:   DefaultSimulatorConfig(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// DefaultNodes returns the reference fleet. Each node starts in a state that
// trips exactly one of the default alert rules.
func DefaultNodes(now time.Time) []models.Node {
	return []models.Node{
		{
			ID: "1", Name: "Node-1", IP: "192.168.1.101",
			Type: models.NodeTypeVoice, Status: models.NodeStatusOnline,
			Load:        models.NodeLoad{CPU: 85, Memory: 45, Network: 30},
			LastUpdated: now,
		},
		{
			ID: "2", Name: "Node-2", IP: "192.168.1.102",
			Type: models.NodeTypeData, Status: models.NodeStatusOnline,
			Load:        models.NodeLoad{CPU: 25, Memory: 90, Network: 40},
			LastUpdated: now,
		},
		{
			ID: "3", Name: "Node-3", IP: "192.168.1.103",
			Type: models.NodeTypeVoice, Status: models.NodeStatusOffline,
			Load:        models.NodeLoad{CPU: 45, Memory: 55, Network: 20},
			LastUpdated: now,
		},
		{
			ID: "4", Name: "Node-4", IP: "192.168.1.104",
			Type: models.NodeTypeData, Status: models.NodeStatusOnline,
			Load:        models.NodeLoad{CPU: 30, Memory: 40, Network: 95},
			LastUpdated: now,
		},
	}
}

// Seed inserts nodes, replacing any with the same ID in place.
func (s *Store) Seed(nodes ...models.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.upsertLocked(n)
	}
}

// Upsert inserts or replaces a node and returns the stored copy.
func (s *Store) Upsert(n models.Node) models.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(n)
}

func (s *Store) upsertLocked(n models.Node) models.Node {
	n = n.Clone()
	n.Load = clampLoad(n.Load)
	if n.LastUpdated.IsZero() {
		n.LastUpdated = s.now()
	}
	if _, ok := s.nodes[n.ID]; !ok {
		s.order = append(s.order, n.ID)
	}
	s.nodes[n.ID] = &n
	return n.Clone()
}

// Remove deletes a node. It reports false if the node was unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	for i, nid := range s.order {
		if nid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of a node.
func (s *Store) Get(id string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return models.Node{}, false
	}
	return n.Clone(), true
}

// List returns a snapshot of every node in insertion order.
func (s *Store) List() []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Tick advances every node one simulation step. It does not notify anyone;
// callers read the post-tick state with List.
func (s *Store) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range s.order {
		n := s.nodes[id]
		if s.rng.Float64() < s.cfg.FlipProbability {
			if n.Status == models.NodeStatusOnline {
				n.Status = models.NodeStatusOffline
			} else {
				n.Status = models.NodeStatusOnline
			}
		}
		n.Load = clampLoad(models.NodeLoad{
			CPU:     n.Load.CPU + s.jitter(s.cfg.CPUJitter),
			Memory:  n.Load.Memory + s.jitter(s.cfg.MemoryJitter),
			Network: n.Load.Network + s.jitter(s.cfg.NetworkJitter),
		})
		n.LastUpdated = now
	}
	s.lastTick = now
}

// LastTick returns the time of the most recent Tick, zero if none ran yet.
func (s *Store) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// jitter returns a uniform value in [-max, max).
func (s *Store) jitter(max float64) float64 {
	return (s.rng.Float64()*2 - 1) * max
}

func clampLoad(l models.NodeLoad) models.NodeLoad {
	return models.NodeLoad{
		CPU:     models.Clamp(l.CPU),
		Memory:  models.Clamp(l.Memory),
		Network: models.Clamp(l.Network),
	}
}
