// Package metrics keeps bounded per-node and system-wide metric history and
// answers range queries over it.
package metrics

import (
	"sync"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// DefaultCapacity is the number of points kept per series.
const DefaultCapacity = 1000

// Range is a named lookback window.
type Range string

const (
	RangeHour  Range = "1h"
	RangeDay   Range = "24h"
	RangeWeek  Range = "7d"
	RangeMonth Range = "30d"
)

// DefaultRange is used when a query names no known range.
const DefaultRange = RangeHour

var rangeDurations = map[Range]time.Duration{
	RangeHour:  time.Hour,
	RangeDay:   24 * time.Hour,
	RangeWeek:  7 * 24 * time.Hour,
	RangeMonth: 30 * 24 * time.Hour,
}

// LookupRange reports the window of a known range name.
func LookupRange(name string) (time.Duration, bool) {
	d, ok := rangeDurations[Range(name)]
	return d, ok
}

// ParseRange maps a range name to its window. Unknown names fall back to
// one hour.
func ParseRange(name string) (Range, time.Duration) {
	if d, ok := LookupRange(name); ok {
		return Range(name), d
	}
	return DefaultRange, rangeDurations[DefaultRange]
}

// Result is the answer to a range query.
type Result struct {
	NodeMetrics   []models.NodeMetrics   `json:"nodeMetrics"`
	SystemMetrics []models.SystemMetrics `json:"systemMetrics"`
}

type nodeSeries struct {
	name    string
	cpu     *ring[models.TimeSeriesPoint]
	memory  *ring[models.TimeSeriesPoint]
	network *ring[models.TimeSeriesPoint]
}

// Aggregator records node samples and system snapshots.
//
// Node history is keyed by address, so a node that changes address starts a
// fresh series while one that changes id keeps its history.
type Aggregator struct {
	mu       sync.RWMutex
	capacity int
	now      func() time.Time

	order  []string
	series map[string]*nodeSeries
	system *ring[models.SystemMetrics]
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCapacity sets the per-series cap.
func WithCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithClock sets the clock used for sample timestamps and range cutoffs.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		capacity: DefaultCapacity,
		now:      time.Now,
		series:   make(map[string]*nodeSeries),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.system = newRing[models.SystemMetrics](a.capacity)
	return a
}

// RecordNodeSample appends one point per metric for node and then appends a
// fresh system snapshot.
func (a *Aggregator) RecordNodeSample(node models.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.now()
	s, ok := a.series[node.IP]
	if !ok {
		s = &nodeSeries{
			name:    node.Name,
			cpu:     newRing[models.TimeSeriesPoint](a.capacity),
			memory:  newRing[models.TimeSeriesPoint](a.capacity),
			network: newRing[models.TimeSeriesPoint](a.capacity),
		}
		a.series[node.IP] = s
		a.order = append(a.order, node.IP)
	}
	s.cpu.Add(models.TimeSeriesPoint{Timestamp: ts, Value: node.Load.CPU})
	s.memory.Add(models.TimeSeriesPoint{Timestamp: ts, Value: node.Load.Memory})
	s.network.Add(models.TimeSeriesPoint{Timestamp: ts, Value: node.Load.Network})

	a.system.Add(a.snapshotLocked(ts))
}

// snapshotLocked averages the latest value of every tracked series. Every
// tracked node counts as online.
func (a *Aggregator) snapshotLocked(ts time.Time) models.SystemMetrics {
	snap := models.SystemMetrics{
		TotalNodes:  len(a.order),
		OnlineNodes: len(a.order),
		Timestamp:   ts,
	}
	if len(a.order) == 0 {
		return snap
	}

	var cpu, mem, net float64
	for _, key := range a.order {
		s := a.series[key]
		cpu += latest(s.cpu)
		mem += latest(s.memory)
		net += latest(s.network)
	}
	n := float64(len(a.order))
	snap.AverageCPU = cpu / n
	snap.AverageMemory = mem / n
	snap.AverageNetwork = net / n
	return snap
}

func latest(r *ring[models.TimeSeriesPoint]) float64 {
	p, ok := r.Last()
	if !ok {
		return 0
	}
	return p.Value
}

// Latest returns the most recently recorded system snapshot.
func (a *Aggregator) Latest() (models.SystemMetrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.system.Last()
}

// Metrics returns every point no older than the named range. The cutoff is
// inclusive and future-dated points are kept.
func (a *Aggregator) Metrics(rangeName string) Result {
	_, window := ParseRange(rangeName)

	a.mu.RLock()
	defer a.mu.RUnlock()

	cutoff := a.now().Add(-window)
	pointInRange := func(p models.TimeSeriesPoint) bool { return !p.Timestamp.Before(cutoff) }

	res := Result{
		NodeMetrics: make([]models.NodeMetrics, 0, len(a.order)),
		SystemMetrics: a.system.Filter(func(m models.SystemMetrics) bool {
			return !m.Timestamp.Before(cutoff)
		}),
	}
	for _, key := range a.order {
		s := a.series[key]
		res.NodeMetrics = append(res.NodeMetrics, models.NodeMetrics{
			NodeID:   key,
			NodeName: s.name,
			CPU:      s.cpu.Filter(pointInRange),
			Memory:   s.memory.Filter(pointInRange),
			Network:  s.network.Filter(pointInRange),
		})
	}
	return res
}

// SystemMetrics returns only the system series for the named range.
func (a *Aggregator) SystemMetrics(rangeName string) []models.SystemMetrics {
	_, window := ParseRange(rangeName)

	a.mu.RLock()
	defer a.mu.RUnlock()

	cutoff := a.now().Add(-window)
	return a.system.Filter(func(m models.SystemMetrics) bool {
		return !m.Timestamp.Before(cutoff)
	})
}

// TrackedNodes returns the number of node series.
func (a *Aggregator) TrackedNodes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}
