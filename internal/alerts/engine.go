// Package alerts evaluates threshold rules against node state and keeps the
// resulting alert table.
package alerts

import (
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/pkg/logger"
)

// Notifier receives rule and alert changes that happen outside the update
// tick, so stream subscribers stay in sync.
type Notifier interface {
	RuleUpdated(rule models.AlertRule)
	AlertAcknowledged(alert models.Alert)
}

// Engine owns the rule table and the alert table.
type Engine struct {
	mu         sync.RWMutex
	ruleOrder  []string
	rules      map[string]models.AlertRule
	alertOrder []string
	alerts     map[string]*models.Alert

	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for alert and acknowledgement timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithRules replaces the default rule set.
func WithRules(rules []models.AlertRule) Option {
	return func(e *Engine) {
		e.ruleOrder = nil
		e.rules = make(map[string]models.AlertRule, len(rules))
		for _, r := range rules {
			e.putRuleLocked(r)
		}
	}
}

// NewEngine creates an engine seeded with DefaultRules unless WithRules is given.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:  make(map[string]models.AlertRule),
		alerts: make(map[string]*models.Alert),
		now:    time.Now,
		logger: logger.Discard(),
	}
	for _, r := range DefaultRules() {
		e.putRuleLocked(r)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotifier sets the change notifier after construction. The broadcaster
// depends on the engine, so it is usually attached this way.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Evaluate runs every enabled rule against node, stores an alert for each
// rule that matches and returns the new alerts in rule order. Rules with an
// unknown type or condition are skipped.
func (e *Engine) Evaluate(node models.Node) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []models.Alert
	for _, id := range e.ruleOrder {
		rule := e.rules[id]
		if !rule.Enabled {
			continue
		}
		value, ok := metricValue(rule.Type, node)
		if !ok {
			continue
		}
		matched, ok := compare(rule.Condition, value, rule.Threshold)
		if !ok || !matched {
			continue
		}

		alert := models.Alert{
			ID:        uuid.New().String(),
			RuleID:    rule.ID,
			NodeID:    node.ID,
			Type:      rule.Type,
			Severity:  rule.Severity,
			Message:   rule.Name + ": " + formatValue(value) + "% on node " + node.Name,
			Timestamp: e.now(),
		}
		e.alerts[alert.ID] = &alert
		e.alertOrder = append(e.alertOrder, alert.ID)
		fired = append(fired, alert.Clone())

		e.logger.Debug("alert triggered",
			"node_id", node.ID,
			"rule_id", rule.ID,
			"value", value,
		)
	}

	if len(fired) > 0 {
		e.logger.Info("generated alerts", "node_id", node.ID, "node_name", node.Name, "count", len(fired))
	}
	return fired
}

func metricValue(t models.RuleType, node models.Node) (float64, bool) {
	switch t {
	case models.RuleTypeCPU:
		return node.Load.CPU, true
	case models.RuleTypeMemory:
		return node.Load.Memory, true
	case models.RuleTypeNetwork:
		return node.Load.Network, true
	case models.RuleTypeStatus:
		if node.Online() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func compare(c models.Condition, value, threshold float64) (bool, bool) {
	switch c {
	case models.ConditionGreaterThan:
		return value > threshold, true
	case models.ConditionLessThan:
		return value < threshold, true
	case models.ConditionEqual:
		return value == threshold, true
	}
	return false, false
}

// formatValue renders a metric with at most two decimals.
func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Alerts returns every stored alert in creation order.
func (e *Engine) Alerts() []models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Alert, 0, len(e.alertOrder))
	for _, id := range e.alertOrder {
		out = append(out, e.alerts[id].Clone())
	}
	return out
}

// Alert returns a copy of one alert.
func (e *Engine) Alert(id string) (models.Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.alerts[id]
	if !ok {
		return models.Alert{}, false
	}
	return a.Clone(), true
}

// ActiveAlerts returns unacknowledged alerts with critical ones first and
// the newest first within each group. Alerts with equal keys keep their
// creation order.
func (e *Engine) ActiveAlerts() []models.Alert {
	e.mu.RLock()
	active := make([]models.Alert, 0, len(e.alertOrder))
	for _, id := range e.alertOrder {
		if a := e.alerts[id]; !a.Acknowledged {
			active = append(active, a.Clone())
		}
	}
	e.mu.RUnlock()

	slices.SortStableFunc(active, func(a, b models.Alert) int {
		ac, bc := a.Severity == models.SeverityCritical, b.Severity == models.SeverityCritical
		if ac != bc {
			if ac {
				return -1
			}
			return 1
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	return active
}

// Acknowledge marks an alert acknowledged by userID. It returns false for an
// unknown id. The first acknowledgement is kept; later calls succeed without
// changing the record or notifying again.
func (e *Engine) Acknowledge(alertID, userID string) bool {
	e.mu.Lock()
	a, ok := e.alerts[alertID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	if a.Acknowledged {
		e.mu.Unlock()
		return true
	}
	at := e.now()
	a.Acknowledged = true
	a.AcknowledgedBy = userID
	a.AcknowledgedAt = &at
	acked := a.Clone()
	notifier := e.notifier
	e.mu.Unlock()

	e.logger.Info("alert acknowledged", "alert_id", alertID, "user_id", userID)
	if notifier != nil {
		notifier.AlertAcknowledged(acked)
	}
	return true
}

// DeleteAlert removes an alert. It reports false if the id is unknown.
func (e *Engine) DeleteAlert(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.alerts[id]; !ok {
		return false
	}
	delete(e.alerts, id)
	e.alertOrder = slices.DeleteFunc(e.alertOrder, func(s string) bool { return s == id })
	return true
}

// ClearAlerts removes every alert.
func (e *Engine) ClearAlerts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = make(map[string]*models.Alert)
	e.alertOrder = nil
}

// Rules returns the rule table in insertion order.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.AlertRule, 0, len(e.ruleOrder))
	for _, id := range e.ruleOrder {
		out = append(out, e.rules[id])
	}
	return out
}

// Rule returns one rule.
func (e *Engine) Rule(id string) (models.AlertRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	return r, ok
}

// AddRule stores rule, replacing any rule with the same id. An empty id is
// replaced with a generated one.
func (e *Engine) AddRule(rule models.AlertRule) models.AlertRule {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	e.mu.Lock()
	e.putRuleLocked(rule)
	notifier := e.notifier
	e.mu.Unlock()

	e.logger.Info("alert rule added", "rule_id", rule.ID, "name", rule.Name)
	if notifier != nil {
		notifier.RuleUpdated(rule)
	}
	return rule
}

// UpdateRule merges patch into an existing rule. It returns false for an
// unknown id.
func (e *Engine) UpdateRule(id string, patch RulePatch) (models.AlertRule, bool) {
	e.mu.Lock()
	rule, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return models.AlertRule{}, false
	}
	rule = patch.Apply(rule)
	e.rules[id] = rule
	notifier := e.notifier
	e.mu.Unlock()

	e.logger.Info("alert rule updated", "rule_id", id)
	if notifier != nil {
		notifier.RuleUpdated(rule)
	}
	return rule, true
}

// DeleteRule removes a rule. Alerts it already produced are kept.
func (e *Engine) DeleteRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	e.ruleOrder = slices.DeleteFunc(e.ruleOrder, func(s string) bool { return s == id })
	e.logger.Info("alert rule deleted", "rule_id", id)
	return true
}

func (e *Engine) putRuleLocked(rule models.AlertRule) {
	if _, ok := e.rules[rule.ID]; !ok {
		e.ruleOrder = append(e.ruleOrder, rule.ID)
	}
	e.rules[rule.ID] = rule
}
