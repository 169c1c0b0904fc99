package models

import "time"

// Severity is the tier of an alert rule and the alerts it produces.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RuleType is the node metric a rule inspects.
type RuleType string

const (
	RuleTypeCPU     RuleType = "cpu"
	RuleTypeMemory  RuleType = "memory"
	RuleTypeNetwork RuleType = "network"
	// RuleTypeStatus maps online to 1 and offline to 0.
	RuleTypeStatus RuleType = "status"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeCPU, RuleTypeMemory, RuleTypeNetwork, RuleTypeStatus:
		return true
	}
	return false
}

// Condition is the comparison operator of a rule.
type Condition string

const (
	ConditionGreaterThan Condition = "gt"
	ConditionLessThan    Condition = "lt"
	ConditionEqual       Condition = "eq"
)

// Valid reports whether c is a known comparator.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEqual:
		return true
	}
	return false
}

// AlertRule is a threshold condition over a node metric.
type AlertRule struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Type      RuleType  `json:"type" yaml:"type"`
	Condition Condition `json:"condition" yaml:"condition"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Severity  Severity  `json:"severity" yaml:"severity"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
}

// Alert records one firing of a rule against a node.
type Alert struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"ruleId"`
	NodeID         string     `json:"nodeId"`
	Type           RuleType   `json:"type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

// Clone returns a copy that shares no pointers with a.
func (a Alert) Clone() Alert {
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		a.AcknowledgedAt = &at
	}
	return a
}
