package alerts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// ErrInvalidRule is returned when a rule definition fails validation.
var ErrInvalidRule = errors.New("invalid alert rule")

type ruleFile struct {
	Rules []models.AlertRule `yaml:"rules"`
}

// RulePatch carries a partial rule update. Nil fields are left unchanged.
type RulePatch struct {
	Name      *string           `json:"name,omitempty"`
	Type      *models.RuleType  `json:"type,omitempty"`
	Condition *models.Condition `json:"condition,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
	Severity  *models.Severity  `json:"severity,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

// Apply merges the set fields of p into rule. The ID is never changed.
func (p RulePatch) Apply(rule models.AlertRule) models.AlertRule {
	if p.Name != nil {
		rule.Name = *p.Name
	}
	if p.Type != nil {
		rule.Type = *p.Type
	}
	if p.Condition != nil {
		rule.Condition = *p.Condition
	}
	if p.Threshold != nil {
		rule.Threshold = *p.Threshold
	}
	if p.Severity != nil {
		rule.Severity = *p.Severity
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}
	return rule
}

// ValidateRule checks a rule received from outside the process. The engine
// itself accepts any rule and skips those it cannot evaluate.
func ValidateRule(rule models.AlertRule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !rule.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRule, rule.Type)
	}
	if !rule.Condition.Valid() {
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidRule, rule.Condition)
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, rule.Severity)
	}
	return nil
}

// LoadRules parses a YAML document with a top-level "rules" list. Rules
// without an id are given a generated one.
func LoadRules(r io.Reader) ([]models.AlertRule, error) {
	var file ruleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding rules: %w", err)
	}

	seen := make(map[string]bool, len(file.Rules))
	for i := range file.Rules {
		rule := &file.Rules[i]
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true
		if err := ValidateRule(*rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ID, err)
		}
	}
	return file.Rules, nil
}

// LoadRulesFile reads rules from path.
func LoadRulesFile(path string) ([]models.AlertRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// DefaultRules returns the built-in rule set: high cpu, high memory, network
// saturation and node offline.
func DefaultRules() []models.AlertRule {
	rules, err := LoadRules(bytes.NewReader(defaultRulesYAML))
	if err != nil {
		panic(fmt.Sprintf("alerts: embedded default rules are invalid: %v", err))
	}
	return rules
}
