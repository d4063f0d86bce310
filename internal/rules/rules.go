package rules

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsalert/internal/domain"
)

// Condition is the predicate capability pair carried by one rule.
// Params: snapshot input for evaluation and detail key allowlist.
// Returns: satisfied flag and the metric keys relevant to the rule.
type Condition interface {
	Evaluate(snapshot domain.Snapshot) bool
	RelevantKeys() []string
}

// Rule is one immutable alerting policy.
// Params: predicate, severity, channel set, and timing parameters.
// Returns: policy value created at configuration time and never mutated.
type Rule struct {
	Name          string
	Condition     Condition
	Level         domain.AlertLevel
	Channels      []domain.AlertChannel
	Cooldown      time.Duration
	EscalateAfter time.Duration
	AutoResolve   bool
	Description   string
}

// TriggerCandidate is one satisfied rule with its snapshot excerpt.
// Params: rule reference and details restricted to relevant keys.
// Returns: candidate consumed by the ledger.
type TriggerCandidate struct {
	Rule    Rule
	Details map[string]string
}

// RuleSet is an ordered rule collection evaluated independently each cycle.
// Params: validated rules in declaration order.
// Returns: evaluation entrypoint for the monitor loop.
type RuleSet struct {
	rules  []Rule
	logger *slog.Logger
}

// NewRuleSet validates rules and builds an ordered set.
// Params: rules in declaration order and logger for evaluation faults.
// Returns: rule set or configuration error for programmer mistakes.
func NewRuleSet(rules []Rule, logger *slog.Logger) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		if _, duplicate := seen[rule.Name]; duplicate {
			return nil, fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}
	return &RuleSet{
		rules:  append([]Rule(nil), rules...),
		logger: logger,
	}, nil
}

// Evaluate runs every rule predicate against one snapshot.
// Params: metrics snapshot.
// Returns: trigger candidates for all satisfied rules in declaration order.
func (rs *RuleSet) Evaluate(snapshot domain.Snapshot) []TriggerCandidate {
	candidates := make([]TriggerCandidate, 0)
	for _, rule := range rs.rules {
		satisfied := rs.evaluateRule(rule, snapshot)
		if !satisfied {
			continue
		}
		candidates = append(candidates, TriggerCandidate{
			Rule:    rule,
			Details: extractDetails(rule, snapshot),
		})
	}
	return candidates
}

// Rules returns the rules in declaration order.
// Params: none.
// Returns: detached rule slice.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// evaluateRule runs one predicate with panic isolation.
// Params: rule and snapshot.
// Returns: predicate result; a panicking predicate counts as not satisfied.
func (rs *RuleSet) evaluateRule(rule Rule, snapshot domain.Snapshot) (satisfied bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			satisfied = false
			if rs.logger != nil {
				rs.logger.Error("rule predicate panicked", "rule", rule.Name, "panic", fmt.Sprint(recovered))
			}
		}
	}()
	return rule.Condition.Evaluate(snapshot)
}

// extractDetails copies relevant snapshot keys into an alert details map.
// Params: rule with key allowlist and source snapshot.
// Returns: details map restricted to keys present in the snapshot.
func extractDetails(rule Rule, snapshot domain.Snapshot) map[string]string {
	keys := rule.Condition.RelevantKeys()
	details := make(map[string]string, len(keys))
	for _, key := range keys {
		if formatted, ok := snapshot.Format(key); ok {
			details[key] = formatted
		}
	}
	return details
}

// validateRule rejects malformed rule definitions at startup.
// Params: candidate rule.
// Returns: validation error for programmer mistakes.
func validateRule(rule Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Condition == nil {
		return fmt.Errorf("rule %q: condition is required", rule.Name)
	}
	if _, err := domain.ParseLevel(string(rule.Level)); err != nil {
		return fmt.Errorf("rule %q: %w", rule.Name, err)
	}
	if len(rule.Channels) == 0 {
		return fmt.Errorf("rule %q: at least one channel is required", rule.Name)
	}
	seenChannels := make(map[domain.AlertChannel]struct{}, len(rule.Channels))
	for _, channel := range rule.Channels {
		if _, err := domain.ParseChannel(string(channel)); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		if _, duplicate := seenChannels[channel]; duplicate {
			return fmt.Errorf("rule %q: duplicate channel %q", rule.Name, channel)
		}
		seenChannels[channel] = struct{}{}
	}
	if rule.Cooldown < 0 {
		return fmt.Errorf("rule %q: cooldown must be >=0", rule.Name)
	}
	if rule.EscalateAfter < 0 {
		return fmt.Errorf("rule %q: escalate_after must be >=0", rule.Name)
	}
	return nil
}
