package config

import (
	"fmt"

	"opsalert/internal/domain"
	"opsalert/internal/rules"
)

// BuildRules compiles declared rules into runtime rules, prepending the
// built-in catalog when enabled. Declared rules with a catalog name
// replace the catalog entry.
// Params: validated configuration snapshot.
// Returns: runtime rule list or compile error.
func BuildRules(cfg Config) ([]rules.Rule, error) {
	var out []rules.Rule
	declared := make(map[string]struct{}, len(cfg.Rule))
	for _, rule := range cfg.Rule {
		declared[rule.Name] = struct{}{}
	}

	if cfg.Service.UseBuiltinRules() {
		for _, rule := range rules.DefaultCatalog() {
			if _, overridden := declared[rule.Name]; overridden {
				continue
			}
			out = append(out, rule)
		}
	}

	for _, rc := range cfg.Rule {
		rule, err := buildRule(rc)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// buildRule compiles one rule declaration.
// Params: normalized rule config.
// Returns: runtime rule or condition compile error.
func buildRule(rc RuleConfig) (rules.Rule, error) {
	condition, err := rules.BuildCondition(rc.Metric, rc.Op, rc.Threshold, rc.EqualsBool, rc.DetailKeys)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("rule.%s: %w", rc.Name, err)
	}
	level, err := domain.ParseLevel(rc.Level)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("rule.%s.level: %w", rc.Name, err)
	}
	channels := make([]domain.AlertChannel, 0, len(rc.Channels))
	for _, name := range rc.Channels {
		channel, err := domain.ParseChannel(name)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule.%s.channels: %w", rc.Name, err)
		}
		channels = append(channels, channel)
	}
	return rules.Rule{
		Name:          rc.Name,
		Condition:     condition,
		Level:         level,
		Channels:      channels,
		Cooldown:      rc.Cooldown(),
		EscalateAfter: rc.EscalateAfter(),
		AutoResolve:   rc.AutoResolve,
		Description:   rc.Description,
	}, nil
}
