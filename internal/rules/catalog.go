package rules

import (
	"fmt"
	"time"

	"opsalert/internal/domain"
)

// Threshold compares one numeric metric against a fixed bound.
// Params: metric key, comparison operator, and bound value.
// Returns: condition satisfied when the comparison holds.
type Threshold struct {
	Metric string
	Op     string
	Bound  float64
	Extra  []string
}

// Evaluate applies the threshold comparison to the snapshot.
// Params: metrics snapshot.
// Returns: false when the metric is absent or non-numeric.
func (c Threshold) Evaluate(snapshot domain.Snapshot) bool {
	value, ok := snapshot.Number(c.Metric)
	if !ok {
		return false
	}
	switch c.Op {
	case ">":
		return value > c.Bound
	case ">=":
		return value >= c.Bound
	case "<":
		return value < c.Bound
	case "<=":
		return value <= c.Bound
	case "==":
		return value == c.Bound
	case "!=":
		return value != c.Bound
	default:
		return false
	}
}

// RelevantKeys lists the metric plus configured extra detail keys.
// Params: none.
// Returns: detail key allowlist.
func (c Threshold) RelevantKeys() []string {
	return append([]string{c.Metric}, c.Extra...)
}

// BoolEquals matches one boolean metric against an expected value.
// Params: metric key and expected reading.
// Returns: condition satisfied on exact match.
type BoolEquals struct {
	Metric string
	Expect bool
	Extra  []string
}

// Evaluate compares the boolean metric to the expected value.
// Params: metrics snapshot.
// Returns: false when the metric is absent or non-boolean.
func (c BoolEquals) Evaluate(snapshot domain.Snapshot) bool {
	value, ok := snapshot.Bool(c.Metric)
	if !ok {
		return false
	}
	return value == c.Expect
}

// RelevantKeys lists the metric plus configured extra detail keys.
// Params: none.
// Returns: detail key allowlist.
func (c BoolEquals) RelevantKeys() []string {
	return append([]string{c.Metric}, c.Extra...)
}

// IsSupportedOp reports whether the comparison operator is known.
// Params: operator token from config.
// Returns: true for the six numeric comparison operators.
func IsSupportedOp(op string) bool {
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
		return true
	default:
		return false
	}
}

// DefaultCatalog returns the seed policy catalog used when no rules are configured.
// Params: none.
// Returns: ordered default rules over the standard snapshot vocabulary.
func DefaultCatalog() []Rule {
	return []Rule{
		{
			Name:        "slow_response_time",
			Condition:   Threshold{Metric: "avg_response_time_ms", Op: ">", Bound: 2000},
			Level:       domain.LevelWarning,
			Channels:    []domain.AlertChannel{domain.ChannelChat},
			Cooldown:    10 * time.Minute,
			AutoResolve: true,
			Description: "Average response time above 2000ms",
		},
		{
			Name:          "very_slow_response_time",
			Condition:     Threshold{Metric: "avg_response_time_ms", Op: ">", Bound: 5000},
			Level:         domain.LevelCritical,
			Channels:      []domain.AlertChannel{domain.ChannelEmail, domain.ChannelChat},
			Cooldown:      10 * time.Minute,
			EscalateAfter: 30 * time.Minute,
			Description:   "Average response time above 5000ms",
		},
		{
			Name:        "high_error_rate",
			Condition:   Threshold{Metric: "error_rate_percent", Op: ">", Bound: 5, Extra: []string{"request_count"}},
			Level:       domain.LevelError,
			Channels:    []domain.AlertChannel{domain.ChannelEmail, domain.ChannelWebhook},
			Cooldown:    5 * time.Minute,
			Description: "Request error rate above 5%",
		},
		{
			Name:          "database_connection_failure",
			Condition:     BoolEquals{Metric: "database_healthy", Expect: false},
			Level:         domain.LevelCritical,
			Channels:      []domain.AlertChannel{domain.ChannelEmail, domain.ChannelWebhook},
			Cooldown:      5 * time.Minute,
			EscalateAfter: 15 * time.Minute,
			Description:   "Database health check reports unhealthy",
		},
		{
			Name:        "high_cpu_usage",
			Condition:   Threshold{Metric: "cpu_usage_percent", Op: ">", Bound: 85},
			Level:       domain.LevelWarning,
			Channels:    []domain.AlertChannel{domain.ChannelChat},
			Cooldown:    15 * time.Minute,
			AutoResolve: true,
			Description: "CPU usage above 85%",
		},
		{
			Name:        "high_memory_usage",
			Condition:   Threshold{Metric: "memory_usage_percent", Op: ">", Bound: 90},
			Level:       domain.LevelError,
			Channels:    []domain.AlertChannel{domain.ChannelChat, domain.ChannelWebhook},
			Cooldown:    15 * time.Minute,
			AutoResolve: true,
			Description: "Memory usage above 90%",
		},
		{
			Name:          "low_disk_space",
			Condition:     Threshold{Metric: "disk_free_percent", Op: "<", Bound: 10},
			Level:         domain.LevelCritical,
			Channels:      []domain.AlertChannel{domain.ChannelEmail, domain.ChannelChat},
			Cooldown:      30 * time.Minute,
			EscalateAfter: time.Hour,
			Description:   "Free disk space below 10%",
		},
		{
			Name:        "failed_jobs",
			Condition:   Threshold{Metric: "failed_jobs_total", Op: ">", Bound: 10},
			Level:       domain.LevelError,
			Channels:    []domain.AlertChannel{domain.ChannelWebhook, domain.ChannelTracker},
			Cooldown:    10 * time.Minute,
			Description: "More than 10 failed background jobs",
		},
		{
			Name:        "auth_failure_rate",
			Condition:   Threshold{Metric: "auth_failure_rate_percent", Op: ">", Bound: 10, Extra: []string{"auth_attempts"}},
			Level:       domain.LevelWarning,
			Channels:    []domain.AlertChannel{domain.ChannelWebhook},
			Cooldown:    10 * time.Minute,
			Description: "Authentication failure rate above 10%",
		},
	}
}

// BuildCondition constructs a condition from config-level fields.
// Params: metric key, operator token, numeric bound, optional boolean
// expectation, and extra detail keys.
// Returns: condition or configuration error.
func BuildCondition(metric, op string, bound float64, equalsBool *bool, extra []string) (Condition, error) {
	if metric == "" {
		return nil, fmt.Errorf("condition metric is required")
	}
	if equalsBool != nil {
		if op != "" {
			return nil, fmt.Errorf("condition for %q: op and equals_bool are mutually exclusive", metric)
		}
		return BoolEquals{Metric: metric, Expect: *equalsBool, Extra: extra}, nil
	}
	if !IsSupportedOp(op) {
		return nil, fmt.Errorf("condition for %q: unsupported op %q", metric, op)
	}
	return Threshold{Metric: metric, Op: op, Bound: bound, Extra: extra}, nil
}
