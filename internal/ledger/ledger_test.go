package ledger

import (
	"strings"
	"sync"
	"testing"
	"time"

	"opsalert/internal/domain"
	"opsalert/internal/rules"
)

// manualClock advances only when the test says so.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func errorRateCandidate() rules.TriggerCandidate {
	return rules.TriggerCandidate{
		Rule: rules.Rule{
			Name:        "high_error_rate",
			Condition:   rules.Threshold{Metric: "error_rate_percent", Op: ">", Bound: 5},
			Level:       domain.LevelError,
			Channels:    []domain.AlertChannel{domain.ChannelWebhook},
			Cooldown:    5 * time.Minute,
			Description: "Request error rate above 5%",
		},
		Details: map[string]string{"error_rate_percent": "7.2"},
	}
}

func TestTryFireCooldownSuppression(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 0)
	candidate := errorRateCandidate()

	first, fired := led.TryFire(candidate)
	if !fired {
		t.Fatalf("expected first trigger to fire")
	}
	if first.Level != domain.LevelError || first.Service != "api" {
		t.Fatalf("unexpected alert fields: %+v", first)
	}
	if first.Details["error_rate_percent"] != "7.2" {
		t.Fatalf("unexpected details: %#v", first.Details)
	}

	clk.Advance(2 * time.Minute)
	if _, fired := led.TryFire(candidate); fired {
		t.Fatalf("expected suppression inside cooldown")
	}

	clk.Advance(4 * time.Minute)
	second, fired := led.TryFire(candidate)
	if !fired {
		t.Fatalf("expected second trigger after cooldown")
	}
	if second.ID == first.ID {
		t.Fatalf("expected distinct alert ids")
	}
	if got := len(led.History(time.Hour, nil)); got != 2 {
		t.Fatalf("expected 2 history entries, got %d", got)
	}
}

func TestAlertIDsUniqueWithinOneTick(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id := NewAlertID("high_error_rate", domain.LevelError, now)
		if !strings.HasPrefix(id, "alert/high_error_rate/error/") {
			t.Fatalf("unexpected id shape %q", id)
		}
		if _, duplicate := seen[id]; duplicate {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestResolveMovesAlertOutOfActiveKeepsHistory(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 0)

	alert, fired := led.TryFire(errorRateCandidate())
	if !fired {
		t.Fatalf("expected trigger to fire")
	}
	if got := len(led.ActiveAlerts(nil)); got != 1 {
		t.Fatalf("expected 1 active alert, got %d", got)
	}

	clk.Advance(3 * time.Minute)
	if !led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected resolve to succeed")
	}
	if led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected second resolve to report false")
	}
	if led.Resolve("alert/unknown/error/0/xxxx", "ops") {
		t.Fatalf("expected unknown id resolve to report false")
	}

	if got := len(led.ActiveAlerts(nil)); got != 0 {
		t.Fatalf("expected no active alerts, got %d", got)
	}
	history := led.History(time.Hour, nil)
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	resolved := history[0]
	if !resolved.Resolved || resolved.ResolvedBy != "ops" || resolved.ResolvedAt == nil {
		t.Fatalf("history entry does not reflect resolution: %+v", resolved)
	}
}

func TestResolveHookFiresAfterUnlock(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Now().UTC())
	led := New("api", clk, nil, 0)
	var hookID string
	led.SetResolveHook(func(alertID string) {
		// Re-entering the ledger from the hook must not deadlock.
		_ = led.ActiveAlerts(nil)
		hookID = alertID
	})

	alert, _ := led.TryFire(errorRateCandidate())
	if !led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected resolve to succeed")
	}
	if hookID != alert.ID {
		t.Fatalf("expected hook to receive %q, got %q", alert.ID, hookID)
	}
}

func TestEscalateIfActiveSemantics(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 0)
	alert, _ := led.TryFire(errorRateCandidate())

	build := func(original domain.Alert) domain.Alert {
		escalated := original
		escalated.ID = NewAlertID(original.RuleName, domain.LevelCritical, clk.Now())
		escalated.Level = domain.LevelCritical
		escalated.Title = "ESCALATED: " + original.Title
		escalated.Escalated = true
		escalated.EscalatedFrom = original.ID
		return escalated
	}

	escalated, ok := led.EscalateIfActive(alert.ID, build)
	if !ok {
		t.Fatalf("expected escalation for active alert")
	}
	if escalated.EscalatedFrom != alert.ID || escalated.Level != domain.LevelCritical {
		t.Fatalf("unexpected escalated alert: %+v", escalated)
	}
	if _, ok := led.EscalateIfActive(alert.ID, build); ok {
		t.Fatalf("expected at-most-once escalation per alert")
	}

	if !led.Resolve(escalated.ID, "ops") {
		t.Fatalf("expected escalated alert to be independently resolvable")
	}
	if !led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected original alert resolve to succeed")
	}
	if _, ok := led.EscalateIfActive(alert.ID, build); ok {
		t.Fatalf("expected no escalation for resolved alert")
	}

	stats := led.Stats(time.Hour)
	if stats.Escalated != 1 {
		t.Fatalf("expected 1 escalated alert in stats, got %d", stats.Escalated)
	}
}

func TestHistoryWindowAndLevelFilter(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 0)

	candidate := errorRateCandidate()
	led.TryFire(candidate)
	clk.Advance(3 * time.Hour)

	warning := candidate
	warning.Rule.Name = "high_cpu_usage"
	warning.Rule.Level = domain.LevelWarning
	led.TryFire(warning)
	clk.Advance(30 * time.Minute)

	recent := led.History(time.Hour, nil)
	if len(recent) != 1 || recent[0].RuleName != "high_cpu_usage" {
		t.Fatalf("unexpected windowed history: %#v", recent)
	}

	level := domain.LevelError
	all := led.History(24*time.Hour, &level)
	if len(all) != 1 || all[0].RuleName != "high_error_rate" {
		t.Fatalf("unexpected level-filtered history: %#v", all)
	}

	full := led.History(24*time.Hour, nil)
	if len(full) != 2 || !full[0].Timestamp.After(full[1].Timestamp) {
		t.Fatalf("expected descending order, got %#v", full)
	}
}

func TestStatsAggregation(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 0)

	first, _ := led.TryFire(errorRateCandidate())
	warning := errorRateCandidate()
	warning.Rule.Name = "high_cpu_usage"
	warning.Rule.Level = domain.LevelWarning
	led.TryFire(warning)

	clk.Advance(10 * time.Minute)
	if !led.Resolve(first.ID, "ops") {
		t.Fatalf("expected resolve to succeed")
	}

	stats := led.Stats(time.Hour)
	if stats.Total != 2 || stats.Active != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.ByLevel[domain.LevelError] != 1 || stats.ByLevel[domain.LevelWarning] != 1 {
		t.Fatalf("unexpected level counts: %+v", stats.ByLevel)
	}
	if stats.ByService["api"] != 2 {
		t.Fatalf("unexpected service counts: %+v", stats.ByService)
	}
	if stats.MeanResolutionMinutes < 9.9 || stats.MeanResolutionMinutes > 10.1 {
		t.Fatalf("unexpected mean resolution minutes: %v", stats.MeanResolutionMinutes)
	}
}

func TestHistoryCapKeepsUnresolvedEntries(t *testing.T) {
	t.Parallel()

	clk := newManualClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	led := New("api", clk, nil, 3)

	candidate := errorRateCandidate()
	candidate.Rule.Cooldown = 0
	keep, _ := led.TryFire(candidate)
	for i := 0; i < 4; i++ {
		clk.Advance(time.Second)
		alert, fired := led.TryFire(candidate)
		if !fired {
			t.Fatalf("expected zero-cooldown rule to fire")
		}
		led.Resolve(alert.ID, "ops")
	}

	history := led.History(time.Hour, nil)
	if len(history) != 3 {
		t.Fatalf("expected capped history of 3, got %d", len(history))
	}
	if _, ok := led.Get(keep.ID); !ok {
		t.Fatalf("expected unresolved alert to survive the cap")
	}
	if got := len(led.ActiveAlerts(nil)); got != 1 {
		t.Fatalf("expected 1 active alert, got %d", got)
	}
}
