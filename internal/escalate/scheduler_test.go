package escalate

import (
	"context"
	"sync"
	"testing"
	"time"

	"opsalert/internal/clock"
	"opsalert/internal/dispatch"
	"opsalert/internal/domain"
	"opsalert/internal/ledger"
	"opsalert/internal/rules"
)

type captureSender struct {
	channel domain.AlertChannel

	mu    sync.Mutex
	calls []domain.Alert
}

func (s *captureSender) Channel() domain.AlertChannel { return s.channel }

func (s *captureSender) Deliver(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	s.calls = append(s.calls, alert)
	s.mu.Unlock()
	return nil
}

func (s *captureSender) captured() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Alert(nil), s.calls...)
}

func fireTestAlert(t *testing.T, led *ledger.Ledger) domain.Alert {
	t.Helper()
	alert, fired := led.TryFire(rules.TriggerCandidate{
		Rule: rules.Rule{
			Name:          "database_connection_failure",
			Condition:     rules.BoolEquals{Metric: "database_healthy", Expect: false},
			Level:         domain.LevelError,
			Channels:      []domain.AlertChannel{domain.ChannelEmail, domain.ChannelWebhook},
			Cooldown:      5 * time.Minute,
			EscalateAfter: 15 * time.Minute,
			Description:   "Database health check reports unhealthy",
		},
		Details: map[string]string{"database_healthy": "false"},
	})
	if !fired {
		t.Fatalf("expected test alert to fire")
	}
	return alert
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestEscalationFiresForUnresolvedAlert(t *testing.T) {
	t.Parallel()

	clk := clock.RealClock{}
	led := ledger.New("api", clk, nil, 0)
	email := &captureSender{channel: domain.ChannelEmail}
	webhook := &captureSender{channel: domain.ChannelWebhook}
	chat := &captureSender{channel: domain.ChannelChat}
	dispatcher := dispatch.New([]dispatch.Sender{email, webhook, chat}, time.Second, nil)
	scheduler := NewScheduler(led, dispatcher, clk, nil, []domain.AlertChannel{domain.ChannelChat})
	defer scheduler.Close()
	led.SetResolveHook(scheduler.Cancel)

	alert := fireTestAlert(t, led)
	scheduler.Arm(alert, 20*time.Millisecond)

	waitFor(t, time.Second, func() bool { return len(chat.captured()) == 1 })
	dispatcher.Wait()

	escalated := chat.captured()[0]
	if escalated.Level != domain.LevelCritical {
		t.Fatalf("expected critical escalation, got %q", escalated.Level)
	}
	if escalated.Title != "ESCALATED: database_connection_failure" {
		t.Fatalf("unexpected escalation title %q", escalated.Title)
	}
	if escalated.Details["escalated_from"] != alert.ID {
		t.Fatalf("expected escalated_from detail %q, got %q", alert.ID, escalated.Details["escalated_from"])
	}
	if escalated.Details["original_level"] != string(domain.LevelError) {
		t.Fatalf("unexpected original_level detail %q", escalated.Details["original_level"])
	}
	if len(escalated.Channels) != 3 {
		t.Fatalf("expected widened channel union, got %#v", escalated.Channels)
	}
	if len(email.captured()) != 1 || len(webhook.captured()) != 1 {
		t.Fatalf("expected escalation on original channels too")
	}

	history := led.History(time.Hour, nil)
	if len(history) != 2 {
		t.Fatalf("expected escalated alert in history, got %d entries", len(history))
	}
}

func TestResolveBeforeDeadlineCancelsEscalation(t *testing.T) {
	t.Parallel()

	clk := clock.RealClock{}
	led := ledger.New("api", clk, nil, 0)
	webhook := &captureSender{channel: domain.ChannelWebhook}
	email := &captureSender{channel: domain.ChannelEmail}
	dispatcher := dispatch.New([]dispatch.Sender{webhook, email}, time.Second, nil)
	scheduler := NewScheduler(led, dispatcher, clk, nil, nil)
	defer scheduler.Close()
	led.SetResolveHook(scheduler.Cancel)

	alert := fireTestAlert(t, led)
	scheduler.Arm(alert, 50*time.Millisecond)

	if !led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected resolve to succeed")
	}
	if scheduler.Armed(alert.ID) {
		t.Fatalf("expected resolve hook to disarm the timer synchronously")
	}

	time.Sleep(120 * time.Millisecond)
	dispatcher.Wait()
	if got := len(webhook.captured()); got != 0 {
		t.Fatalf("expected no escalation after resolve, got %d", got)
	}
	if got := len(led.History(time.Hour, nil)); got != 1 {
		t.Fatalf("expected only the original alert in history, got %d", got)
	}
}

func TestResolveAfterEscalationKeepsEscalatedAlert(t *testing.T) {
	t.Parallel()

	clk := clock.RealClock{}
	led := ledger.New("api", clk, nil, 0)
	webhook := &captureSender{channel: domain.ChannelWebhook}
	email := &captureSender{channel: domain.ChannelEmail}
	dispatcher := dispatch.New([]dispatch.Sender{webhook, email}, time.Second, nil)
	scheduler := NewScheduler(led, dispatcher, clk, nil, nil)
	defer scheduler.Close()
	led.SetResolveHook(scheduler.Cancel)

	alert := fireTestAlert(t, led)
	scheduler.Arm(alert, 10*time.Millisecond)

	waitFor(t, time.Second, func() bool { return len(webhook.captured()) == 1 })
	if !led.Resolve(alert.ID, "ops") {
		t.Fatalf("expected late resolve to succeed")
	}

	history := led.History(time.Hour, nil)
	if len(history) != 2 {
		t.Fatalf("expected escalated alert to remain recorded, got %d entries", len(history))
	}
}

func TestZeroEscalationDelayNeverArms(t *testing.T) {
	t.Parallel()

	clk := clock.RealClock{}
	led := ledger.New("api", clk, nil, 0)
	dispatcher := dispatch.New(nil, time.Second, nil)
	scheduler := NewScheduler(led, dispatcher, clk, nil, nil)
	defer scheduler.Close()

	alert := fireTestAlert(t, led)
	scheduler.Arm(alert, 0)
	if scheduler.Armed(alert.ID) {
		t.Fatalf("expected no timer for zero escalation delay")
	}
}

func TestCloseStopsArmedTimers(t *testing.T) {
	t.Parallel()

	clk := clock.RealClock{}
	led := ledger.New("api", clk, nil, 0)
	webhook := &captureSender{channel: domain.ChannelWebhook}
	dispatcher := dispatch.New([]dispatch.Sender{webhook}, time.Second, nil)
	scheduler := NewScheduler(led, dispatcher, clk, nil, nil)

	alert := fireTestAlert(t, led)
	scheduler.Arm(alert, 30*time.Millisecond)
	scheduler.Close()

	time.Sleep(80 * time.Millisecond)
	dispatcher.Wait()
	if got := len(webhook.captured()); got != 0 {
		t.Fatalf("expected no escalation after close, got %d", got)
	}
}
