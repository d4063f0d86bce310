package escalate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"opsalert/internal/clock"
	"opsalert/internal/dispatch"
	"opsalert/internal/domain"
	"opsalert/internal/ledger"
)

// Scheduler arms one cancellable escalation timer per fired alert.
//
// Timers are process-local, matching the in-memory ledger: escalations
// armed before a restart are lost with the rest of the runtime state.
//
// Params: ledger for the atomic still-active re-check, dispatcher for
// the derived alert, and always-escalate channel additions.
// Returns: per-alert Armed -> Cancelled/Fired state machine.
type Scheduler struct {
	mu             sync.Mutex
	ledger         *ledger.Ledger
	dispatcher     *dispatch.Dispatcher
	clock          clock.Clock
	logger         *slog.Logger
	alwaysChannels []domain.AlertChannel
	armed          map[string]context.CancelFunc
	wg             sync.WaitGroup
	closed         bool
}

// NewScheduler creates an empty escalation scheduler.
// Params: ledger, dispatcher, clock, logger, and channels added to every
// escalated alert on top of the original channel set.
// Returns: initialized scheduler.
func NewScheduler(
	led *ledger.Ledger,
	dispatcher *dispatch.Dispatcher,
	clk clock.Clock,
	logger *slog.Logger,
	alwaysChannels []domain.AlertChannel,
) *Scheduler {
	return &Scheduler{
		ledger:         led,
		dispatcher:     dispatcher,
		clock:          clk,
		logger:         logger,
		alwaysChannels: append([]domain.AlertChannel(nil), alwaysChannels...),
		armed:          make(map[string]context.CancelFunc),
	}
}

// Arm schedules one escalation for a freshly fired alert.
// Params: fired alert and escalation delay from its rule.
// Returns: no-op for delay <= 0 or when a timer is already armed for the id.
func (s *Scheduler) Arm(alert domain.Alert, after time.Duration) {
	if after <= 0 {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.armed[alert.ID]; exists {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.armed[alert.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, alert.ID, after)
}

// Cancel stops a not-yet-fired escalation for one alert id.
// Params: alert id (the ledger resolve hook calls this synchronously).
// Returns: armed timer cancelled when present.
func (s *Scheduler) Cancel(alertID string) {
	s.mu.Lock()
	cancel, ok := s.armed[alertID]
	if ok {
		delete(s.armed, alertID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Armed reports whether an escalation timer is pending for one alert.
// Params: alert id.
// Returns: true while the timer is neither cancelled nor fired.
func (s *Scheduler) Armed(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[alertID]
	return ok
}

// Close cancels all armed timers and waits for timer goroutines to exit.
// Params: none.
// Returns: after all escalation tasks stop; no escalations fire afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.armed))
	for id, cancel := range s.armed {
		cancels = append(cancels, cancel)
		delete(s.armed, id)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}

// run waits for the escalation deadline or cancellation.
// Params: per-alert context, alert id, and delay.
// Returns: fires the escalation exactly once unless cancelled first.
func (s *Scheduler) run(ctx context.Context, alertID string, after time.Duration) {
	defer s.wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(after):
	}

	s.mu.Lock()
	cancel, ok := s.armed[alertID]
	if ok {
		delete(s.armed, alertID)
	}
	s.mu.Unlock()
	if !ok {
		// Cancelled between timer expiry and acquiring the lock.
		return
	}
	cancel()

	s.fire(alertID)
}

// fire derives and dispatches the escalated alert when still applicable.
// Params: original alert id.
// Returns: the ledger re-checks resolution state under its lock; an alert
// resolved before this point produces no escalation.
func (s *Scheduler) fire(alertID string) {
	escalated, ok := s.ledger.EscalateIfActive(alertID, s.buildEscalated)
	if !ok {
		return
	}
	if s.logger != nil {
		s.logger.Warn("alert escalated",
			"alert_id", escalated.ID,
			"escalated_from", alertID,
			"level", string(escalated.Level))
	}
	s.dispatcher.Send(escalated)
}

// buildEscalated derives the critical escalation alert from the original.
// Params: detached copy of the original alert.
// Returns: derived alert with widened channel set and escalation details.
func (s *Scheduler) buildEscalated(original domain.Alert) domain.Alert {
	now := s.clock.Now()
	details := make(map[string]string, len(original.Details)+2)
	for key, value := range original.Details {
		details[key] = value
	}
	details["escalated_from"] = original.ID
	details["original_level"] = string(original.Level)

	return domain.Alert{
		ID:            ledger.NewAlertID(original.RuleName, domain.LevelCritical, now),
		RuleName:      original.RuleName,
		Level:         domain.LevelCritical,
		Service:       original.Service,
		Title:         "ESCALATED: " + original.Title,
		Message:       original.Message,
		Details:       details,
		Channels:      unionChannels(original.Channels, s.alwaysChannels),
		Timestamp:     now,
		Escalated:     true,
		EscalatedFrom: original.ID,
	}
}

// unionChannels merges two channel lists preserving first-seen order.
// Params: original channel set and always-escalate additions.
// Returns: duplicate-free union, never smaller than the original set.
func unionChannels(original, extra []domain.AlertChannel) []domain.AlertChannel {
	out := make([]domain.AlertChannel, 0, len(original)+len(extra))
	seen := make(map[domain.AlertChannel]struct{}, len(original)+len(extra))
	for _, channel := range original {
		if _, duplicate := seen[channel]; duplicate {
			continue
		}
		seen[channel] = struct{}{}
		out = append(out, channel)
	}
	for _, channel := range extra {
		if _, duplicate := seen[channel]; duplicate {
			continue
		}
		seen[channel] = struct{}{}
		out = append(out, channel)
	}
	return out
}
