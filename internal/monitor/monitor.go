package monitor

import (
	"context"
	"log/slog"
	"time"

	"opsalert/internal/clock"
	"opsalert/internal/dispatch"
	"opsalert/internal/domain"
	"opsalert/internal/escalate"
	"opsalert/internal/ledger"
	"opsalert/internal/rules"
)

const (
	defaultInterval       = 60 * time.Second
	defaultCollectTimeout = 10 * time.Second
)

// Collector produces one metrics snapshot per cycle.
// Params: context bounded by the collect timeout.
// Returns: snapshot or collection error (cycle is skipped on error).
type Collector interface {
	Collect(ctx context.Context) (domain.Snapshot, error)
}

// CollectorFunc adapts a plain function into a Collector.
// Params: collect function.
// Returns: Collector implementation.
type CollectorFunc func(ctx context.Context) (domain.Snapshot, error)

// Collect invokes the wrapped function.
// Params: context.
// Returns: snapshot or error.
func (f CollectorFunc) Collect(ctx context.Context) (domain.Snapshot, error) {
	return f(ctx)
}

// Loop drives periodic evaluation of the rule set against fresh snapshots.
// Params: collector, rule set, ledger, dispatcher, and scheduler wiring.
// Returns: long-lived background task owning only interval and lifecycle;
// all decision state lives in the ledger.
type Loop struct {
	collector      Collector
	ruleSet        *rules.RuleSet
	ledger         *ledger.Ledger
	dispatcher     *dispatch.Dispatcher
	scheduler      *escalate.Scheduler
	clock          clock.Clock
	logger         *slog.Logger
	interval       time.Duration
	collectTimeout time.Duration
}

// New builds a monitor loop.
// Params: collaborators, poll interval, and collect timeout (0 selects defaults).
// Returns: loop ready to Run.
func New(
	collector Collector,
	ruleSet *rules.RuleSet,
	led *ledger.Ledger,
	dispatcher *dispatch.Dispatcher,
	scheduler *escalate.Scheduler,
	clk clock.Clock,
	logger *slog.Logger,
	interval time.Duration,
	collectTimeout time.Duration,
) *Loop {
	if interval <= 0 {
		interval = defaultInterval
	}
	if collectTimeout <= 0 {
		collectTimeout = defaultCollectTimeout
	}
	return &Loop{
		collector:      collector,
		ruleSet:        ruleSet,
		ledger:         led,
		dispatcher:     dispatcher,
		scheduler:      scheduler,
		clock:          clk,
		logger:         logger,
		interval:       interval,
		collectTimeout: collectTimeout,
	}
}

// Run executes cycles on the fixed interval until the context is cancelled.
// Params: root context.
// Returns: context error after cancellation; transient failures never stop
// the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.interval):
			l.Cycle(ctx)
		}
	}
}

// Cycle performs one collect-evaluate-fire pass.
// Params: context for the collect call.
// Returns: collection failure logs and skips the pass.
func (l *Loop) Cycle(ctx context.Context) {
	collectCtx, cancel := context.WithTimeout(ctx, l.collectTimeout)
	snapshot, err := l.collector.Collect(collectCtx)
	cancel()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("metrics collection failed, skipping cycle", "error", err.Error())
		}
		return
	}

	candidates := l.ruleSet.Evaluate(snapshot)
	satisfied := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		satisfied[candidate.Rule.Name] = struct{}{}
		alert, fired := l.ledger.TryFire(candidate)
		if !fired {
			continue
		}
		if l.logger != nil {
			l.logger.Info("alert fired",
				"alert_id", alert.ID,
				"rule", candidate.Rule.Name,
				"level", string(alert.Level))
		}
		l.dispatcher.Send(alert)
		if candidate.Rule.EscalateAfter > 0 && l.scheduler != nil {
			l.scheduler.Arm(alert, candidate.Rule.EscalateAfter)
		}
	}

	l.autoResolve(satisfied)
}

// autoResolve clears alerts of recovered auto-resolve rules.
// Params: names of rules satisfied in the current cycle.
// Returns: active alerts of recovered rules resolved as auto_recovery.
func (l *Loop) autoResolve(satisfied map[string]struct{}) {
	for _, rule := range l.ruleSet.Rules() {
		if !rule.AutoResolve {
			continue
		}
		if _, stillFiring := satisfied[rule.Name]; stillFiring {
			continue
		}
		for _, alert := range l.ledger.ActiveByRule(rule.Name) {
			if l.ledger.Resolve(alert.ID, "auto_recovery") && l.logger != nil {
				l.logger.Info("alert auto-resolved on recovery", "alert_id", alert.ID, "rule", rule.Name)
			}
		}
	}
}
