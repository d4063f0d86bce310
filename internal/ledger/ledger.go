package ledger

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsalert/internal/clock"
	"opsalert/internal/domain"
	"opsalert/internal/rules"
)

const defaultHistoryMax = 10000

// fireKey deduplicates firings per rule name and severity.
// Params: rule name and level pair.
// Returns: cooldown map key.
type fireKey struct {
	name  string
	level domain.AlertLevel
}

// Ledger tracks active alerts, append-only history, and cooldown timestamps.
// Params: single mutex guarding all three maps for the process lifetime.
// Returns: the only durable decision state in the engine; nothing survives restart.
type Ledger struct {
	mu          sync.RWMutex
	service     string
	clock       clock.Clock
	logger      *slog.Logger
	historyMax  int
	active      map[string]*domain.Alert
	history     []*domain.Alert
	lastFired   map[fireKey]time.Time
	resolveHook func(alertID string)
}

// Stats aggregates alert counts over one history window.
// Params: computed over History(window) plus the live active map.
// Returns: operator-facing summary.
type Stats struct {
	Total                 int                       `json:"total"`
	Active                int                       `json:"active"`
	ByLevel               map[domain.AlertLevel]int `json:"by_level"`
	ByService             map[string]int            `json:"by_service"`
	Escalated             int                       `json:"escalated"`
	MeanResolutionMinutes float64                   `json:"mean_resolution_minutes"`
}

// New creates an empty ledger.
// Params: service label stamped on alerts, clock, logger, and history cap
// (0 selects the default; the cap bounds memory, active alerts are never evicted).
// Returns: initialized ledger.
func New(service string, clk clock.Clock, logger *slog.Logger, historyMax int) *Ledger {
	if historyMax <= 0 {
		historyMax = defaultHistoryMax
	}
	return &Ledger{
		service:    service,
		clock:      clk,
		logger:     logger,
		historyMax: historyMax,
		active:     make(map[string]*domain.Alert),
		history:    make([]*domain.Alert, 0),
		lastFired:  make(map[fireKey]time.Time),
	}
}

// SetResolveHook registers a callback invoked after each successful resolve.
// Params: hook receiving the resolved alert id (escalation cancel).
// Returns: hook stored for subsequent Resolve calls.
func (l *Ledger) SetResolveHook(hook func(alertID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolveHook = hook
}

// TryFire records one alert for a satisfied rule unless its cooldown is active.
// Params: trigger candidate from rule evaluation.
// Returns: detached alert copy and fired flag; (zero, false) is the
// suppression path and the steady state during a sustained incident.
func (l *Ledger) TryFire(candidate rules.TriggerCandidate) (domain.Alert, bool) {
	rule := candidate.Rule
	key := fireKey{name: rule.Name, level: rule.Level}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastFired[key]; ok && now.Sub(last) < rule.Cooldown {
		return domain.Alert{}, false
	}
	if last, ok := l.lastFired[key]; !ok || now.After(last) {
		l.lastFired[key] = now
	}

	alert := &domain.Alert{
		ID:        NewAlertID(rule.Name, rule.Level, now),
		RuleName:  rule.Name,
		Level:     rule.Level,
		Service:   l.service,
		Title:     rule.Name,
		Message:   rule.Description,
		Details:   candidate.Details,
		Channels:  append([]domain.AlertChannel(nil), rule.Channels...),
		Timestamp: now,
	}
	l.insertLocked(alert)
	return alert.Clone(), true
}

// Record inserts one externally built alert bypassing cooldown.
// Params: alert value (escalation derivatives use this path).
// Returns: detached copy of the stored alert.
func (l *Ledger) Record(alert domain.Alert) domain.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := alert.Clone()
	l.insertLocked(&stored)
	return stored.Clone()
}

// Resolve closes one active alert.
// Params: alert id and resolver identity.
// Returns: false when the id is unknown or already resolved; not an error.
func (l *Ledger) Resolve(id, resolvedBy string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	alert, ok := l.active[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = resolvedBy
	delete(l.active, id)
	hook := l.resolveHook
	l.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if l.logger != nil {
		l.logger.Info("alert resolved", "alert_id", id, "resolved_by", resolvedBy)
	}
	return true
}

// EscalateIfActive atomically derives and records an escalation for one alert.
// Params: original alert id and build callback producing the derived alert.
// Returns: detached escalated alert and true only when the original is still
// active and was not escalated before; the re-check happens under the ledger
// lock so a concurrent Resolve wins or loses atomically.
func (l *Ledger) EscalateIfActive(id string, build func(original domain.Alert) domain.Alert) (domain.Alert, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	original, ok := l.active[id]
	if !ok || original.Resolved || original.Escalated {
		return domain.Alert{}, false
	}
	original.Escalated = true

	escalated := build(original.Clone())
	stored := escalated.Clone()
	l.insertLocked(&stored)
	return stored.Clone(), true
}

// Get returns one alert by id from the active set or history.
// Params: alert id.
// Returns: detached copy and presence flag.
func (l *Ledger) Get(id string) (domain.Alert, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if alert, ok := l.active[id]; ok {
		return alert.Clone(), true
	}
	for _, alert := range l.history {
		if alert.ID == id {
			return alert.Clone(), true
		}
	}
	return domain.Alert{}, false
}

// ActiveAlerts lists unresolved alerts, optionally filtered by level.
// Params: optional level filter (nil selects all).
// Returns: detached copies sorted by timestamp descending.
func (l *Ledger) ActiveAlerts(level *domain.AlertLevel) []domain.Alert {
	l.mu.RLock()
	out := make([]domain.Alert, 0, len(l.active))
	for _, alert := range l.active {
		if level != nil && alert.Level != *level {
			continue
		}
		out = append(out, alert.Clone())
	}
	l.mu.RUnlock()

	sortByTimestampDesc(out)
	return out
}

// ActiveByRule lists unresolved alerts fired by one rule.
// Params: rule name.
// Returns: detached copies sorted by timestamp descending.
func (l *Ledger) ActiveByRule(ruleName string) []domain.Alert {
	l.mu.RLock()
	out := make([]domain.Alert, 0)
	for _, alert := range l.active {
		if alert.RuleName != ruleName || alert.Escalated {
			continue
		}
		out = append(out, alert.Clone())
	}
	l.mu.RUnlock()

	sortByTimestampDesc(out)
	return out
}

// History lists alerts created inside the window, optionally filtered by level.
// Params: look-back window and optional level filter.
// Returns: detached copies (resolution state included) sorted descending.
func (l *Ledger) History(window time.Duration, level *domain.AlertLevel) []domain.Alert {
	cutoff := l.clock.Now().Add(-window)

	l.mu.RLock()
	out := make([]domain.Alert, 0)
	for _, alert := range l.history {
		if alert.Timestamp.Before(cutoff) {
			continue
		}
		if level != nil && alert.Level != *level {
			continue
		}
		out = append(out, alert.Clone())
	}
	l.mu.RUnlock()

	sortByTimestampDesc(out)
	return out
}

// Stats aggregates history and active counts over one window.
// Params: look-back window.
// Returns: computed stats snapshot.
func (l *Ledger) Stats(window time.Duration) Stats {
	cutoff := l.clock.Now().Add(-window)

	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		Active:    len(l.active),
		ByLevel:   make(map[domain.AlertLevel]int),
		ByService: make(map[string]int),
	}
	var resolutionTotal time.Duration
	resolvedCount := 0
	for _, alert := range l.history {
		if alert.Timestamp.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByLevel[alert.Level]++
		stats.ByService[alert.Service]++
		if alert.EscalatedFrom != "" {
			stats.Escalated++
		}
		if alert.Resolved && alert.ResolvedAt != nil {
			resolutionTotal += alert.ResolvedAt.Sub(alert.Timestamp)
			resolvedCount++
		}
	}
	if resolvedCount > 0 {
		stats.MeanResolutionMinutes = resolutionTotal.Minutes() / float64(resolvedCount)
	}
	return stats
}

// insertLocked adds one alert to the active set and history under the lock.
// Params: canonical alert pointer shared by both structures.
// Returns: history trimmed to the cap, never dropping active entries.
func (l *Ledger) insertLocked(alert *domain.Alert) {
	l.active[alert.ID] = alert
	l.history = append(l.history, alert)
	if len(l.history) <= l.historyMax {
		return
	}
	trimmed := make([]*domain.Alert, 0, len(l.history))
	over := len(l.history) - l.historyMax
	for _, entry := range l.history {
		if over > 0 && entry.Resolved {
			over--
			continue
		}
		trimmed = append(trimmed, entry)
	}
	l.history = trimmed
}

// NewAlertID builds a unique alert id from the rule key and firing instant.
// Params: rule name, severity, and firing time.
// Returns: id unique even for two alerts firing in the same process tick.
func NewAlertID(ruleName string, level domain.AlertLevel, firedAt time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	var builder strings.Builder
	builder.Grow(len("alert/") + len(ruleName) + len(level) + 24 + len(suffix))
	builder.WriteString("alert/")
	builder.WriteString(sanitize(ruleName))
	builder.WriteByte('/')
	builder.WriteString(string(level))
	builder.WriteByte('/')
	builder.WriteString(strconv.FormatInt(firedAt.UnixMilli(), 10))
	builder.WriteByte('/')
	builder.WriteString(suffix)
	return builder.String()
}

// sanitize converts id path fragments into stable lower-case tokens.
// Params: raw value with possible separators.
// Returns: sanitized string with unsupported chars replaced by underscore.
func sanitize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "_"
	}
	var builder strings.Builder
	builder.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + 32)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

// sortByTimestampDesc orders alerts newest first with id tiebreak.
// Params: alert slice sorted in place.
// Returns: deterministic ordering for queries.
func sortByTimestampDesc(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID > alerts[j].ID
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}
