package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"opsalert/internal/config"
	"opsalert/internal/domain"
	"opsalert/internal/permanent"
)

// TrackerSender forwards alerts to an error-tracker capture endpoint.
// Alerts below the configured minimum level are skipped silently.
// Params: capture URL, auth token, and minimum forwarded level.
// Returns: tracker channel implementation.
type TrackerSender struct {
	cfg      config.TrackerNotifier
	minLevel domain.AlertLevel
	client   *http.Client
}

// trackerEvent is the capture payload shape.
// Params: severity, message, and structured context fields.
// Returns: JSON body for the capture endpoint.
type trackerEvent struct {
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// NewTrackerSender creates the tracker sender.
// Params: tracker notifier config; min_level was validated at load.
// Returns: initialized sender.
func NewTrackerSender(cfg config.TrackerNotifier) *TrackerSender {
	minLevel, err := domain.ParseLevel(cfg.MinLevel)
	if err != nil {
		minLevel = domain.LevelError
	}
	return &TrackerSender{
		cfg:      cfg,
		minLevel: minLevel,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: tracker channel key.
func (s *TrackerSender) Channel() domain.AlertChannel {
	return domain.ChannelTracker
}

// Deliver posts one capture event for alerts at or above the minimum
// level. Client errors (4xx) are marked permanent so retries stop.
// Params: context and alert to deliver.
// Returns: transport or HTTP status error; nil for filtered alerts.
func (s *TrackerSender) Deliver(ctx context.Context, alert domain.Alert) error {
	if alert.Level.Rank() < s.minLevel.Rank() {
		return nil
	}

	event := trackerEvent{
		Level:     string(alert.Level),
		Message:   Subject(alert),
		Timestamp: alert.Timestamp,
		Tags: map[string]string{
			"rule":     alert.RuleName,
			"service":  alert.Service,
			"alert_id": alert.ID,
		},
		Extra: alert.Details,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode tracker event: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build tracker request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		request.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("tracker send: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return permanent.Mark(fmt.Errorf("tracker rejected event status=%d", response.StatusCode))
	default:
		return fmt.Errorf("tracker unexpected status=%d", response.StatusCode)
	}
}
