package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"opsalert/internal/config"
	"opsalert/internal/domain"
	"opsalert/internal/permanent"

	"github.com/nats-io/nats.go"
)

const streamMaxAge = 7 * 24 * time.Hour

// StreamSender publishes fired alerts to a JetStream subject for
// downstream consumers (long-term storage, dashboards).
// Params: NATS connection, JetStream context, and publish subject.
// Returns: stream channel implementation.
type StreamSender struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewStreamSender connects to NATS and ensures the alert stream exists.
// Params: stream notifier config with URLs and subject.
// Returns: initialized sender or connection/setup error.
func NewStreamSender(cfg config.StreamNotifier) (*StreamSender, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect alert stream nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for alert stream: %w", err)
	}
	if err := ensureAlertStream(js, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}
	return &StreamSender{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: stream channel key.
func (s *StreamSender) Channel() domain.AlertChannel {
	return domain.ChannelStream
}

// Deliver publishes one alert as JSON. The alert id doubles as the
// message id so JetStream deduplicates redelivered publishes.
// Params: context and alert to publish.
// Returns: publish error.
func (s *StreamSender) Deliver(ctx context.Context, alert domain.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode alert stream payload: %w", err))
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", alert.ID)
	if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *StreamSender) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	s.nc.Close()
	return nil
}

// ensureAlertStream ensures the alert stream exists.
// Params: JetStream context and publish subject.
// Returns: stream create/lookup error.
func ensureAlertStream(js nats.JetStreamContext, subject string) error {
	streamName := streamNameForSubject(subject)
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if err != nats.ErrStreamNotFound && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}

// streamNameForSubject derives a stream name from the publish subject.
// Params: publish subject.
// Returns: upper-cased name with dots replaced.
func streamNameForSubject(subject string) string {
	return strings.ToUpper(strings.ReplaceAll(subject, ".", "_"))
}
