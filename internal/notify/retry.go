package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsalert/internal/config"
	"opsalert/internal/dispatch"
	"opsalert/internal/domain"
	"opsalert/internal/permanent"
)

// RetrySender wraps one channel sender with a retry policy. Failures
// carrying the permanent marker stop retrying immediately.
// Params: wrapped sender, policy, and logger.
// Returns: sender with transparent retry behavior.
type RetrySender struct {
	inner  dispatch.Sender
	retry  config.NotifyRetry
	logger *slog.Logger
}

// WithRetry wraps a sender with a retry policy when enabled.
// Params: sender, retry policy, and logger for attempt warnings.
// Returns: wrapped sender, or the original when retries are disabled.
func WithRetry(inner dispatch.Sender, retry config.NotifyRetry, logger *slog.Logger) dispatch.Sender {
	if !retry.Enabled {
		return inner
	}
	return &RetrySender{inner: inner, retry: retry, logger: logger}
}

// Channel returns the wrapped sender channel.
// Params: none.
// Returns: channel identity.
func (s *RetrySender) Channel() domain.AlertChannel {
	return s.inner.Channel()
}

// Deliver retries the wrapped delivery with fixed or exponential
// backoff until success, a permanent failure, attempt exhaustion, or
// context cancellation.
// Params: context bounding all attempts and alert to deliver.
// Returns: nil on success or the last delivery error.
func (s *RetrySender) Deliver(ctx context.Context, alert domain.Alert) error {
	attempt := 0
	backoff := time.Duration(s.retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(s.retry.MaxMS) * time.Millisecond
	var timer *time.Timer
	defer func() {
		if timer != nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}()

	for {
		attempt++
		err := s.inner.Deliver(ctx, alert)
		if err == nil {
			if attempt > 1 && s.logger != nil {
				s.logger.Info("delivery recovered after retries",
					"channel", string(s.Channel()), "alert_id", alert.ID, "attempt", attempt)
			}
			return nil
		}
		if permanent.Is(err) {
			return fmt.Errorf("channel %s permanent failure: %w", s.Channel(), err)
		}
		if s.logger != nil {
			s.logger.Warn("delivery attempt failed",
				"channel", string(s.Channel()), "alert_id", alert.ID, "attempt", attempt, "error", err.Error())
		}
		if s.retry.MaxAttempts > 0 && attempt >= s.retry.MaxAttempts {
			return fmt.Errorf("channel %s failed after %d attempts: %w", s.Channel(), attempt, err)
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(s.retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}
