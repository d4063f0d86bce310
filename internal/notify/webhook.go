package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"opsalert/internal/config"
	"opsalert/internal/domain"
	"opsalert/internal/permanent"
)

// WebhookSender posts the alert JSON payload to a configured endpoint.
// Params: endpoint URL, method, headers, and optional signing secret.
// Returns: webhook channel implementation.
type WebhookSender struct {
	cfg    config.WebhookNotifier
	client *http.Client
}

// NewWebhookSender creates the webhook sender.
// Params: webhook notifier config.
// Returns: initialized sender.
func NewWebhookSender(cfg config.WebhookNotifier) *WebhookSender {
	return &WebhookSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
	}
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: webhook channel key.
func (s *WebhookSender) Channel() domain.AlertChannel {
	return domain.ChannelWebhook
}

// Deliver posts one alert as JSON. The body is signed with
// HMAC-SHA256 in X-Signature-256 when a secret is configured.
// Client errors (4xx) are marked permanent so retries stop.
// Params: context and alert to deliver.
// Returns: transport or HTTP status error.
func (s *WebhookSender) Deliver(ctx context.Context, alert domain.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode webhook payload: %w", err))
	}

	method := strings.ToUpper(strings.TrimSpace(s.cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	request, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build webhook request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}
	if s.cfg.Secret != "" {
		request.Header.Set("X-Signature-256", "sha256="+signBody(s.cfg.Secret, body))
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode >= 400 && response.StatusCode < 500:
		return permanent.Mark(fmt.Errorf("webhook rejected payload status=%d", response.StatusCode))
	default:
		return fmt.Errorf("webhook unexpected status=%d", response.StatusCode)
	}
}

// signBody computes the hex HMAC-SHA256 of the payload.
// Params: shared secret and raw body bytes.
// Returns: lowercase hex digest.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
