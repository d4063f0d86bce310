package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"opsalert/internal/clock"
	"opsalert/internal/config"
	"opsalert/internal/domain"
)

func TestServiceFiresAndDeliversAlert(t *testing.T) {
	t.Parallel()

	metrics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error_rate_percent": 9.5}`))
	}))
	defer metrics.Close()

	var (
		mu        sync.Mutex
		delivered []domain.Alert
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert domain.Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		mu.Lock()
		delivered = append(delivered, alert)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	configBody := `
[service]
name = "checkout"
poll_interval_sec = 1
builtin_rules = false

[log.console]
enabled = true
level = "error"
format = "line"

[collector]
url = "` + metrics.URL + `"
timeout_sec = 2

[notify.webhook]
enabled = true
url = "` + hook.URL + `"
timeout_sec = 2

[rule.high_error_rate]
metric = "error_rate_percent"
op = ">"
threshold = 5.0
level = "error"
channels = ["webhook"]
cooldown_sec = 300
`
	path := filepath.Join(t.TempDir(), "opsalert.toml")
	if err := os.WriteFile(path, []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	service, err := NewService(config.ConfigSource{File: path}, clock.RealClock{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- service.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		count := len(delivered)
		mu.Unlock()
		if count > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no alert delivered before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("service did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	alert := delivered[0]
	if alert.RuleName != "high_error_rate" || alert.Level != domain.LevelError {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if alert.Service != "checkout" {
		t.Fatalf("service label missing: %+v", alert)
	}
	if alert.Details["error_rate_percent"] == "" {
		t.Fatalf("details excerpt missing: %+v", alert.Details)
	}
}

func TestNewServiceRejectsBrokenConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "opsalert.toml")
	if err := os.WriteFile(path, []byte(`
[collector]
url = ""
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewService(config.ConfigSource{File: path}, clock.RealClock{}); err == nil {
		t.Fatalf("expected config validation error")
	}
}
