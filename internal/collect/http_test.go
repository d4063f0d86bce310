package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPCollectorDecodesSnapshot(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("X-Auth") != "token" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"error_rate_percent": 7.2, "database_healthy": true}`))
	}))
	defer server.Close()

	collector, err := NewHTTPCollector(server.URL, map[string]string{"X-Auth": "token"}, time.Second)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	snapshot, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	rate, ok := snapshot.Number("error_rate_percent")
	if !ok || rate != 7.2 {
		t.Fatalf("unexpected snapshot value: %v %v", rate, ok)
	}
}

func TestHTTPCollectorReportsBadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	collector, err := NewHTTPCollector(server.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	if _, err := collector.Collect(context.Background()); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestHTTPCollectorReportsDecodeFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(`not-json`))
	}))
	defer server.Close()

	collector, err := NewHTTPCollector(server.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	if _, err := collector.Collect(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestHTTPCollectorRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPCollector("  ", nil, time.Second); err == nil {
		t.Fatalf("expected missing url error")
	}
}
