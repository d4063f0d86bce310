package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"opsalert/internal/domain"
)

const defaultMaxSnapshotBytes = 1 << 20

// HTTPCollector pulls a JSON metrics snapshot from one endpoint.
// Params: endpoint URL, optional headers, and HTTP client timeout.
// Returns: snapshot collector for the monitor loop.
type HTTPCollector struct {
	url      string
	headers  map[string]string
	maxBytes int64
	client   *http.Client
}

// NewHTTPCollector creates a snapshot collector.
// Params: endpoint URL, static request headers, and request timeout
// (0 selects a 10s default).
// Returns: initialized collector or configuration error.
func NewHTTPCollector(url string, headers map[string]string, timeout time.Duration) (*HTTPCollector, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("collector url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCollector{
		url:      url,
		headers:  headers,
		maxBytes: defaultMaxSnapshotBytes,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Collect fetches and decodes one snapshot.
// Params: context bounding the request.
// Returns: decoded snapshot or transport/decode error.
func (c *HTTPCollector) Collect(ctx context.Context) (domain.Snapshot, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		request.Header.Set(key, value)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot endpoint status=%d", response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}
