package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"opsalert/internal/config"
	"opsalert/internal/domain"
	"opsalert/internal/ledger"
)

const (
	defaultHistoryHours = 24
	maxResolveBodySize  = 64 << 10
)

// Handler serves the operator alert API over the ledger.
// Params: ledger queries, readiness probe callback, and logger.
// Returns: HTTP handler set for the API mux.
type Handler struct {
	ledger *ledger.Ledger
	ready  func() bool
	logger *slog.Logger
}

// NewHandler creates the operator API handler.
// Params: ledger, readiness callback (nil means always ready), and logger.
// Returns: configured handler.
func NewHandler(ledger *ledger.Ledger, ready func() bool, logger *slog.Logger) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{ledger: ledger, ready: ready, logger: logger}
}

// Router builds the API mux including health/readiness probes.
// Params: API section with probe paths.
// Returns: mux ready to serve.
func (h *Handler) Router(cfg config.APIConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.HealthPath, h.handleHealth)
	mux.HandleFunc(cfg.ReadyPath, h.handleReady)
	mux.HandleFunc("/api/alerts/active", h.handleActive)
	mux.HandleFunc("/api/alerts/history", h.handleHistory)
	mux.HandleFunc("/api/alerts/stats", h.handleStats)
	mux.HandleFunc("/api/alerts/resolve", h.handleResolve)
	return mux
}

// handleHealth reports process liveness.
// Params: HTTP request/response writer pair.
// Returns: 200 with ok body.
func (h *Handler) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

// handleReady reports readiness of the monitor loop.
// Params: HTTP request/response writer pair.
// Returns: 200 when ready, 503 otherwise.
func (h *Handler) handleReady(writer http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

// handleActive lists active alerts with an optional level filter.
// Params: GET request with optional level query parameter.
// Returns: JSON alert list sorted newest first.
func (h *Handler) handleActive(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	level, err := parseLevelParam(request.URL.Query().Get("level"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(writer, h.ledger.ActiveAlerts(level))
}

// handleHistory lists alerts within a window with an optional level filter.
// Params: GET request with optional hours and level query parameters.
// Returns: JSON alert list sorted newest first.
func (h *Handler) handleHistory(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := request.URL.Query()
	level, err := parseLevelParam(query.Get("level"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	window, err := parseHoursParam(query.Get("hours"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(writer, h.ledger.History(window, level))
}

// handleStats summarizes alerts within a window.
// Params: GET request with optional hours query parameter.
// Returns: JSON stats document.
func (h *Handler) handleStats(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window, err := parseHoursParam(request.URL.Query().Get("hours"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(writer, h.ledger.Stats(window))
}

// resolveRequest is the manual resolution body.
// Params: alert id and operator identity.
// Returns: decoded resolve parameters.
type resolveRequest struct {
	ID         string `json:"id"`
	ResolvedBy string `json:"resolved_by"`
}

// handleResolve resolves one active alert by id.
// Params: POST request with JSON id and resolved_by.
// Returns: 200 with resolved flag; 404 for unknown or already-resolved id.
func (h *Handler) handleResolve(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	request.Body = http.MaxBytesReader(writer, request.Body, maxResolveBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "read request body")
		return
	}
	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid resolve payload")
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(writer, http.StatusBadRequest, "id is required")
		return
	}
	resolvedBy := strings.TrimSpace(req.ResolvedBy)
	if resolvedBy == "" {
		resolvedBy = "operator"
	}

	resolved := h.ledger.Resolve(req.ID, resolvedBy)
	if !resolved {
		writeError(writer, http.StatusNotFound, "alert is not active")
		return
	}
	if h.logger != nil {
		h.logger.Info("alert resolved via api", "alert_id", req.ID, "resolved_by", resolvedBy)
	}
	writeJSON(writer, map[string]any{"resolved": true, "id": req.ID})
}

// parseLevelParam validates an optional level query value.
// Params: raw query value.
// Returns: level pointer or nil when absent.
func parseLevelParam(raw string) (*domain.AlertLevel, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	level, err := domain.ParseLevel(raw)
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// parseHoursParam converts an optional hours query value into a window.
// Params: raw query value.
// Returns: window duration; 24h when absent.
func parseHoursParam(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultHistoryHours * time.Hour, nil
	}
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || hours <= 0 {
		return 0, fmt.Errorf("hours must be a positive integer")
	}
	return time.Duration(hours) * time.Hour, nil
}

// writeJSON encodes one response body.
// Params: response writer and payload.
// Returns: 200 with JSON body.
func writeJSON(writer http.ResponseWriter, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(writer).Encode(payload)
}

// writeError encodes one error body.
// Params: response writer, status code, and message.
// Returns: status with JSON error body.
func writeError(writer http.ResponseWriter, status int, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{"error": message})
}
