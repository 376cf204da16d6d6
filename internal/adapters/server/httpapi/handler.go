// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evanschultz/kanmetrics/internal/adapters/server/common"
	"github.com/evanschultz/kanmetrics/internal/app"
)

// maxRequestBodyBytes limits decoded snapshot payload size.
const maxRequestBodyBytes int64 = 8 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	reports  common.ReportService
	defaults app.ReportOptions
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. defaults seed every report request.
func NewHandler(reports common.ReportService, defaults app.ReportOptions) *Handler {
	return &Handler{
		reports:  reports,
		defaults: defaults,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "report service is not configured",
		})
		return
	}
	switch normalizePath(r.URL.Path) {
	case "report":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleReport(w, r)
	case "bars":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleBars(w, r)
	case "timeline":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleTimeline(w, r)
	case "snapshot":
		switch r.Method {
		case http.MethodGet:
			h.handleExportSnapshot(w, r)
		case http.MethodPost:
			h.handleImportSnapshot(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    common.CodeNotFound,
			Message: "endpoint not found",
		})
	}
}

// handleReport serves GET `/report`.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := common.ReportQuery{
		Today:       query.Get("today"),
		ETAExpected: query.Get("eta"),
		From:        query.Get("from"),
	}
	var err error
	if req.IncomingStories, err = optionalInt(query, "incoming"); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.LeadTimeWindow, err = optionalInt(query, "window"); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if req.ThroughputWidth, err = optionalInt(query, "throughput_width"); err != nil {
		writeErrorFrom(w, err)
		return
	}
	opts, err := req.Options(h.defaults)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	report, err := h.reports.BuildReport(r.Context(), opts)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleBars serves GET `/bars`.
func (h *Handler) handleBars(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r.URL.Query(), false)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	bars, err := h.reports.ProgressBars(r.Context(), from, to)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bars": bars})
}

// handleTimeline serves GET `/timeline`.
func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r.URL.Query(), true)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	timeline, err := h.reports.Timeline(from, to)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

// handleExportSnapshot serves GET `/snapshot`.
func (h *Handler) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.reports.ExportSnapshot(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleImportSnapshot serves POST `/snapshot`.
func (h *Handler) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap app.Snapshot
	if err := decodeJSONBody(r.Context(), w, r, &snap); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.reports.ImportSnapshot(r.Context(), snap); err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(snap.Items)})
}

// dateRange parses the `from` and `to` query parameters.
func dateRange(query url.Values, required bool) (time.Time, time.Time, error) {
	from, err := common.ParseDate("from", query.Get("from"), time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := common.ParseDate("to", query.Get("to"), time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if required && (from.IsZero() || to.IsZero()) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to are required", common.ErrInvalidRequest)
	}
	return from, to, nil
}

// optionalInt parses one integer query parameter; absent keys yield nil.
func optionalInt(query url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer: %q", common.ErrInvalidRequest, key, raw)
	}
	return &v, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	switch code := common.ErrorCode(err); code {
	case common.CodeNotFound:
		apiErr := APIError{Code: code, Message: message}
		if errors.Is(err, app.ErrEmptyProject) {
			apiErr.Hint = "POST a snapshot to /snapshot before requesting reports."
		}
		writeJSONError(w, http.StatusNotFound, apiErr)
	case common.CodeInvalidRequest:
		writeJSONError(w, http.StatusBadRequest, APIError{Code: code, Message: message})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: code, Message: message})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
