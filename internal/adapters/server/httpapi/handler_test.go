package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/domain"
)

// stubReportService records requests and returns fixture responses.
type stubReportService struct {
	report       app.Report
	bars         []app.ProgressBar
	snapshot     app.Snapshot
	err          error
	lastOpts     app.ReportOptions
	lastFrom     time.Time
	lastTo       time.Time
	lastImported app.Snapshot
}

func (s *stubReportService) BuildReport(_ context.Context, opts app.ReportOptions) (app.Report, error) {
	s.lastOpts = opts
	if s.err != nil {
		return app.Report{}, s.err
	}
	return s.report, nil
}

func (s *stubReportService) ProgressBars(_ context.Context, from, to time.Time) ([]app.ProgressBar, error) {
	s.lastFrom, s.lastTo = from, to
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func (s *stubReportService) Timeline(from, to time.Time) ([]time.Time, error) {
	s.lastFrom, s.lastTo = from, to
	if s.err != nil {
		return nil, s.err
	}
	return []time.Time{from, to}, nil
}

func (s *stubReportService) ExportSnapshot(context.Context) (app.Snapshot, error) {
	if s.err != nil {
		return app.Snapshot{}, s.err
	}
	return s.snapshot, nil
}

func (s *stubReportService) ImportSnapshot(_ context.Context, snap app.Snapshot) error {
	s.lastImported = snap
	return s.err
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReportAppliesDefaultsAndQuery(t *testing.T) {
	svc := &stubReportService{report: app.Report{RunID: "run-1", Items: 4}}
	defaults := app.ReportOptions{IncomingStories: 3, LeadTimeWindow: 20}
	handler := NewHandler(svc, defaults)

	rec := serve(handler, http.MethodGet, "/report?today=2014-06-20&incoming=0&throughput_width=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	got := decodeBody[app.Report](t, rec)
	if got.RunID != "run-1" || got.Items != 4 {
		t.Fatalf("unexpected report %+v", got)
	}
	if !svc.lastOpts.Today.Equal(calendar.Date(2014, time.June, 20)) {
		t.Fatalf("today = %s, want 2014-06-20", svc.lastOpts.Today)
	}
	if svc.lastOpts.IncomingStories != 0 || svc.lastOpts.LeadTimeWindow != 20 || svc.lastOpts.ThroughputWidth != 2 {
		t.Fatalf("unexpected options %+v", svc.lastOpts)
	}
}

func TestHandlerReportErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		code   string
	}{
		{name: "bad date", target: "/report?today=20/06/2014", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "bad int", target: "/report?incoming=many", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "range", target: "/report", err: fmt.Errorf("%w: from after today", app.ErrInvalidRange), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty", target: "/report", err: app.ErrEmptyProject, status: http.StatusNotFound, code: "not_found"},
		{name: "internal", target: "/report", err: errors.New("disk full"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&stubReportService{err: tc.err}, app.ReportOptions{})
			rec := serve(handler, http.MethodGet, tc.target, "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			envelope := decodeBody[ErrorEnvelope](t, rec)
			if envelope.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q", envelope.Error.Code, tc.code)
			}
		})
	}
}

func TestHandlerBarsAndTimeline(t *testing.T) {
	svc := &stubReportService{bars: []app.ProgressBar{{ID: 2, Kind: domain.KindUserStory, Bar: "NIIID"}}}
	handler := NewHandler(svc, app.ReportOptions{})

	rec := serve(handler, http.MethodGet, "/bars?from=2014-06-02", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	bars := decodeBody[struct {
		Bars []app.ProgressBar `json:"bars"`
	}](t, rec)
	if len(bars.Bars) != 1 || bars.Bars[0].Bar != "NIIID" {
		t.Fatalf("unexpected bars %+v", bars)
	}
	if !svc.lastTo.IsZero() {
		t.Fatalf("expected open upper bound, got %s", svc.lastTo)
	}

	rec = serve(handler, http.MethodGet, "/timeline?from=2014-06-06", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("timeline without to: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec = serve(handler, http.MethodGet, "/timeline/?from=2014-06-06&to=2014-06-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandlerSnapshotImportExport(t *testing.T) {
	svc := &stubReportService{snapshot: app.Snapshot{Version: app.SnapshotVersion}}
	handler := NewHandler(svc, app.ReportOptions{})

	rec := serve(handler, http.MethodGet, "/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := decodeBody[app.Snapshot](t, rec); got.Version != app.SnapshotVersion {
		t.Fatalf("unexpected snapshot version %q", got.Version)
	}

	body := `{"version":"kanmetrics.snapshot.v1","items":[{"id":9,"kind":"BUG","created_on":"2014-06-02T00:00:00Z","status":"In Progress"}]}`
	rec = serve(handler, http.MethodPost, "/snapshot", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(svc.lastImported.Items) != 1 || svc.lastImported.Items[0].ID != 9 {
		t.Fatalf("unexpected imported snapshot %+v", svc.lastImported)
	}

	for _, bad := range []string{`{"items":[],"extra":true}`, `{"items":[]} {}`, `not json`} {
		rec = serve(handler, http.MethodPost, "/snapshot", bad)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want %d", bad, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandlerRoutingErrors(t *testing.T) {
	handler := NewHandler(&stubReportService{}, app.ReportOptions{})

	rec := serve(handler, http.MethodPost, "/report", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("status = %d allow = %q, want 405 GET", rec.Code, rec.Header().Get("Allow"))
	}
	rec = serve(handler, http.MethodDelete, "/snapshot", "")
	if rec.Header().Get("Allow") != "GET, POST" {
		t.Fatalf("allow = %q, want GET, POST", rec.Header().Get("Allow"))
	}
	rec = serve(handler, http.MethodGet, "/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = serve(NewHandler(nil, app.ReportOptions{}), http.MethodGet, "/report", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
