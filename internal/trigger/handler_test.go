package trigger

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

	"github.com/fpang/order-image-pipeline/internal/batch"
	"github.com/fpang/order-image-pipeline/internal/order"
)

type fakeRunner struct {
	report  *order.RunReport
	runErr  error
	next    *batch.NextResult
	nextErr error

	runCalls    int
	nextCalls   int
	hadDeadline bool
}

func (f *fakeRunner) Run(ctx context.Context) (*order.RunReport, error) {
	f.runCalls++
	_, f.hadDeadline = ctx.Deadline()
	return f.report, f.runErr
}

func (f *fakeRunner) ProcessNext(ctx context.Context) (*batch.NextResult, error) {
	f.nextCalls++
	return f.next, f.nextErr
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(NewHandler(&fakeRunner{}, 0), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestProcessNext_MethodNotAllowed(t *testing.T) {
	runner := &fakeRunner{}
	rec := serve(NewHandler(runner, 0), http.MethodGet, "/process-next")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Method Not Allowed") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if runner.nextCalls != 0 {
		t.Errorf("runner should not be called")
	}
}

func TestProcessNext(t *testing.T) {
	tests := []struct {
		name       string
		next       *batch.NextResult
		nextErr    error
		wantCode   int
		wantStatus string
		wantError  string
	}{
		{
			name:       "no work",
			next:       &batch.NextResult{Status: batch.NextNoWork, Message: batch.MessageNoWork},
			wantCode:   http.StatusOK,
			wantStatus: batch.NextNoWork,
		},
		{
			name:       "success",
			next:       &batch.NextResult{Status: batch.NextSuccess, Email: "anna@example.com", Links: []string{"https://cdn/a.jpg"}},
			wantCode:   http.StatusOK,
			wantStatus: batch.NextSuccess,
		},
		{
			name:       "no images is handled",
			next:       &batch.NextResult{Status: batch.NextError, Message: batch.MessageNoImages},
			wantCode:   http.StatusOK,
			wantStatus: batch.NextError,
		},
		{
			name:       "failure with result",
			next:       &batch.NextResult{Status: batch.NextError, Error: "write-back failed"},
			nextErr:    errors.New("write-back failed"),
			wantCode:   http.StatusInternalServerError,
			wantStatus: batch.NextError,
			wantError:  "write-back failed",
		},
		{
			name:       "failure without result",
			nextErr:    errors.New("boom"),
			wantCode:   http.StatusInternalServerError,
			wantStatus: batch.NextError,
			wantError:  "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{next: tt.next, nextErr: tt.nextErr}
			rec := serve(NewHandler(runner, 0), http.MethodPost, "/process-next")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("unexpected Content-Type: %s", ct)
			}
			var got batch.NextResult
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON %s: %v", rec.Body.String(), err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
		})
	}
}

func TestScheduled_GetReturnsHint(t *testing.T) {
	runner := &fakeRunner{}
	rec := serve(NewHandler(runner, 0), http.MethodGet, "/scheduled-processor")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("unexpected Content-Type: %s", ct)
	}
	if rec.Body.String() != usageHint {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
	if runner.runCalls != 0 {
		t.Errorf("GET should not start a run")
	}
}

func TestScheduled_PostReturnsReport(t *testing.T) {
	report := order.NewRunReport("run-abc", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	report.RecordsFound = 2
	report.RecordsProcessed = 1
	report.SuccessCount = 1
	report.ErrorCount = 1
	report.Errors = append(report.Errors, order.ReportError{ItemID: "rec2", Message: "image failed"})
	runner := &fakeRunner{report: &report}

	rec := serve(NewHandler(runner, time.Minute), http.MethodPost, "/scheduled-processor")
	if rec.Code != http.StatusOK {
		t.Fatalf("item errors should still return 200, got %d", rec.Code)
	}
	if !runner.hadDeadline {
		t.Errorf("run timeout should bound the run context")
	}
	var got order.RunReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.RunID != "run-abc" || got.RecordsFound != 2 || got.ErrorCount != 1 || len(got.Errors) != 1 {
		t.Errorf("unexpected report: %+v", got)
	}
}

func TestScheduled_NoTimeout(t *testing.T) {
	report := order.NewRunReport("run-abc", time.Now())
	runner := &fakeRunner{report: &report}
	serve(NewHandler(runner, 0), http.MethodPost, "/scheduled-processor")
	if runner.hadDeadline {
		t.Errorf("zero timeout should leave the context unbounded")
	}
}

func TestScheduled_Fatal(t *testing.T) {
	report := order.NewRunReport("run-abc", time.Now())
	report.ErrorCount = 1
	report.Errors = append(report.Errors, order.ReportError{Message: "query failed"})
	runner := &fakeRunner{report: &report, runErr: fmt.Errorf("%w: query failed", batch.ErrFatal)}

	rec := serve(NewHandler(runner, 0), http.MethodPost, "/scheduled-processor")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var got order.RunReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.ErrorCount != 1 {
		t.Errorf("fatal response should carry the report, got %+v", got)
	}
}

func TestScheduled_ErrorWithoutReport(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("boom")}
	rec := serve(NewHandler(runner, 0), http.MethodPost, "/scheduled-processor")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("internal details should not reach the client: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "batch run failed") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestScheduled_MethodNotAllowed(t *testing.T) {
	rec := serve(NewHandler(&fakeRunner{}, 0), http.MethodDelete, "/scheduled-processor")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	rec := serve(NewHandler(&fakeRunner{}, 0), http.MethodGet, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, statusCode: http.StatusOK}
	sr.WriteHeader(http.StatusTeapot)
	if sr.statusCode != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Errorf("status not captured: recorder=%d underlying=%d", sr.statusCode, rec.Code)
	}
}
