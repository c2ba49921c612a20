package servicemethod

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vectorgate/vectorgate/internal/errs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWrapSuccess(t *testing.T) {
	h := Wrap(testLogger(), "test.op", func(r *http.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var env errs.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !env.Success {
		t.Error("expected success envelope")
	}
}

func TestWrapValidationError(t *testing.T) {
	h := Wrap(testLogger(), "test.op", func(r *http.Request) (any, error) {
		return nil, errs.New(errs.KindValidation, "dimension is required")
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var env errs.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Success {
		t.Error("expected failure envelope")
	}
	if env.Message != "dimension is required" {
		t.Errorf("unexpected message: %q", env.Message)
	}
}

func TestWrapInternalErrorSanitized(t *testing.T) {
	h := Wrap(testLogger(), "test.op", func(r *http.Request) (any, error) {
		return nil, errs.Wrap(errs.KindInternal, "connecting to postgres://admin:hunter2@db:5432/x failed", nil)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Error("expected password to be sanitized from error message")
	}
}
