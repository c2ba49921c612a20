package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vectorgate/vectorgate/internal/configstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r := httptest.NewRequest(method, target, bytes.NewReader(buf))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestSetConfigRejectsEmptyValue(t *testing.T) {
	h := NewConfigHandler(&configstore.Store{}, nil, testLogger())

	_, err := h.set(newJSONRequest(t, http.MethodPut, "/config/cors_origins", setConfigBody{Value: ""}))
	if err == nil {
		t.Fatal("expected a validation error for an empty config value")
	}
}
