package errs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Envelope is the response shape every ServiceMethod-wrapped handler writes,
// on success or failure alike.
type Envelope struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	TenantCode  string `json:"tenant_code,omitempty"`
	Timestamp   string `json:"timestamp"`
	Results     any    `json:"results,omitempty"`
	TimeTakenMS int64  `json:"time_taken_ms"`
}

// Respond writes an Envelope as JSON with the given HTTP status.
func Respond(w http.ResponseWriter, status int, env Envelope) {
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// RespondError writes a failure Envelope, sanitizing the message and
// selecting the status code from the error's Kind.
func RespondError(w http.ResponseWriter, tenantCode string, elapsed time.Duration, err error) {
	kind := KindOf(err)
	msg := Sanitize(err.Error())
	Respond(w, HTTPStatus(kind), Envelope{
		Success:     false,
		Message:     msg,
		TenantCode:  tenantCode,
		TimeTakenMS: elapsed.Milliseconds(),
	})
}
