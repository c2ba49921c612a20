package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vectorgate/vectorgate/internal/audit"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/keymanager"
	"github.com/vectorgate/vectorgate/internal/servicemethod"
)

// FingerprintsHandler exposes client credential metadata for operator
// auditing. The list endpoint returns metadata only; the reveal-secret
// endpoint returns a client's decrypted secret.
type FingerprintsHandler struct {
	manager *keymanager.Manager
	audit   *audit.Writer
	logger  *slog.Logger
}

// NewFingerprintsHandler creates a FingerprintsHandler.
func NewFingerprintsHandler(manager *keymanager.Manager, auditWriter *audit.Writer, logger *slog.Logger) *FingerprintsHandler {
	return &FingerprintsHandler{manager: manager, audit: auditWriter, logger: logger}
}

// Routes mounts the fingerprints endpoints onto r. Callers should gate r
// with auth.RequireAction("admin") before mounting.
func (h *FingerprintsHandler) Routes(r chi.Router) {
	r.Get("/clients/fingerprints", servicemethod.Wrap(h.logger, "admin.fingerprints.list", h.list))
	r.Post("/clients/{username}/reveal-secret", servicemethod.Wrap(h.logger, "admin.fingerprints.reveal", h.reveal))
}

type fingerprintEntry struct {
	Username    string     `json:"username"`
	TenantCode  string     `json:"tenant_code"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

func (h *FingerprintsHandler) list(r *http.Request) (any, error) {
	clients, err := h.manager.ListFingerprints(r.Context())
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "listing client fingerprints", err)
	}

	entries := make([]fingerprintEntry, 0, len(clients))
	for _, c := range clients {
		entries = append(entries, fingerprintEntry{
			Username:    c.Username,
			TenantCode:  c.TenantCode,
			Fingerprint: c.Fingerprint,
			CreatedAt:   c.CreatedAt,
			LastUsedAt:  c.LastUsedAt,
		})
	}
	return entries, nil
}

func (h *FingerprintsHandler) reveal(r *http.Request) (any, error) {
	username := chi.URLParam(r, "username")

	secret, err := h.manager.RevealSecret(r.Context(), username)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, "revealing client secret", err)
	}

	h.audit.LogFromRequest(r, "reveal_secret", "client:"+username, nil)

	return map[string]string{"secret": secret}, nil
}
