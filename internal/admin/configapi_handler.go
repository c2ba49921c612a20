// Package admin exposes operator-facing control-plane endpoints: per-tenant
// configuration overrides (CORS origins, trusted hosts, and any other
// config_kv-backed setting) and client credential fingerprint listing.
// These endpoints require the "admin" action grant.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorgate/vectorgate/internal/audit"
	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/configstore"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/httpserver"
	"github.com/vectorgate/vectorgate/internal/servicemethod"
)

// ConfigHandler exposes configstore reads and writes over HTTP.
type ConfigHandler struct {
	store  *configstore.Store
	audit  *audit.Writer
	logger *slog.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(store *configstore.Store, auditWriter *audit.Writer, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{store: store, audit: auditWriter, logger: logger}
}

// Routes mounts config endpoints onto r. Callers should gate r with
// auth.RequireAction("admin") before mounting.
func (h *ConfigHandler) Routes(r chi.Router) {
	r.Get("/config/{key}", servicemethod.Wrap(h.logger, "admin.config.get", h.get))
	r.Put("/config/{key}", servicemethod.Wrap(h.logger, "admin.config.set", h.set))
	r.Delete("/config/{key}", servicemethod.Wrap(h.logger, "admin.config.delete", h.delete))
}

type setConfigBody struct {
	Value     string `json:"value" validate:"required"`
	Encrypted bool   `json:"encrypted"`
	// Global, when true, writes the tenant-independent default instead of
	// an override scoped to the caller's own tenant.
	Global bool `json:"global"`
}

type configResponse struct {
	Key        string `json:"key"`
	TenantCode string `json:"tenant_code,omitempty"`
	Value      string `json:"value"`
}

func (h *ConfigHandler) get(r *http.Request) (any, error) {
	key := chi.URLParam(r, "key")
	tenantCode := auth.TenantFromContext(r.Context())

	value, ok, err := h.store.Get(r.Context(), key, tenantCode)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "reading config", err)
	}
	if !ok {
		return nil, errs.New(errs.KindNotFound, "config key not set")
	}

	return configResponse{Key: key, TenantCode: tenantCode, Value: value}, nil
}

func (h *ConfigHandler) set(r *http.Request) (any, error) {
	key := chi.URLParam(r, "key")

	var body setConfigBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	tenantCode := auth.TenantFromContext(r.Context())
	if body.Global {
		tenantCode = ""
	}

	if err := h.store.Set(r.Context(), key, tenantCode, body.Value, body.Encrypted); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "writing config", err)
	}

	if detail, err := json.Marshal(map[string]any{"key": key, "global": body.Global}); err == nil {
		h.audit.LogFromRequest(r, "config.set", "config:"+key, detail)
	}

	return configResponse{Key: key, TenantCode: tenantCode, Value: body.Value}, nil
}

func (h *ConfigHandler) delete(r *http.Request) (any, error) {
	key := chi.URLParam(r, "key")
	tenantCode := auth.TenantFromContext(r.Context())

	if err := h.store.Delete(r.Context(), key, tenantCode); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "deleting config", err)
	}

	h.audit.LogFromRequest(r, "config.delete", "config:"+key, nil)

	return map[string]bool{"deleted": true}, nil
}
