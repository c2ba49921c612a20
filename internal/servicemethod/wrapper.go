// Package servicemethod provides the cross-cutting wrapper every
// data-plane and control-plane handler runs through: it resolves the
// tenant code, times the call, classifies any error into the right HTTP
// status, and shapes the response envelope uniformly.
package servicemethod

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/errs"
)

// Handler is the signature every wrapped operation implements: it returns
// a JSON-serializable result or a classified error.
type Handler func(r *http.Request) (result any, err error)

// Wrap adapts a Handler into an http.HandlerFunc, applying timing, tenant
// resolution, and uniform success/error response shaping.
func Wrap(logger *slog.Logger, name string, h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tenantCode := auth.TenantFromContext(r.Context())

		result, err := h(r)
		elapsed := time.Since(start)

		if err != nil {
			kind := errs.KindOf(err)
			if kind == errs.KindInternal {
				logger.Error("service method failed", "method", name, "tenant_code", tenantCode, "error", err)
			}
			errs.RespondError(w, tenantCode, elapsed, err)
			return
		}

		errs.Respond(w, http.StatusOK, errs.Envelope{
			Success:     true,
			TenantCode:  tenantCode,
			Results:     result,
			TimeTakenMS: elapsed.Milliseconds(),
		})
	}
}
