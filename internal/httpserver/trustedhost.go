package httpserver

import (
	"net/http"
	"strings"

	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/security"
)

// TrustedHost rejects requests whose Host header does not match policy.
// Resolve is called per-request so the caller can look up a tenant-specific
// override (e.g. from ConfigStore) in addition to the global default.
func TrustedHost(resolve func(r *http.Request) *security.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy := resolve(r)
			host := stripPort(r.Host)
			if !policy.Allows(host) {
				errs.Respond(w, errs.HTTPStatus(errs.KindForbidden), errs.Envelope{
					Success: false,
					Message: "host not permitted",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
