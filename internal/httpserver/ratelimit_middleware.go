package httpserver

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/ratelimit"
)

// TierResolver looks up the rate-limit tier for a tenant code.
type TierResolver func(tenantCode string) ratelimit.Tier

// RateLimit enforces the per-IP and per-tenant buckets on every request.
// Per-IP applies to every request; per-tenant only once a client has been
// authenticated (the tenant code is resolved from context).
func RateLimit(limiter *ratelimit.Limiter, tiers TierResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ip := clientIP(r)

			if !limiter.AllowIP(ip, now) {
				errs.Respond(w, errs.HTTPStatus(errs.KindRateLimited), errs.Envelope{
					Success: false,
					Message: "too many requests from this IP",
				})
				return
			}

			if tenantCode := auth.TenantFromContext(r.Context()); tenantCode != "" {
				tier := tiers(tenantCode)
				if !limiter.AllowTenant(tenantCode, tier, now) {
					errs.Respond(w, errs.HTTPStatus(errs.KindRateLimited), errs.Envelope{
						Success:    false,
						Message:    "tenant request rate exceeded",
						TenantCode: tenantCode,
					})
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
