package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/keymanager"
)

// DBContextResolver resolves the Milvus URI and database name a request's
// DB-bound operations should run against, given the authenticated tenant
// code. The Flouds-VectorDB-Token header carries only credentials; the URI
// and database name come from tenant/config state instead.
type DBContextResolver func(ctx context.Context, tenantCode string) (uri, database string, err error)

// Middleware authenticates every request via the Authorization: Bearer
// user:secret header against the KeyManager, resolves the tenant code from
// the authenticated client, and parses an optional Flouds-VectorDB-Token
// header carrying the per-request vector database credential.
func Middleware(mgr *keymanager.Manager, resolveDBContext DBContextResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, secret, err := parseBearer(r.Header.Get("Authorization"))
			if err != nil {
				errs.Respond(w, errs.HTTPStatus(errs.KindAuth), errs.Envelope{
					Success: false,
					Message: err.Error(),
				})
				return
			}

			client, err := mgr.Validate(r.Context(), username, secret)
			if err != nil {
				errs.Respond(w, errs.HTTPStatus(errs.KindAuth), errs.Envelope{
					Success: false,
					Message: "authentication failed",
				})
				return
			}

			ctx := withIdentity(r.Context(), client)
			ctx = withTenantCode(ctx, client.TenantCode)

			if tc := r.Header.Get("X-Tenant-Code"); tc != "" && tc != client.TenantCode {
				errs.Respond(w, errs.HTTPStatus(errs.KindForbidden), errs.Envelope{
					Success: false,
					Message: "X-Tenant-Code does not match the authenticated client's tenant",
				})
				return
			}

			if raw := r.Header.Get("Flouds-VectorDB-Token"); raw != "" {
				dbUser, dbSecret, err := parseDBToken(raw)
				if err != nil {
					errs.Respond(w, errs.HTTPStatus(errs.KindValidation), errs.Envelope{
						Success: false,
						Message: fmt.Sprintf("invalid Flouds-VectorDB-Token: %v", err),
					})
					return
				}

				uri, database, err := resolveDBContext(ctx, client.TenantCode)
				if err != nil {
					errs.Respond(w, errs.HTTPStatus(errs.KindInternal), errs.Envelope{
						Success: false,
						Message: "resolving vector database context",
					})
					return
				}

				ctx = withDBToken(ctx, &DBToken{
					URI:      uri,
					User:     dbUser,
					Password: dbSecret,
					Database: database,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAction returns middleware that denies the request unless the
// authenticated client's allowed_actions includes action.
func RequireAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil || !contains(id.AllowedActions, action) {
				errs.Respond(w, errs.HTTPStatus(errs.KindForbidden), errs.Envelope{
					Success: false,
					Message: fmt.Sprintf("client is not permitted to perform %q", action),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func parseBearer(header string) (username, secret string, err error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "", fmt.Errorf("missing bearer authorization")
	}
	cred := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(cred, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("authorization must be \"Bearer username:secret\"")
	}
	return parts[0], parts[1], nil
}

// parseDBToken parses the Flouds-VectorDB-Token header, formatted as
// "<db_user>|<db_secret>" or "<db_user>:<db_secret>".
func parseDBToken(raw string) (dbUser, dbSecret string, err error) {
	sep := "|"
	if !strings.Contains(raw, sep) {
		sep = ":"
	}
	parts := strings.SplitN(raw, sep, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("token must be \"db_user|db_secret\" or \"db_user:db_secret\"")
	}
	return parts[0], parts[1], nil
}
