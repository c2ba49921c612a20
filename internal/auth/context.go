// Package auth authenticates incoming requests against the KeyManager and
// resolves the tenant and vector-database binding the request operates
// under.
package auth

import (
	"context"

	"github.com/vectorgate/vectorgate/internal/keymanager"
)

type contextKey string

const (
	identityKey contextKey = "auth_identity"
	tenantKey   contextKey = "tenant_code"
	dbTokenKey  contextKey = "vectordb_token"
)

// Identity is the authenticated client bound to the current request.
type Identity struct {
	Username       string
	TenantCode     string
	AllowedActions []string
}

// DBToken carries the per-request vector database binding: the URI, user,
// and database a data-plane operation should run against. User and
// Password come from the Flouds-VectorDB-Token header; URI and database are
// filled in by the DBContextResolver.
type DBToken struct {
	URI      string
	User     string
	Password string
	Database string
}

func withIdentity(ctx context.Context, id *keymanager.Client) context.Context {
	return context.WithValue(ctx, identityKey, &Identity{
		Username:       id.Username,
		TenantCode:     id.TenantCode,
		AllowedActions: id.AllowedActions,
	})
}

// FromContext returns the authenticated identity, or nil if unauthenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

func withTenantCode(ctx context.Context, tenantCode string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantCode)
}

// TenantFromContext returns the resolved tenant code for the request.
func TenantFromContext(ctx context.Context) string {
	tc, _ := ctx.Value(tenantKey).(string)
	return tc
}

func withDBToken(ctx context.Context, tok *DBToken) context.Context {
	return context.WithValue(ctx, dbTokenKey, tok)
}

// DBTokenFromContext returns the per-request vector database binding, or
// nil if the request carried no Flouds-VectorDB-Token header.
func DBTokenFromContext(ctx context.Context) *DBToken {
	tok, _ := ctx.Value(dbTokenKey).(*DBToken)
	return tok
}
