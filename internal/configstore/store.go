// Package configstore is the tenant-scoped key/value configuration backing
// CORS and trusted-host policy (and any other per-tenant override). Reads
// are served from an in-memory cache that is invalidated on write, both
// locally and — via Redis pub/sub — across every other gateway process
// sharing the same control database.
package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// InvalidateChannel is the Redis pub/sub channel used to broadcast cache
// invalidations to every gateway process.
const InvalidateChannel = "configstore:invalidate"

// Entry is a single configuration value, scoped to a tenant (or global,
// when TenantCode is empty).
type Entry struct {
	Key        string
	TenantCode string
	Value      string
	Encrypted  bool
}

// Store reads and writes config_kv rows, serving reads from a
// write-invalidated cache.
type Store struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	logger *slog.Logger
	cache  *cache
}

// New creates a Store and begins listening for cross-process invalidations.
// The returned context should be the application's root context; listening
// stops when it is cancelled.
func New(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *Store {
	s := &Store{pool: pool, rdb: rdb, logger: logger, cache: newCache()}
	if rdb != nil {
		go s.listenInvalidations(ctx)
	}
	return s
}

// Get returns the value for key scoped to tenantCode, falling back to the
// global (empty tenant code) entry if no tenant-specific override exists.
func (s *Store) Get(ctx context.Context, key, tenantCode string) (string, bool, error) {
	if v, ok := s.cache.get(key, tenantCode); ok {
		return v, true, nil
	}

	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM config_kv WHERE key = $1 AND tenant_code = $2
	`, key, tenantCode).Scan(&value)
	if err == nil {
		s.cache.set(key, tenantCode, value)
		return value, true, nil
	}
	if err != pgx.ErrNoRows {
		return "", false, fmt.Errorf("reading config %s/%s: %w", key, tenantCode, err)
	}

	if tenantCode == "" {
		return "", false, nil
	}

	// Fall back to the global default.
	return s.Get(ctx, key, "")
}

// GetJSON unmarshals a config value into dest.
func (s *Store) GetJSON(ctx context.Context, key, tenantCode string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key, tenantCode)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshalling config %s/%s: %w", key, tenantCode, err)
	}
	return true, nil
}

// Set writes a config value and invalidates the cache, locally and across
// every other gateway process.
func (s *Store) Set(ctx context.Context, key, tenantCode, value string, encrypted bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config_kv (key, tenant_code, value, encrypted, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (key, tenant_code) DO UPDATE SET
			value = EXCLUDED.value, encrypted = EXCLUDED.encrypted, updated_at = now()
	`, key, tenantCode, value, encrypted)
	if err != nil {
		return fmt.Errorf("writing config %s/%s: %w", key, tenantCode, err)
	}

	s.cache.invalidate(key, tenantCode)
	s.broadcastInvalidation(ctx, key, tenantCode)
	return nil
}

// Delete removes a config value and invalidates the cache.
func (s *Store) Delete(ctx context.Context, key, tenantCode string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM config_kv WHERE key = $1 AND tenant_code = $2`, key, tenantCode); err != nil {
		return fmt.Errorf("deleting config %s/%s: %w", key, tenantCode, err)
	}
	s.cache.invalidate(key, tenantCode)
	s.broadcastInvalidation(ctx, key, tenantCode)
	return nil
}

type invalidationMessage struct {
	Key        string `json:"key"`
	TenantCode string `json:"tenant_code"`
}

func (s *Store) broadcastInvalidation(ctx context.Context, key, tenantCode string) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(invalidationMessage{Key: key, TenantCode: tenantCode})
	if err != nil {
		s.logger.Error("marshalling invalidation message", "error", err)
		return
	}
	if err := s.rdb.Publish(ctx, InvalidateChannel, payload).Err(); err != nil {
		s.logger.Warn("publishing config invalidation", "error", err)
	}
}

func (s *Store) listenInvalidations(ctx context.Context) {
	sub := s.rdb.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var inv invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				s.logger.Warn("decoding config invalidation", "error", err)
				continue
			}
			s.cache.invalidate(inv.Key, inv.TenantCode)
		}
	}
}
