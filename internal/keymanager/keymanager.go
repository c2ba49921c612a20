// Package keymanager owns client credential lifecycle: generating and
// validating the username:secret pairs tenants authenticate with, and the
// envelope encryption that lets an operator recover a client's plaintext
// secret for display without ever storing it unencrypted.
package keymanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Client is a provisioned credential bound to a tenant.
type Client struct {
	Username       string
	TenantCode     string
	AllowedActions []string
	Fingerprint    string
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// Manager validates and provisions client credentials.
type Manager struct {
	pool   *pgxpool.Pool
	seed   []byte
	logger *slog.Logger
}

// New creates a Manager. seedPath points to the file holding the secret
// encryption seed.
func New(pool *pgxpool.Pool, seedPath string, logger *slog.Logger) (*Manager, error) {
	seed, err := loadSeed(seedPath)
	if err != nil {
		return nil, err
	}
	return &Manager{pool: pool, seed: seed, logger: logger}, nil
}

// CreateClient provisions a new client, generating a random secret. The raw
// secret is returned once; only its bcrypt hash and an AES-256-GCM sealed
// copy are persisted.
func (m *Manager) CreateClient(ctx context.Context, username, tenantCode string, allowedActions []string) (secret string, err error) {
	secret, err = generateSecret()
	if err != nil {
		return "", err
	}

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}

	encryptedSecret, err := encryptSecret(m.seed, secret)
	if err != nil {
		return "", err
	}

	fingerprint := fingerprintOf(username, string(hashedSecret))

	_, err = m.pool.Exec(ctx, `
		INSERT INTO clients (username, hashed_secret, encrypted_secret, fingerprint, tenant_code, allowed_actions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (username) DO UPDATE SET
			hashed_secret = EXCLUDED.hashed_secret,
			encrypted_secret = EXCLUDED.encrypted_secret,
			fingerprint = EXCLUDED.fingerprint,
			tenant_code = EXCLUDED.tenant_code,
			allowed_actions = EXCLUDED.allowed_actions
	`, username, string(hashedSecret), encryptedSecret, fingerprint, tenantCode, allowedActions)
	if err != nil {
		return "", fmt.Errorf("inserting client: %w", err)
	}

	return secret, nil
}

// Exists reports whether a client credential has already been provisioned
// for username, so callers can avoid re-provisioning (and thereby rotating)
// a credential that was already issued.
func (m *Manager) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM clients WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking client existence: %w", err)
	}
	return exists, nil
}

// Validate checks a username:secret pair against the stored bcrypt hash and
// returns the client's tenant binding and allowed actions. It also updates
// last_used_at, best-effort.
func (m *Manager) Validate(ctx context.Context, username, secret string) (*Client, error) {
	var (
		hashedSecret   string
		tenantCode     string
		allowedActions []string
		fingerprint    string
		createdAt      time.Time
	)

	err := m.pool.QueryRow(ctx, `
		SELECT hashed_secret, tenant_code, allowed_actions, fingerprint, created_at
		FROM clients WHERE username = $1
	`, username).Scan(&hashedSecret, &tenantCode, &allowedActions, &fingerprint, &createdAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("unknown client %q", username)
		}
		return nil, fmt.Errorf("looking up client: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret)); err != nil {
		return nil, fmt.Errorf("invalid credentials for client %q", username)
	}

	if _, err := m.pool.Exec(ctx, `UPDATE clients SET last_used_at = now() WHERE username = $1`, username); err != nil {
		m.logger.Warn("updating last_used_at", "username", username, "error", err)
	}

	return &Client{
		Username:       username,
		TenantCode:     tenantCode,
		AllowedActions: allowedActions,
		Fingerprint:    fingerprint,
		CreatedAt:      createdAt,
	}, nil
}

// RevealSecret decrypts a client's stored secret for operator display.
func (m *Manager) RevealSecret(ctx context.Context, username string) (string, error) {
	var encryptedSecret []byte
	err := m.pool.QueryRow(ctx, `SELECT encrypted_secret FROM clients WHERE username = $1`, username).Scan(&encryptedSecret)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("unknown client %q", username)
		}
		return "", fmt.Errorf("looking up client: %w", err)
	}
	return decryptSecret(m.seed, encryptedSecret)
}

// ListFingerprints returns every client's username and fingerprint, for the
// admin fingerprints listing endpoint.
func (m *Manager) ListFingerprints(ctx context.Context) ([]Client, error) {
	rows, err := m.pool.Query(ctx, `SELECT username, tenant_code, fingerprint, created_at, last_used_at FROM clients ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		var lastUsed *time.Time
		if err := rows.Scan(&c.Username, &c.TenantCode, &c.Fingerprint, &c.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning client row: %w", err)
		}
		c.LastUsedAt = lastUsed
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// generateSecret creates a random 32-byte client secret, hex encoded.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// fingerprintOf derives a stable, non-reversible identifier for a
// credential pair, safe to log or display without leaking the secret.
func fingerprintOf(username, hashedSecret string) string {
	sum := sha256.Sum256([]byte(username + ":" + hashedSecret))
	return hex.EncodeToString(sum[:])
}
