// Package provisioning implements the idempotent tenant onboarding state
// machine: database, role, user, and grants on the remote vector database
// engine, driven through an admin connection, plus per-(tenant, model)
// collection and index creation.
package provisioning

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/keymanager"
	"github.com/vectorgate/vectorgate/internal/ratelimit"
	"github.com/vectorgate/vectorgate/internal/txn"
	"github.com/vectorgate/vectorgate/internal/vectordb"
)

// tenantCodePattern restricts tenant codes to identifiers safe to embed in
// database, role, and collection names.
var tenantCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// modelNamePattern allows the more permissive identifiers model names tend
// to carry (dots and hyphens for versioned model names) while still being
// safe to embed in a collection name once sanitized.
var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// collectionPrivileges are granted to a tenant's role on its own collection
// once generate_schema has created it, per SPEC_FULL.md §4.9.1.
var collectionPrivileges = []string{"Search", "Query", "Insert", "Upsert", "Delete"}

const readWriteRolePrivilege = "CollectionAdmin"

// DBEngineFactory builds an Engine bound to a specific tenant database,
// using the same admin credentials as the Service's database-level Engine.
// Collection-scoped operations (create/describe/index/load) must run
// against the tenant's own database, not the admin database.
type DBEngineFactory func(databaseName string) vectordb.Engine

// SetVectorStoreRequest describes a tenant's desired vector store account.
type SetVectorStoreRequest struct {
	TenantCode string
	Tier       ratelimit.Tier
}

// ProvisionedTenant is the outcome of a SetVectorStore call. DatabaseCreated,
// UserCreated, and PermissionsGranted report whether this specific call
// performed those steps, or found them already done.
type ProvisionedTenant struct {
	TenantCode         string `json:"tenant_code"`
	DatabaseName       string `json:"database_name"`
	RoleName           string `json:"role_name"`
	DBUser             string `json:"db_user"`
	DatabaseCreated    bool   `json:"database_created"`
	UserCreated        bool   `json:"user_created"`
	PermissionsGranted bool   `json:"permissions_granted"`
	DBSecret           string `json:"password,omitempty"`
	ClientUsername     string `json:"username,omitempty"`
	ClientSecret       string `json:"client_secret,omitempty"`
}

// GenerateSchemaRequest describes a per-(tenant, model) collection to
// create.
type GenerateSchemaRequest struct {
	TenantCode     string
	ModelName      string
	Dimension      int
	MetricType     string
	IndexType      string
	Nlist          int
	MetadataLength int
}

// SchemaResult is the outcome of a GenerateSchema call.
type SchemaResult struct {
	CollectionName     string `json:"collection_name"`
	Created            bool   `json:"created"`
	IndexCreated        bool   `json:"index_created"`
	PermissionsGranted bool   `json:"permissions_granted"`
}

// Service drives tenant provisioning against an admin-privileged engine
// connection and records the outcome in the control database.
type Service struct {
	admin           vectordb.Engine
	dbEngineFactory DBEngineFactory
	controlDB       *pgxpool.Pool
	keyManager      *keymanager.Manager
	logger          *slog.Logger
}

// New creates a provisioning Service. admin is bound to the engine's
// administrative database, used for database/role/user/grant management;
// dbEngineFactory builds an Engine bound to an individual tenant's database,
// used for collection and index management.
func New(admin vectordb.Engine, dbEngineFactory DBEngineFactory, controlDB *pgxpool.Pool, keyManager *keymanager.Manager, logger *slog.Logger) *Service {
	return &Service{admin: admin, dbEngineFactory: dbEngineFactory, controlDB: controlDB, keyManager: keyManager, logger: logger}
}

// SetVectorStore provisions (or re-converges) a tenant's database, role,
// user, and grants, and mints a VectorGate client credential. It is
// idempotent: an already-provisioned tenant's database/role/user are left
// untouched and the database password is not regenerated — only
// ResetPassword rotates it. Likewise a client credential is only minted the
// first time; repeat calls report the existing username with no secret.
func (s *Service) SetVectorStore(ctx context.Context, req SetVectorStoreRequest) (*ProvisionedTenant, error) {
	if !tenantCodePattern.MatchString(req.TenantCode) {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("invalid tenant code %q: must match %s", req.TenantCode, tenantCodePattern.String()))
	}

	existing, err := s.lookupTenant(ctx, req.TenantCode)
	if err != nil {
		return nil, err
	}

	result := &ProvisionedTenant{TenantCode: req.TenantCode, PermissionsGranted: true}

	if existing != nil {
		result.DatabaseName = existing.databaseName
		result.RoleName = existing.roleName
		result.DBUser = existing.dbUser
	} else {
		result.DatabaseName = "vg_" + req.TenantCode
		result.RoleName = fmt.Sprintf("flouds_%s_role", req.TenantCode)
		result.DBUser = req.TenantCode + "_user"

		dbPassword, err := generatePassword()
		if err != nil {
			return nil, err
		}

		tx := txn.New(s.logger)

		tx.Add("create-database", func(ctx context.Context) error {
			return s.admin.CreateDatabase(ctx, result.DatabaseName)
		}, nil) // No step registers an undo: a failure leaves earlier steps applied.

		tx.Add("create-role", func(ctx context.Context) error {
			return s.admin.CreateRole(ctx, result.RoleName)
		}, nil)

		tx.Add("grant-role-privilege", func(ctx context.Context) error {
			return s.admin.GrantPrivilege(ctx, result.RoleName, "*", readWriteRolePrivilege, result.DatabaseName)
		}, nil)

		tx.Add("create-user", func(ctx context.Context) error {
			return s.admin.CreateUser(ctx, result.DBUser, dbPassword)
		}, nil)

		tx.Add("grant-user-role", func(ctx context.Context) error {
			return s.admin.GrantRole(ctx, result.DBUser, result.RoleName)
		}, nil)

		if err := tx.Execute(ctx); err != nil {
			return nil, fmt.Errorf("provisioning tenant %q: %w", req.TenantCode, err)
		}

		if err := s.persistTenant(ctx, req.TenantCode, req.Tier, result.DatabaseName, result.RoleName, result.DBUser); err != nil {
			return nil, err
		}

		result.DatabaseCreated = true
		result.UserCreated = true
		result.DBSecret = dbPassword
	}

	clientUsername := "vg_client_" + req.TenantCode
	clientExists, err := s.keyManager.Exists(ctx, clientUsername)
	if err != nil {
		return nil, fmt.Errorf("checking client credential: %w", err)
	}
	result.ClientUsername = clientUsername
	if !clientExists {
		clientSecret, err := s.keyManager.CreateClient(ctx, clientUsername, req.TenantCode, []string{"insert", "search", "flush", "generate_schema"})
		if err != nil {
			return nil, fmt.Errorf("provisioning client credential: %w", err)
		}
		result.ClientSecret = clientSecret
	}

	return result, nil
}

// GenerateSchema idempotently creates the per-(tenant, model) collection
// described in SPEC_FULL.md §3: if a collection already exists for this
// (tenant, model) pair, it verifies the stored dimension matches the
// requested one (mismatch is a SchemaConflict) and reports a no-op;
// otherwise it creates the collection, its dense and sparse indexes, and
// grants the tenant's role access.
func (s *Service) GenerateSchema(ctx context.Context, req GenerateSchemaRequest) (*SchemaResult, error) {
	if !tenantCodePattern.MatchString(req.TenantCode) {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("invalid tenant code %q", req.TenantCode))
	}
	if !modelNamePattern.MatchString(req.ModelName) {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("invalid model name %q", req.ModelName))
	}
	if req.Dimension < 1 || req.Dimension > 4096 {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("dimension must be in [1,4096], got %d", req.Dimension))
	}

	tenant, err := s.lookupTenant(ctx, req.TenantCode)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, errs.New(errs.KindNotFound, fmt.Sprintf("tenant %q is not provisioned; call set_vector_store first", req.TenantCode))
	}

	collectionName := fmt.Sprintf("vector_store_schema_for_%s_%s", req.TenantCode, sanitizeCollectionComponent(req.ModelName))

	existingSchema, err := s.lookupTenantSchema(ctx, req.TenantCode, req.ModelName)
	if err != nil {
		return nil, err
	}
	if existingSchema != nil {
		if existingSchema.dimension != req.Dimension {
			return nil, errs.New(errs.KindConflict, fmt.Sprintf(
				"collection %q already exists for model %q with dimension %d, requested %d",
				existingSchema.collectionName, req.ModelName, existingSchema.dimension, req.Dimension))
		}
		return &SchemaResult{CollectionName: existingSchema.collectionName, PermissionsGranted: true}, nil
	}

	engine := s.dbEngineFactory(tenant.databaseName)
	defer engine.Close()

	chunkMaxLength := req.MetadataLength
	if chunkMaxLength <= 0 {
		chunkMaxLength = 65535
	}

	if err := engine.CreateCollection(ctx, collectionSchema(collectionName, req.Dimension, chunkMaxLength)); err != nil {
		if errors.Is(err, vectordb.ErrAlreadyExists) {
			return nil, errs.Wrap(errs.KindConflict, "collection already exists", err)
		}
		return nil, errs.Wrap(errs.KindUpstream, "creating collection", err)
	}

	if err := engine.CreateIndex(ctx, collectionName, vectordb.IndexParams{
		FieldName:  "flouds_vector",
		IndexType:  req.IndexType,
		MetricType: req.MetricType,
		Nlist:      req.Nlist,
	}); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "creating dense index", err)
	}

	if err := engine.CreateIndex(ctx, collectionName, vectordb.IndexParams{
		FieldName:  "sparse",
		IndexType:  "SPARSE_INVERTED_INDEX",
		MetricType: "IP",
	}); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "creating sparse index", err)
	}

	if err := engine.LoadCollection(ctx, collectionName); err != nil {
		return nil, errs.Wrap(errs.KindUpstream, "loading collection", err)
	}

	for _, privilege := range collectionPrivileges {
		if err := s.admin.GrantPrivilege(ctx, tenant.roleName, collectionName, privilege, tenant.databaseName); err != nil {
			return nil, errs.Wrap(errs.KindUpstream, fmt.Sprintf("granting %s privilege", privilege), err)
		}
	}

	if err := s.persistTenantSchema(ctx, req.TenantCode, req.ModelName, collectionName, req.Dimension, req.MetricType, req.IndexType, req.Nlist); err != nil {
		return nil, err
	}

	return &SchemaResult{CollectionName: collectionName, Created: true, IndexCreated: true, PermissionsGranted: true}, nil
}

// ResetPassword rotates a tenant's database user password.
func (s *Service) ResetPassword(ctx context.Context, tenantCode string) (string, error) {
	var dbUser string
	err := s.controlDB.QueryRow(ctx, `SELECT db_user FROM tenants WHERE tenant_code = $1`, tenantCode).Scan(&dbUser)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", errs.New(errs.KindNotFound, fmt.Sprintf("tenant %q is not provisioned", tenantCode))
		}
		return "", fmt.Errorf("looking up tenant: %w", err)
	}

	newPassword, err := generatePassword()
	if err != nil {
		return "", err
	}

	if err := s.admin.CreateUser(ctx, dbUser, newPassword); err != nil {
		return "", fmt.Errorf("rotating password: %w", err)
	}

	return newPassword, nil
}

type tenantRow struct {
	databaseName string
	roleName     string
	dbUser       string
}

func (s *Service) lookupTenant(ctx context.Context, tenantCode string) (*tenantRow, error) {
	var row tenantRow
	err := s.controlDB.QueryRow(ctx, `
		SELECT database_name, role_name, db_user FROM tenants WHERE tenant_code = $1
	`, tenantCode).Scan(&row.databaseName, &row.roleName, &row.dbUser)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}
	return &row, nil
}

func (s *Service) persistTenant(ctx context.Context, tenantCode string, tier ratelimit.Tier, databaseName, roleName, dbUser string) error {
	_, err := s.controlDB.Exec(ctx, `
		INSERT INTO tenants (tenant_code, database_name, role_name, db_user, tier, provisioned_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_code) DO NOTHING
	`, tenantCode, databaseName, roleName, dbUser, string(tier))
	if err != nil {
		return fmt.Errorf("persisting tenant record: %w", err)
	}
	return nil
}

type tenantSchemaRow struct {
	collectionName string
	dimension      int
}

func (s *Service) lookupTenantSchema(ctx context.Context, tenantCode, modelName string) (*tenantSchemaRow, error) {
	var row tenantSchemaRow
	err := s.controlDB.QueryRow(ctx, `
		SELECT collection_name, dimension FROM tenant_schemas WHERE tenant_code = $1 AND model_name = $2
	`, tenantCode, modelName).Scan(&row.collectionName, &row.dimension)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up tenant schema: %w", err)
	}
	return &row, nil
}

func (s *Service) persistTenantSchema(ctx context.Context, tenantCode, modelName, collectionName string, dimension int, metricType, indexType string, nlist int) error {
	_, err := s.controlDB.Exec(ctx, `
		INSERT INTO tenant_schemas (tenant_code, model_name, collection_name, dimension, metric_type, index_type, nlist, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (tenant_code, model_name) DO NOTHING
	`, tenantCode, modelName, collectionName, dimension, metricType, indexType, nlist)
	if err != nil {
		return fmt.Errorf("persisting tenant schema record: %w", err)
	}
	return nil
}

// collectionSchema is the fixed field layout every tenant+model collection
// shares, per SPEC_FULL.md §3.
func collectionSchema(name string, dimension, chunkMaxLength int) vectordb.CollectionSchema {
	return vectordb.CollectionSchema{
		Name: name,
		Fields: []vectordb.FieldSchema{
			{Name: "flouds_vector_id", DataType: "VarChar", IsPrimaryKey: true, MaxLength: 512},
			{Name: "flouds_vector", DataType: "FloatVector", Dimension: dimension},
			{Name: "sparse", DataType: "SparseFloatVector"},
			{Name: "chunk", DataType: "VarChar", MaxLength: chunkMaxLength},
			{Name: "model", DataType: "VarChar", MaxLength: 256},
			{Name: "meta", DataType: "JSON"},
		},
	}
}

// sanitizeCollectionComponent lowercases s and replaces any character
// unsafe for a collection name with an underscore, so arbitrary model names
// (which may contain dots, slashes, or hyphens) can be embedded in one.
func sanitizeCollectionComponent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// generatePassword creates a random password satisfying the policy in
// SPEC_FULL.md §4.10: at least 12 characters, mixed case, a digit, and a
// symbol.
func generatePassword() (string, error) {
	const (
		lower   = "abcdefghijklmnopqrstuvwxyz"
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		digits  = "0123456789"
		symbols = "!@#$%^&*-_=+"
		all     = lower + upper + digits + symbols
		length  = 20
	)

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	password := make([]byte, length)
	for i, b := range raw {
		password[i] = all[int(b)%len(all)]
	}

	// Force at least one character from each required class into the first
	// few positions so the policy is met regardless of the random draw above.
	classes := []string{lower, upper, digits, symbols}
	classIdx := make([]byte, len(classes))
	if _, err := rand.Read(classIdx); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	for i, class := range classes {
		password[i] = class[int(classIdx[i])%len(class)]
	}

	return string(password), nil
}
