// Package app wires every VectorGate component together and dispatches on
// runtime mode: "api" serves the HTTP gateway, "bootstrap" provisions a
// single tenant and exits, "sweep" runs only the background pool and
// rate-limiter sweeper.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vectorgate/vectorgate/internal/admin"
	"github.com/vectorgate/vectorgate/internal/audit"
	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/config"
	"github.com/vectorgate/vectorgate/internal/configstore"
	"github.com/vectorgate/vectorgate/internal/connpool"
	"github.com/vectorgate/vectorgate/internal/httpserver"
	"github.com/vectorgate/vectorgate/internal/keymanager"
	"github.com/vectorgate/vectorgate/internal/platform"
	"github.com/vectorgate/vectorgate/internal/provisioning"
	"github.com/vectorgate/vectorgate/internal/ratelimit"
	"github.com/vectorgate/vectorgate/internal/security"
	"github.com/vectorgate/vectorgate/internal/telemetry"
	"github.com/vectorgate/vectorgate/internal/vectordb"
	"github.com/vectorgate/vectorgate/internal/vectorstore"
)

// Run loads dependencies and dispatches to the configured mode.
func Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to control database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	redisClient, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, config cache invalidation will stay process-local", "error", err)
		redisClient = nil
	}

	keyManager, err := keymanager.New(db, cfg.ClientSecretSeed, logger)
	if err != nil {
		return fmt.Errorf("initializing key manager: %w", err)
	}

	cfgStore := configstore.New(ctx, db, redisClient, logger)

	adminEngine := vectordb.NewRESTEngine(cfg.VectorDBURI, cfg.VectorDBAdminUser, cfg.VectorDBAdminPassword, cfg.VectorDBAdminDB)
	tenantEngineFactory := func(databaseName string) vectordb.Engine {
		return vectordb.NewRESTEngine(cfg.VectorDBURI, cfg.VectorDBAdminUser, cfg.VectorDBAdminPassword, databaseName)
	}
	provisioningSvc := provisioning.New(adminEngine, tenantEngineFactory, db, keyManager, logger)

	poolFactory := func(ctx context.Context, key connpool.Key) (vectordb.Engine, error) {
		tok := auth.DBTokenFromContext(ctx)
		if tok == nil {
			return nil, fmt.Errorf("no vector database credentials bound to this request")
		}
		return vectordb.NewRESTEngine(tok.URI, tok.User, tok.Password, tok.Database), nil
	}
	pool := connpool.New(
		poolFactory,
		cfg.PoolMaxEntries,
		time.Duration(cfg.PoolMaxIdleSeconds)*time.Second,
		cfg.PoolSoftFloor,
		logger,
	)

	limiter := ratelimit.New(ratelimit.Config{
		IPLimit:            cfg.IPRateLimit,
		IPPeriod:           time.Duration(cfg.IPRatePeriodSeconds) * time.Second,
		TenantDefaultLimit: cfg.TenantDefaultLimit,
		TenantPremiumLimit: cfg.TenantPremiumLimit,
		TenantPeriod:       time.Duration(cfg.TenantRatePeriodSecs) * time.Second,
		TenantMaxInactive:  time.Duration(cfg.TenantMaxInactiveSecs) * time.Second,
	})

	vectorstoreSvc := vectorstore.New(pool, db, cfg.AutoFlushMinBatch, logger)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	switch cfg.Mode {
	case "bootstrap":
		return runBootstrap(ctx, cfg, provisioningSvc)
	case "sweep":
		sweepLoop(ctx, pool, limiter, time.Duration(cfg.PoolSweepIntervalS)*time.Second, logger)
		return nil
	default:
		return runAPI(ctx, cfg, apiDeps{
			logger:          logger,
			db:              db,
			redis:           redisClient,
			pool:            pool,
			limiter:         limiter,
			keyManager:      keyManager,
			configStore:     cfgStore,
			provisioningSvc: provisioningSvc,
			vectorstoreSvc:  vectorstoreSvc,
			audit:           auditWriter,
		})
	}
}

type apiDeps struct {
	logger          *slog.Logger
	db              *pgxpool.Pool
	redis           *redis.Client
	pool            *connpool.Pool
	limiter         *ratelimit.Limiter
	keyManager      *keymanager.Manager
	configStore     *configstore.Store
	provisioningSvc *provisioning.Service
	vectorstoreSvc  *vectorstore.Service
	audit           *audit.Writer
}

func runAPI(ctx context.Context, cfg *config.Config, d apiDeps) error {
	reg := telemetry.NewMetricsRegistry(telemetry.All()...)

	tierResolver := func(tenantCode string) ratelimit.Tier {
		if v, ok, _ := d.configStore.Get(ctx, "rate_limit_tier", tenantCode); ok && v == "premium" {
			return ratelimit.TierPremium
		}
		return ratelimit.TierDefault
	}

	dbContextResolver := func(ctx context.Context, tenantCode string) (string, string, error) {
		var databaseName string
		err := d.db.QueryRow(ctx, `SELECT database_name FROM tenants WHERE tenant_code = $1`, tenantCode).Scan(&databaseName)
		if err != nil {
			return "", "", fmt.Errorf("resolving tenant %q database: %w", tenantCode, err)
		}

		uri := cfg.VectorDBURI
		if override, ok, _ := d.configStore.Get(ctx, "vectordb_uri", tenantCode); ok && override != "" {
			uri = override
		}
		return uri, databaseName, nil
	}

	globalCORS, err := security.Compile(cfg.CORSAllowedOrigins)
	if err != nil {
		return fmt.Errorf("compiling CORS policy: %w", err)
	}
	globalTrustedHosts, err := security.Compile(cfg.TrustedHosts)
	if err != nil {
		return fmt.Errorf("compiling trusted hosts policy: %w", err)
	}

	resolveTenantPolicy := func(key string, fallback *security.Policy) func(r *http.Request) *security.Policy {
		return func(r *http.Request) *security.Policy {
			tenantCode := r.Header.Get("X-Tenant-Code")
			if tenantCode == "" {
				return fallback
			}
			raw, ok, err := d.configStore.Get(r.Context(), key, tenantCode)
			if err != nil || !ok {
				return fallback
			}
			policy, err := security.Compile([]string{raw})
			if err != nil {
				return fallback
			}
			return policy
		}
	}

	srv := httpserver.NewServer(httpserver.Deps{
		Config:       cfg,
		Logger:       d.logger,
		DB:           d.db,
		Redis:        d.redis,
		Metrics:      reg,
		Pool:         d.pool,
		KeyManager:   d.keyManager,
		RateLimiter:  d.limiter,
		TierResolver: tierResolver,
		CORSPolicy:   resolveTenantPolicy("cors_allowed_origins", globalCORS),
		TrustedHosts: resolveTenantPolicy("trusted_hosts", globalTrustedHosts),
		DBContext:    dbContextResolver,
	})

	vectorstore.NewHandler(d.vectorstoreSvc, d.logger).Routes(srv.APIRouter)
	provisioning.NewHandler(d.provisioningSvc, d.audit, d.logger).Routes(srv.APIRouter)

	srv.APIRouter.Group(func(r chi.Router) {
		r.Use(auth.RequireAction("admin"))
		admin.NewConfigHandler(d.configStore, d.audit, d.logger).Routes(r)
		admin.NewFingerprintsHandler(d.keyManager, d.audit, d.logger).Routes(r)
	})

	go func() {
		if err := platform.ServeGRPCHealth(ctx, fmt.Sprintf(":%d", cfg.GRPCHealthPort), d.logger); err != nil {
			d.logger.Error("grpc health server stopped", "error", err)
		}
	}()

	go sweepLoop(ctx, d.pool, d.limiter, time.Duration(cfg.PoolSweepIntervalS)*time.Second, d.logger)

	httpSrv := &http.Server{Addr: cfg.ListenAddr(), Handler: srv}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.PoolShutdownGraceS)*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		d.pool.Shutdown()
	}()

	d.logger.Info("vectorgate listening", "addr", cfg.ListenAddr())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func runBootstrap(ctx context.Context, cfg *config.Config, svc *provisioning.Service) error {
	if cfg.BootstrapTenant == "" {
		return fmt.Errorf("BOOTSTRAP_TENANT must be set in bootstrap mode")
	}

	provisioned, err := svc.SetVectorStore(ctx, provisioning.SetVectorStoreRequest{
		TenantCode: cfg.BootstrapTenant,
	})
	if err != nil {
		return fmt.Errorf("bootstrapping tenant %q: %w", cfg.BootstrapTenant, err)
	}

	schema, err := svc.GenerateSchema(ctx, provisioning.GenerateSchemaRequest{
		TenantCode:     cfg.BootstrapTenant,
		ModelName:      cfg.BootstrapModel,
		Dimension:      cfg.DefaultDimension,
		MetricType:     cfg.DefaultMetricType,
		IndexType:      cfg.DefaultIndexType,
		Nlist:          cfg.DefaultNlist,
		MetadataLength: cfg.MetadataLengthDflt,
	})
	if err != nil {
		return fmt.Errorf("generating default schema for tenant %q: %w", cfg.BootstrapTenant, err)
	}

	fmt.Printf("provisioned tenant %q: client_username=%s client_secret=%s db_user=%s db_password=%s collection=%s\n",
		provisioned.TenantCode, provisioned.ClientUsername, provisioned.ClientSecret, provisioned.DBUser, provisioned.DBSecret, schema.CollectionName)
	return nil
}

// sweepLoop periodically evicts idle pooled connections and stale
// rate-limit buckets. Run standalone in "sweep" mode, or as a background
// goroutine alongside the API server in "api" mode.
func sweepLoop(ctx context.Context, pool *connpool.Pool, limiter *ratelimit.Limiter, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			evictedConns := pool.Sweep(now)
			evictedBuckets := limiter.Sweep(now)
			if evictedConns > 0 || evictedBuckets > 0 {
				logger.Info("sweep complete", "evicted_connections", evictedConns, "evicted_rate_buckets", evictedBuckets)
			}
		}
	}
}
