package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"log/slog"

	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/config"
	"github.com/vectorgate/vectorgate/internal/connpool"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/keymanager"
	"github.com/vectorgate/vectorgate/internal/ratelimit"
	"github.com/vectorgate/vectorgate/internal/security"
)

// Server holds the HTTP server dependencies and the authenticated,
// tenant-scoped sub-router domain handlers mount onto.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router

	logger      *slog.Logger
	db          *pgxpool.Pool
	redis       *redis.Client
	pool        *connpool.Pool
	rateLimiter *ratelimit.Limiter
	metrics     *prometheus.Registry
	startedAt   time.Time
}

// Deps bundles the components server construction wires together.
type Deps struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	Redis          *redis.Client
	Metrics        *prometheus.Registry
	Pool           *connpool.Pool
	KeyManager     *keymanager.Manager
	RateLimiter    *ratelimit.Limiter
	TierResolver   TierResolver
	CORSPolicy     func(r *http.Request) *security.Policy
	TrustedHosts   func(r *http.Request) *security.Policy
	DBContext      auth.DBContextResolver
}

// NewServer builds the router skeleton: global middleware, health and
// metrics endpoints, and an authenticated /api/v1 sub-router. Domain
// packages mount their routes onto APIRouter after construction.
func NewServer(d Deps) *Server {
	s := &Server{
		Router:      chi.NewRouter(),
		logger:      d.Logger,
		db:          d.DB,
		redis:       d.Redis,
		pool:        d.Pool,
		rateLimiter: d.RateLimiter,
		metrics:     d.Metrics,
		startedAt:   time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(d.Logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy := d.CORSPolicy(r)
			cors.Handler(cors.Options{
				AllowOriginFunc:  func(r *http.Request, origin string) bool { return policy.Allows(origin) },
				AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-Code", "X-Request-ID", "Flouds-VectorDB-Token"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: true,
				MaxAge:           300,
			})(next).ServeHTTP(w, r)
		})
	})

	s.Router.Get("/health", s.handleHealthz)
	s.Router.Get("/health/ready", s.handleReadyz)
	s.Router.Get("/health/live", s.handleLivez)

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.KeyManager, d.DBContext))
		r.Use(auth.RequireAction("admin"))
		r.Get("/health/connections", s.handleConnections)
	})

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(TrustedHost(d.TrustedHosts))
		r.Use(auth.Middleware(d.KeyManager, d.DBContext))
		r.Use(RateLimit(d.RateLimiter, d.TierResolver))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAction("admin"))
			r.Handle(d.Config.MetricsPath, promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
		})

		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	errs.Respond(w, http.StatusOK, errs.Envelope{Success: true, Message: "ok"})
}

func (s *Server) handleLivez(w http.ResponseWriter, _ *http.Request) {
	errs.Respond(w, http.StatusOK, errs.Envelope{Success: true, Message: "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("readiness check: database ping failed", "error", err)
		errs.Respond(w, http.StatusServiceUnavailable, errs.Envelope{Success: false, Message: "database not ready"})
		return
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Error("readiness check: redis ping failed", "error", err)
			errs.Respond(w, http.StatusServiceUnavailable, errs.Envelope{Success: false, Message: "redis not ready"})
			return
		}
	}

	errs.Respond(w, http.StatusOK, errs.Envelope{Success: true, Message: "ready"})
}

type connectionsResponse struct {
	PooledConnections int   `json:"pooled_connections"`
	TenantBuckets     int   `json:"tenant_rate_buckets"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	errs.Respond(w, http.StatusOK, errs.Envelope{
		Success: true,
		Results: connectionsResponse{
			PooledConnections: s.pool.Len(),
			TenantBuckets:     s.rateLimiter.TenantBucketCount(),
			UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		},
	})
}
