package provisioning

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vectorgate/vectorgate/internal/audit"
	"github.com/vectorgate/vectorgate/internal/auth"
	"github.com/vectorgate/vectorgate/internal/errs"
	"github.com/vectorgate/vectorgate/internal/httpserver"
	"github.com/vectorgate/vectorgate/internal/ratelimit"
	"github.com/vectorgate/vectorgate/internal/servicemethod"
)

// Handler exposes Service over HTTP.
type Handler struct {
	svc    *Service
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a provisioning Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, audit: auditWriter, logger: logger}
}

// Routes mounts provisioning endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/vector_store/set_vector_store", servicemethod.Wrap(h.logger, "vector_store.set_vector_store", h.setVectorStore))
	r.Post("/vector_store/generate_schema", servicemethod.Wrap(h.logger, "vector_store.generate_schema", h.generateSchema))
	r.Post("/vector_store_users/reset_password", servicemethod.Wrap(h.logger, "vector_store_users.reset_password", h.resetPassword))
}

type setVectorStoreBody struct {
	Tier string `json:"tier" validate:"omitempty,oneof=default premium"`
}

func (h *Handler) setVectorStore(r *http.Request) (any, error) {
	tenantCode := auth.TenantFromContext(r.Context())
	if tenantCode == "" {
		return nil, errs.New(errs.KindValidation, "X-Tenant-Code header is required")
	}

	var body setVectorStoreBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	tier := ratelimit.TierDefault
	if body.Tier == string(ratelimit.TierPremium) {
		tier = ratelimit.TierPremium
	}

	provisioned, err := h.svc.SetVectorStore(r.Context(), SetVectorStoreRequest{
		TenantCode: tenantCode,
		Tier:       tier,
	})
	if err != nil {
		return nil, err
	}

	if detail, err := json.Marshal(body); err == nil {
		h.audit.LogFromRequest(r, "set_vector_store", "tenant:"+tenantCode, detail)
	}

	return provisioned, nil
}

type generateSchemaBody struct {
	ModelName      string `json:"model_name" validate:"required"`
	Dimension      int    `json:"dimension" validate:"required,min=1,max=4096"`
	MetricType     string `json:"metric_type" validate:"omitempty,oneof=L2 IP COSINE"`
	IndexType      string `json:"index_type" validate:"omitempty,oneof=IVF_FLAT IVF_SQ8 HNSW FLAT"`
	Nlist          int    `json:"nlist"`
	MetadataLength int    `json:"metadata_length"`
}

func (h *Handler) generateSchema(r *http.Request) (any, error) {
	tenantCode := auth.TenantFromContext(r.Context())
	if tenantCode == "" {
		return nil, errs.New(errs.KindValidation, "X-Tenant-Code header is required")
	}

	var body generateSchemaBody
	if err := httpserver.DecodeAndValidate(r, &body); err != nil {
		return nil, err
	}

	metricType := body.MetricType
	if metricType == "" {
		metricType = "COSINE"
	}
	indexType := body.IndexType
	if indexType == "" {
		indexType = "HNSW"
	}

	result, err := h.svc.GenerateSchema(r.Context(), GenerateSchemaRequest{
		TenantCode:     tenantCode,
		ModelName:      body.ModelName,
		Dimension:      body.Dimension,
		MetricType:     metricType,
		IndexType:      indexType,
		Nlist:          body.Nlist,
		MetadataLength: body.MetadataLength,
	})
	if err != nil {
		return nil, err
	}

	if detail, err := json.Marshal(body); err == nil {
		h.audit.LogFromRequest(r, "generate_schema", "tenant:"+tenantCode, detail)
	}

	return result, nil
}

func (h *Handler) resetPassword(r *http.Request) (any, error) {
	tenantCode := auth.TenantFromContext(r.Context())
	if tenantCode == "" {
		return nil, errs.New(errs.KindValidation, "X-Tenant-Code header is required")
	}

	newPassword, err := h.svc.ResetPassword(r.Context(), tenantCode)
	if err != nil {
		return nil, err
	}

	h.audit.LogFromRequest(r, "reset_password", "tenant:"+tenantCode, nil)

	return map[string]string{"db_password": newPassword}, nil
}
