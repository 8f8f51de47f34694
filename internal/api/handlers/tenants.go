package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/storage"
	"github.com/your-org/moments/pkg/dto"
)

type TenantHandler struct {
	db *storage.PostgresStore
}

func NewTenantHandler(db *storage.PostgresStore) *TenantHandler {
	return &TenantHandler{db: db}
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.db.CreateTenant(c.Request.Context(), req.Name, req.CaptionTone, req.StorageQuotaBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tenantResponse(tenant))
}

func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.db.ListTenants(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.TenantResponse, 0, len(tenants))
	for i := range tenants {
		resp = append(resp, tenantResponse(&tenants[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tenants": resp, "total": len(resp)})
}

func (h *TenantHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	tenant, err := h.db.GetTenant(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	c.JSON(http.StatusOK, tenantResponse(tenant))
}

// Storage reports quota usage for the tenant dashboard.
func (h *TenantHandler) Storage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	tenant, err := h.db.GetTenant(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	report := dto.StorageReport{
		TenantID:   tenant.ID,
		QuotaBytes: tenant.StorageQuotaBytes,
		UsedBytes:  tenant.StorageUsedBytes,
	}
	if tenant.StorageQuotaBytes > 0 {
		report.UsedPercent = float64(tenant.StorageUsedBytes) / float64(tenant.StorageQuotaBytes) * 100
	}
	c.JSON(http.StatusOK, report)
}

func tenantResponse(t *models.Tenant) dto.TenantResponse {
	return dto.TenantResponse{
		ID:                t.ID,
		Name:              t.Name,
		CaptionTone:       t.CaptionTone,
		StorageQuotaBytes: t.StorageQuotaBytes,
		StorageUsedBytes:  t.StorageUsedBytes,
		CreatedAt:         t.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
