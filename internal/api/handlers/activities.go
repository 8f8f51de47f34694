package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/moments/internal/storage"
	"github.com/your-org/moments/pkg/dto"
)

type ActivityHandler struct {
	db *storage.PostgresStore
}

func NewActivityHandler(db *storage.PostgresStore) *ActivityHandler {
	return &ActivityHandler{db: db}
}

// List returns a tenant's activity entries, optionally filtered by person.
func (h *ActivityHandler) List(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	var personID *uuid.UUID
	if p := c.Query("person_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person_id"})
			return
		}
		personID = &id
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	entries, err := h.db.ListActivityEntries(c.Request.Context(), tenantID, personID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ActivityEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.ActivityEntryResponse{
			ID:          e.ID,
			TenantID:    e.TenantID,
			MediaItemID: e.MediaItemID,
			PersonID:    e.PersonID,
			Category:    e.Category,
			Notes:       e.Notes,
			OccurredAt:  e.OccurredAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": resp, "total": len(resp)})
}
