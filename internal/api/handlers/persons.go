package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/moments/internal/match"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/storage"
	"github.com/your-org/moments/pkg/dto"
)

type PersonHandler struct {
	db    *storage.PostgresStore
	blobs *storage.MinIOStore
	cache *match.Cache
	// EncodeFn extracts a reference signature from image bytes.
	// Set after the vision pipeline is initialized.
	EncodeFn func(ctx context.Context, imageData []byte) ([]float32, float32, error)
}

func NewPersonHandler(db *storage.PostgresStore, blobs *storage.MinIOStore, cache *match.Cache) *PersonHandler {
	return &PersonHandler{db: db, blobs: blobs, cache: cache}
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.db.GetTenant(c.Request.Context(), req.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}

	person, err := h.db.CreatePerson(c.Request.Context(), req.TenantID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, personResponse(person))
}

func (h *PersonHandler) List(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	persons, err := h.db.ListPersons(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, personResponse(&persons[i]))
	}
	c.JSON(http.StatusOK, gin.H{"persons": resp, "total": len(resp)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	c.JSON(http.StatusOK, personResponse(person))
}

// AddSignature appends a reference signature extracted from an uploaded
// image. Signatures are append-only; the tenant's match cache is
// invalidated so the next intake run sees the new enrollment.
func (h *PersonHandler) AddSignature(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EncodeFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision pipeline not initialized"})
		return
	}

	signature, quality, err := h.EncodeFn(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey, err := h.blobs.PutReference(c.Request.Context(), personID, imageData, header.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	sig, err := h.db.AddSignature(c.Request.Context(), personID, signature, quality, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.cache.Invalidate(person.TenantID)

	c.JSON(http.StatusCreated, dto.SignatureResponse{
		ID:        sig.ID,
		PersonID:  sig.PersonID,
		Quality:   sig.Quality,
		SourceKey: sig.SourceKey,
		CreatedAt: sig.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Search finds the enrolled persons closest to a probe image. Staff
// tooling uses this to verify enrollment quality.
func (h *PersonHandler) Search(c *gin.Context) {
	tenantID, err := uuid.Parse(c.PostForm("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EncodeFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision pipeline not initialized"})
		return
	}

	signature, _, err := h.EncodeFn(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	limit := 5
	if l, err := strconv.Atoi(c.PostForm("limit")); err == nil && l > 0 {
		limit = l
	}

	matches, err := h.db.SearchSignatures(c.Request.Context(), tenantID, signature, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			PersonID: m.PersonID,
			Name:     m.Name,
			Distance: m.Distance,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

func personResponse(p *models.EnrolledPerson) dto.PersonResponse {
	return dto.PersonResponse{
		ID:             p.ID,
		TenantID:       p.TenantID,
		Name:           p.Name,
		SignatureCount: p.SignatureCount,
		CreatedAt:      p.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
