package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/moments/internal/intake"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/queue"
	"github.com/your-org/moments/internal/storage"
	"github.com/your-org/moments/pkg/dto"
)

type MediaHandler struct {
	db       *storage.PostgresStore
	blobs    *storage.MinIOStore
	orch     *intake.Orchestrator
	producer *queue.Producer
}

func NewMediaHandler(db *storage.PostgresStore, blobs *storage.MinIOStore, orch *intake.Orchestrator, producer *queue.Producer) *MediaHandler {
	return &MediaHandler{db: db, blobs: blobs, orch: orch, producer: producer}
}

// Upload accepts a multipart photo and runs intake inline, or enqueues it
// for the worker pool when async=true.
func (m *MediaHandler) Upload(c *gin.Context) {
	tenantID, err := uuid.Parse(c.PostForm("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	var uploaderID uuid.UUID
	if u := c.PostForm("uploader_id"); u != "" {
		uploaderID, err = uuid.Parse(u)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uploader_id"})
			return
		}
	}

	var capturedAt time.Time
	if ts := c.PostForm("captured_at"); ts != "" {
		capturedAt, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "captured_at must be RFC3339"})
			return
		}
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

	req := intake.UploadRequest{
		TenantID:    tenantID,
		UploaderID:  uploaderID,
		Data:        imageData,
		ContentType: header.Header.Get("Content-Type"),
		Hint:        c.PostForm("hint"),
		CapturedAt:  capturedAt,
	}

	if c.Query("async") == "true" {
		m.enqueue(c, req)
		return
	}

	res, err := m.orch.ProcessUpload(c.Request.Context(), req)
	if err != nil {
		m.writeIntakeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mediaResponse(res.Item, res.ActivityEntryID))
}

// enqueue stores the bytes and a pending media item, then hands the run to
// the worker pool via the INTAKE stream. Quota is prechecked here; the
// worker's persistence transaction makes the authoritative charge.
func (m *MediaHandler) enqueue(c *gin.Context, req intake.UploadRequest) {
	tenant, err := m.db.GetTenant(c.Request.Context(), req.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tenant == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	if int64(len(req.Data)) > tenant.RemainingBytes() {
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": "storage quota exceeded"})
		return
	}

	key, err := m.blobs.Put(c.Request.Context(), req.TenantID, req.Data, req.ContentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store media failed"})
		return
	}

	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	item := &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		UploaderID: req.UploaderID,
		StorageKey: key,
		SizeBytes:  int64(len(req.Data)),
		Hint:       req.Hint,
		CapturedAt: capturedAt,
	}
	if err := m.db.CreateMediaItem(c.Request.Context(), item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.IntakeTask{
		MediaItemID: item.ID,
		TenantID:    item.TenantID,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := m.producer.EnqueueIntake(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue intake task failed"})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueuedResponse{
		MediaItemID: item.ID,
		State:       string(item.State),
	})
}

func (m *MediaHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media item id"})
		return
	}

	item, err := m.db.GetMediaItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return
	}

	var activityID *uuid.UUID
	if entry, err := m.db.GetActivityEntryForMedia(c.Request.Context(), id); err == nil && entry != nil {
		activityID = &entry.ID
	}

	c.JSON(http.StatusOK, mediaResponse(item, activityID))
}

func (m *MediaHandler) List(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Query("tenant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id required"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	items, err := m.db.ListMediaItems(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.MediaItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, mediaResponse(&items[i], nil))
	}
	c.JSON(http.StatusOK, gin.H{"media": resp, "total": len(resp)})
}

// Image serves the stored bytes of a media item.
func (m *MediaHandler) Image(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media item id"})
		return
	}

	item, err := m.db.GetMediaItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media item not found"})
		return
	}

	data, err := m.blobs.Get(c.Request.Context(), item.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load media failed"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

// Reprocess reruns the pipeline on one item, picking up enrollment changes.
func (m *MediaHandler) Reprocess(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media item id"})
		return
	}

	res, err := m.orch.Reprocess(c.Request.Context(), id)
	if err != nil {
		m.writeIntakeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mediaResponse(res.Item, res.ActivityEntryID))
}

// Batch reprocesses a set of items with per-item isolation.
func (m *MediaHandler) Batch(c *gin.Context) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := m.orch.ProcessBatch(c.Request.Context(), req.MediaItemIDs)

	resp := make([]dto.BatchItemResponse, 0, len(results))
	for _, r := range results {
		item := dto.BatchItemResponse{MediaItemID: r.MediaItemID}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			mr := mediaResponse(r.Result.Item, r.Result.ActivityEntryID)
			item.Item = &mr
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, gin.H{"results": resp, "total": len(resp)})
}

func (m *MediaHandler) writeIntakeError(c *gin.Context, err error) {
	var pe *intake.PersistenceError
	switch {
	case errors.Is(err, intake.ErrQuotaExceeded):
		c.JSON(http.StatusInsufficientStorage, gin.H{"error": "storage quota exceeded"})
	case errors.As(err, &pe):
		c.JSON(http.StatusInternalServerError, gin.H{"error": pe.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func mediaResponse(item *models.MediaItem, activityID *uuid.UUID) dto.MediaItemResponse {
	resp := dto.MediaItemResponse{
		ID:                  item.ID,
		TenantID:            item.TenantID,
		State:               string(item.State),
		Hint:                item.Hint,
		SizeBytes:           item.SizeBytes,
		MatchedPersonID:     item.MatchedPersonID,
		ActivityCategory:    item.ActivityCategory,
		DetectedFaces:       item.DetectedFaces,
		AutoTagged:          item.AutoTagged,
		RecognitionComplete: item.RecognitionComplete,
		ActivityEntryID:     activityID,
		CapturedAt:          item.CapturedAt.Format("2006-01-02T15:04:05Z"),
		UploadedAt:          item.UploadedAt.Format("2006-01-02T15:04:05Z"),
	}
	if item.Caption != nil {
		resp.Caption = *item.Caption
	}
	return resp
}
