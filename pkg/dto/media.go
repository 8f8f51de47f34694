package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/moments/internal/models"
)

type MediaItemResponse struct {
	ID                  uuid.UUID             `json:"id"`
	TenantID            uuid.UUID             `json:"tenant_id"`
	State               string                `json:"state"`
	Hint                string                `json:"hint,omitempty"`
	SizeBytes           int64                 `json:"size_bytes"`
	MatchedPersonID     *uuid.UUID            `json:"matched_person_id,omitempty"`
	Caption             string                `json:"caption,omitempty"`
	ActivityCategory    string                `json:"activity_category,omitempty"`
	DetectedFaces       []models.DetectedFace `json:"detected_faces"`
	AutoTagged          bool                  `json:"auto_tagged"`
	RecognitionComplete bool                  `json:"recognition_complete"`
	ActivityEntryID     *uuid.UUID            `json:"activity_entry_id,omitempty"`
	CapturedAt          string                `json:"captured_at"`
	UploadedAt          string                `json:"uploaded_at"`
}

// EnqueuedResponse acknowledges an asynchronous upload: the item exists but
// the pipeline has not run yet.
type EnqueuedResponse struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	State       string    `json:"state"`
}

type ActivityEntryResponse struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	MediaItemID uuid.UUID `json:"media_item_id"`
	PersonID    uuid.UUID `json:"person_id"`
	Category    string    `json:"category"`
	Notes       string    `json:"notes"`
	OccurredAt  string    `json:"occurred_at"`
}

type BatchRequest struct {
	MediaItemIDs []uuid.UUID `json:"media_item_ids" binding:"required,min=1"`
}

type BatchItemResponse struct {
	MediaItemID uuid.UUID          `json:"media_item_id"`
	Error       string             `json:"error,omitempty"`
	Item        *MediaItemResponse `json:"item,omitempty"`
}
