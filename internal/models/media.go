package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaState tracks a media item through the intake pipeline.
// Uploaded → Detecting → Matched|Unmatched → Captioned → Persisted.
type MediaState string

const (
	MediaStateUploaded  MediaState = "uploaded"
	MediaStateDetecting MediaState = "detecting"
	MediaStateMatched   MediaState = "matched"
	MediaStateUnmatched MediaState = "unmatched"
	MediaStateCaptioned MediaState = "captioned"
	MediaStatePersisted MediaState = "persisted"
)

// DetectedFace is the per-face metadata recorded on a media item.
// BBox is x1, y1, x2, y2 in pixel coordinates of the original image.
type DetectedFace struct {
	BBox            [4]float32 `json:"bbox"`
	Confidence      float32    `json:"confidence"`
	MatchedPersonID *uuid.UUID `json:"matched_person_id,omitempty"`
	MatchDistance   float32    `json:"match_distance,omitempty"`
	Ambiguous       bool       `json:"ambiguous,omitempty"`
}

// MediaItem is one uploaded image. Created in a pending state immediately on
// upload and mutated exactly once by the orchestrator when intake finishes.
type MediaItem struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	TenantID            uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	UploaderID          uuid.UUID      `json:"uploader_id" db:"uploader_id"`
	StorageKey          string         `json:"storage_key" db:"storage_key"`
	SizeBytes           int64          `json:"size_bytes" db:"size_bytes"`
	Hint                string         `json:"hint" db:"hint"`
	State               MediaState     `json:"state" db:"state"`
	MatchedPersonID     *uuid.UUID     `json:"matched_person_id,omitempty" db:"matched_person_id"`
	Caption             *string        `json:"caption,omitempty" db:"caption"`
	ActivityCategory    string         `json:"activity_category" db:"activity_category"`
	DetectedFaces       []DetectedFace `json:"detected_faces" db:"detected_faces"`
	AutoTagged          bool           `json:"auto_tagged" db:"auto_tagged"`
	RecognitionComplete bool           `json:"recognition_complete" db:"recognition_complete"`
	CapturedAt          time.Time      `json:"captured_at" db:"captured_at"`
	UploadedAt          time.Time      `json:"uploaded_at" db:"uploaded_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// IntakeTask is the message published to NATS for asynchronous intake.
type IntakeTask struct {
	MediaItemID uuid.UUID `json:"media_item_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// MediaPersistedEvent is emitted after the intake transaction commits.
// Notification delivery is an external concern; the pipeline's contract
// ends at this event.
type MediaPersistedEvent struct {
	MediaItemID     uuid.UUID  `json:"media_item_id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	MatchedPersonID *uuid.UUID `json:"matched_person_id,omitempty"`
	Caption         string     `json:"caption"`
	Category        string     `json:"category"`
	ActivityEntryID *uuid.UUID `json:"activity_entry_id,omitempty"`
	FaceCount       int        `json:"face_count"`
	PersistedAt     time.Time  `json:"persisted_at"`
}
