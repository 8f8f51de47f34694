package intake

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/models"
)

// ErrQuotaExceeded is returned when persisting an upload would push the
// tenant's storage counter past its quota. The upload is rejected and
// nothing is written.
var ErrQuotaExceeded = errors.New("tenant storage quota exceeded")

// PersistenceError wraps a failure of the final atomic write. Unlike
// detection or caption failures it is fatal: the pipeline has nothing
// durable to show for the run.
type PersistenceError struct {
	MediaItemID uuid.UUID
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist media item %s: %v", e.MediaItemID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ActivityDraft describes the single activity entry to create alongside a
// persisted media item. Present only when the photo has exactly one
// distinct matched person.
type ActivityDraft struct {
	PersonID   uuid.UUID
	Category   string
	Notes      string
	OccurredAt time.Time
}

// FinalizeParams carries everything the atomic persistence step writes in
// one transaction: the media item update, at most one activity entry, and
// the conditional storage-counter increment.
type FinalizeParams struct {
	MediaItemID uuid.UUID
	TenantID    uuid.UUID
	// ChargeBytes is added to the tenant's storage counter. Zero on
	// reprocess, where the bytes were already charged at upload.
	ChargeBytes     int64
	MatchedPersonID *uuid.UUID
	Caption         string
	Category        string
	Faces           []models.DetectedFace
	AutoTagged      bool
	// RecognitionComplete is false when detection or matching failed and
	// the item was persisted without face data.
	RecognitionComplete bool
	Activity            *ActivityDraft
}
