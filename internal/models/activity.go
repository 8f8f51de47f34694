package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEntry records "person X did activity Y at time T". One media item
// produces at most one entry, and only when a single subject was selected.
type ActivityEntry struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    uuid.UUID `json:"tenant_id" db:"tenant_id"`
	MediaItemID uuid.UUID `json:"media_item_id" db:"media_item_id"`
	PersonID    uuid.UUID `json:"person_id" db:"person_id"`
	Category    string    `json:"category" db:"category"`
	Notes       string    `json:"notes" db:"notes"`
	OccurredAt  time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
