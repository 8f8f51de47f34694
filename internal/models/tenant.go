package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated organizational unit. All matching, enrollment and
// storage accounting is scoped to one tenant.
type Tenant struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	CaptionTone       string    `json:"caption_tone" db:"caption_tone"`
	StorageQuotaBytes int64     `json:"storage_quota_bytes" db:"storage_quota_bytes"`
	StorageUsedBytes  int64     `json:"storage_used_bytes" db:"storage_used_bytes"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// RemainingBytes reports how much storage the tenant still has available.
func (t *Tenant) RemainingBytes() int64 {
	r := t.StorageQuotaBytes - t.StorageUsedBytes
	if r < 0 {
		return 0
	}
	return r
}
