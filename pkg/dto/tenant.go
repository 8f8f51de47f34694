package dto

import "github.com/google/uuid"

type CreateTenantRequest struct {
	Name              string `json:"name" binding:"required"`
	CaptionTone       string `json:"caption_tone"`
	StorageQuotaBytes int64  `json:"storage_quota_bytes" binding:"required,gt=0"`
}

type TenantResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	CaptionTone       string    `json:"caption_tone,omitempty"`
	StorageQuotaBytes int64     `json:"storage_quota_bytes"`
	StorageUsedBytes  int64     `json:"storage_used_bytes"`
	CreatedAt         string    `json:"created_at"`
}

// StorageReport is the usage summary staff see on the tenant dashboard.
type StorageReport struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	QuotaBytes  int64     `json:"quota_bytes"`
	UsedBytes   int64     `json:"used_bytes"`
	UsedPercent float64   `json:"used_percent"`
}
