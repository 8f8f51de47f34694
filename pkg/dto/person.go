package dto

import "github.com/google/uuid"

type CreatePersonRequest struct {
	TenantID uuid.UUID `json:"tenant_id" binding:"required"`
	Name     string    `json:"name" binding:"required"`
}

type PersonResponse struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Name           string    `json:"name"`
	SignatureCount int       `json:"signature_count"`
	CreatedAt      string    `json:"created_at"`
}

type SignatureResponse struct {
	ID        uuid.UUID `json:"id"`
	PersonID  uuid.UUID `json:"person_id"`
	Quality   float32   `json:"quality"`
	SourceKey string    `json:"source_key"`
	CreatedAt string    `json:"created_at"`
}

type SearchResult struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Distance float32   `json:"distance"`
}
