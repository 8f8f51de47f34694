package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrolledPerson is a known identity within a tenant. A person carries one
// or more reference signatures; signatures are append-only.
type EnrolledPerson struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TenantID       uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	SignatureCount int       `json:"signature_count" db:"signature_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// FaceSignature is one reference feature vector captured at enrollment time.
type FaceSignature struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PersonID  uuid.UUID `json:"person_id" db:"person_id"`
	Signature []float32 `json:"-" db:"signature"`
	Quality   float32   `json:"quality" db:"quality"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PersonSignature is the flat (person, vector) pair the matcher consumes.
type PersonSignature struct {
	PersonID  uuid.UUID
	Name      string
	Signature []float32
}
