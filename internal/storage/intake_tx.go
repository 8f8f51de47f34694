package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/moments/internal/intake"
	"github.com/your-org/moments/internal/models"
)

// FinalizeIntake applies the result of one intake run as a single
// transaction: the media item update, at most one activity entry, and the
// tenant storage counter. Either all three land or none do.
//
// The counter increment is a conditional UPDATE guarded by the quota; it
// takes the tenant row lock, which serializes concurrent finalizes within a
// tenant. ChargeBytes is the caller's intent; the charge only applies while
// the item row, locked here, is still in the uploaded state. Concurrent runs
// of the same pending item serialize on that lock and the loser observes
// persisted, so an item is charged exactly once. The previous activity entry
// for the media item, if any, is replaced, keeping reprocess idempotent.
func (s *PostgresStore) FinalizeIntake(ctx context.Context, p intake.FinalizeParams) (*uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if p.ChargeBytes > 0 {
		var state string
		err := tx.QueryRow(ctx,
			`SELECT state FROM media_items WHERE id = $1 FOR UPDATE`,
			p.MediaItemID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("media item %s not found", p.MediaItemID)
		}
		if err != nil {
			return nil, fmt.Errorf("lock media item: %w", err)
		}
		if state == string(models.MediaStateUploaded) {
			tag, err := tx.Exec(ctx,
				`UPDATE tenants
				 SET storage_used_bytes = storage_used_bytes + $1, updated_at = now()
				 WHERE id = $2 AND storage_used_bytes + $1 <= storage_quota_bytes`,
				p.ChargeBytes, p.TenantID)
			if err != nil {
				return nil, fmt.Errorf("charge storage counter: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return nil, intake.ErrQuotaExceeded
			}
		}
	}

	faces, err := json.Marshal(p.Faces)
	if err != nil {
		return nil, fmt.Errorf("encode detected faces: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE media_items
		 SET state = $1, matched_person_id = $2, caption = $3, activity_category = $4,
		     detected_faces = $5, auto_tagged = $6, recognition_complete = $7, updated_at = now()
		 WHERE id = $8`,
		models.MediaStatePersisted, p.MatchedPersonID, p.Caption, p.Category, faces, p.AutoTagged, p.RecognitionComplete, p.MediaItemID)
	if err != nil {
		return nil, fmt.Errorf("update media item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("media item %s not found", p.MediaItemID)
	}

	// One media item produces at most one activity entry: drop the old one
	// before inserting, so reprocess replaces rather than accumulates.
	if _, err := tx.Exec(ctx,
		`DELETE FROM activity_entries WHERE media_item_id = $1`, p.MediaItemID); err != nil {
		return nil, fmt.Errorf("clear activity entry: %w", err)
	}

	var activityEntryID *uuid.UUID
	if p.Activity != nil {
		id := uuid.New()
		_, err := tx.Exec(ctx,
			`INSERT INTO activity_entries (id, tenant_id, media_item_id, person_id, category, notes, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, p.TenantID, p.MediaItemID, p.Activity.PersonID, p.Activity.Category, p.Activity.Notes, p.Activity.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("create activity entry: %w", err)
		}
		activityEntryID = &id
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit finalize tx: %w", err)
	}
	return activityEntryID, nil
}

// Migrate creates the schema if it does not exist. Ordered statements,
// applied idempotently on startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			caption_tone TEXT NOT NULL DEFAULT '',
			storage_quota_bytes BIGINT NOT NULL,
			storage_used_bytes BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS enrolled_persons (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS face_signatures (
			id UUID PRIMARY KEY,
			person_id UUID NOT NULL REFERENCES enrolled_persons(id),
			signature vector(512) NOT NULL,
			quality REAL NOT NULL DEFAULT 0,
			source_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS media_items (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			uploader_id UUID NOT NULL,
			storage_key TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			hint TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			matched_person_id UUID REFERENCES enrolled_persons(id),
			caption TEXT,
			activity_category TEXT NOT NULL DEFAULT '',
			detected_faces JSONB,
			auto_tagged BOOLEAN NOT NULL DEFAULT false,
			recognition_complete BOOLEAN NOT NULL DEFAULT false,
			captured_at TIMESTAMPTZ NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS activity_entries (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			media_item_id UUID NOT NULL UNIQUE REFERENCES media_items(id),
			person_id UUID NOT NULL REFERENCES enrolled_persons(id),
			category TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_tenant ON enrolled_persons(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_signatures_person ON face_signatures(person_id)`,
		`CREATE INDEX IF NOT EXISTS idx_media_tenant ON media_items(tenant_id, uploaded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_tenant ON activity_entries(tenant_id, occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_person ON activity_entries(person_id, occurred_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
