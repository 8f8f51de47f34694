package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) CreateTenant(ctx context.Context, name, captionTone string, quotaBytes int64) (*models.Tenant, error) {
	t := &models.Tenant{
		ID:                uuid.New(),
		Name:              name,
		CaptionTone:       captionTone,
		StorageQuotaBytes: quotaBytes,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name, caption_tone, storage_quota_bytes) VALUES ($1, $2, $3, $4)
		 RETURNING storage_used_bytes, created_at, updated_at`,
		t.ID, t.Name, t.CaptionTone, t.StorageQuotaBytes,
	).Scan(&t.StorageUsedBytes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, caption_tone, storage_quota_bytes, storage_used_bytes, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CaptionTone, &t.StorageQuotaBytes, &t.StorageUsedBytes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, caption_tone, storage_quota_bytes, storage_used_bytes, created_at, updated_at
		 FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CaptionTone, &t.StorageQuotaBytes, &t.StorageUsedBytes, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// --- Enrolled persons ---

func (s *PostgresStore) CreatePerson(ctx context.Context, tenantID uuid.UUID, name string) (*models.EnrolledPerson, error) {
	p := &models.EnrolledPerson{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO enrolled_persons (id, tenant_id, name) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.Name,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.EnrolledPerson, error) {
	p := &models.EnrolledPerson{}
	err := s.pool.QueryRow(ctx,
		`SELECT p.id, p.tenant_id, p.name, p.created_at, p.updated_at,
		        (SELECT COUNT(*) FROM face_signatures fs WHERE fs.person_id = p.id)
		 FROM enrolled_persons p WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.SignatureCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context, tenantID uuid.UUID) ([]models.EnrolledPerson, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.tenant_id, p.name, p.created_at, p.updated_at,
		        (SELECT COUNT(*) FROM face_signatures fs WHERE fs.person_id = p.id)
		 FROM enrolled_persons p WHERE p.tenant_id = $1 ORDER BY p.created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.EnrolledPerson
	for rows.Next() {
		var p models.EnrolledPerson
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.SignatureCount); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// --- Face signatures (append-only) ---

func (s *PostgresStore) AddSignature(ctx context.Context, personID uuid.UUID, signature []float32, quality float32, sourceKey string) (*models.FaceSignature, error) {
	fs := &models.FaceSignature{
		ID:        uuid.New(),
		PersonID:  personID,
		Signature: signature,
		Quality:   quality,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(signature)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_signatures (id, person_id, signature, quality, source_key) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		fs.ID, fs.PersonID, vec, fs.Quality, fs.SourceKey,
	).Scan(&fs.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add signature: %w", err)
	}
	return fs, nil
}

// ListSignatures returns every (person, signature) pair of a tenant. This is
// what the match cache loads.
func (s *PostgresStore) ListSignatures(ctx context.Context, tenantID uuid.UUID) ([]models.PersonSignature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fs.person_id, p.name, fs.signature
		 FROM face_signatures fs
		 JOIN enrolled_persons p ON p.id = fs.person_id
		 WHERE p.tenant_id = $1
		 ORDER BY fs.created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []models.PersonSignature
	for rows.Next() {
		var ps models.PersonSignature
		var vec pgvector.Vector
		if err := rows.Scan(&ps.PersonID, &ps.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		ps.Signature = vec.Slice()
		sigs = append(sigs, ps)
	}
	return sigs, nil
}

// SearchMatch is one result of a pgvector nearest-person search.
type SearchMatch struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Distance float32   `json:"distance"`
}

// SearchSignatures finds the closest enrolled persons to a probe signature
// within a tenant. Staff tooling uses this to verify enrollment quality.
func (s *PostgresStore) SearchSignatures(ctx context.Context, tenantID uuid.UUID, signature []float32, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(signature)

	rows, err := s.pool.Query(ctx,
		`SELECT fs.person_id, p.name, fs.signature <-> $1 AS distance
		 FROM face_signatures fs
		 JOIN enrolled_persons p ON p.id = fs.person_id
		 WHERE p.tenant_id = $2
		 ORDER BY fs.signature <-> $1
		 LIMIT $3`, vec, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("search signatures: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.PersonID, &m.Name, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// --- Media items ---

func (s *PostgresStore) CreateMediaItem(ctx context.Context, item *models.MediaItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.State = models.MediaStateUploaded
	err := s.pool.QueryRow(ctx,
		`INSERT INTO media_items (id, tenant_id, uploader_id, storage_key, size_bytes, hint, state, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING uploaded_at, updated_at`,
		item.ID, item.TenantID, item.UploaderID, item.StorageKey, item.SizeBytes, item.Hint, item.State, item.CapturedAt,
	).Scan(&item.UploadedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create media item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMediaItem(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	item := &models.MediaItem{}
	var faces []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, uploader_id, storage_key, size_bytes, hint, state, matched_person_id,
		        caption, activity_category, detected_faces, auto_tagged, recognition_complete,
		        captured_at, uploaded_at, updated_at
		 FROM media_items WHERE id = $1`, id,
	).Scan(&item.ID, &item.TenantID, &item.UploaderID, &item.StorageKey, &item.SizeBytes, &item.Hint,
		&item.State, &item.MatchedPersonID, &item.Caption, &item.ActivityCategory, &faces,
		&item.AutoTagged, &item.RecognitionComplete, &item.CapturedAt, &item.UploadedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get media item: %w", err)
	}
	if len(faces) > 0 {
		if err := json.Unmarshal(faces, &item.DetectedFaces); err != nil {
			return nil, fmt.Errorf("decode detected faces: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) ListMediaItems(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.MediaItem, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, uploader_id, storage_key, size_bytes, hint, state, matched_person_id,
		        caption, activity_category, detected_faces, auto_tagged, recognition_complete,
		        captured_at, uploaded_at, updated_at
		 FROM media_items WHERE tenant_id = $1 ORDER BY uploaded_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		var item models.MediaItem
		var faces []byte
		if err := rows.Scan(&item.ID, &item.TenantID, &item.UploaderID, &item.StorageKey, &item.SizeBytes,
			&item.Hint, &item.State, &item.MatchedPersonID, &item.Caption, &item.ActivityCategory, &faces,
			&item.AutoTagged, &item.RecognitionComplete, &item.CapturedAt, &item.UploadedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		if len(faces) > 0 {
			if err := json.Unmarshal(faces, &item.DetectedFaces); err != nil {
				return nil, fmt.Errorf("decode detected faces: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// --- Activity entries ---

func (s *PostgresStore) GetActivityEntryForMedia(ctx context.Context, mediaItemID uuid.UUID) (*models.ActivityEntry, error) {
	e := &models.ActivityEntry{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, media_item_id, person_id, category, notes, occurred_at, created_at
		 FROM activity_entries WHERE media_item_id = $1`, mediaItemID,
	).Scan(&e.ID, &e.TenantID, &e.MediaItemID, &e.PersonID, &e.Category, &e.Notes, &e.OccurredAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get activity entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListActivityEntries(ctx context.Context, tenantID uuid.UUID, personID *uuid.UUID, limit, offset int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, tenant_id, media_item_id, person_id, category, notes, occurred_at, created_at
	          FROM activity_entries WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if personID != nil {
		query += ` AND person_id = $2 ORDER BY occurred_at DESC LIMIT $3 OFFSET $4`
		args = append(args, *personID, limit, offset)
	} else {
		query += ` ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.MediaItemID, &e.PersonID, &e.Category, &e.Notes, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
