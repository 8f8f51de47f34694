// Package intake runs the photo pipeline: store raw bytes, detect faces,
// match them against the tenant's enrolled persons, classify the activity,
// generate a caption, and persist everything atomically. One orchestrator
// instance serves both the inline API path and the queue worker.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/caption"
	"github.com/your-org/moments/internal/classify"
	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/match"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/observability"
	"github.com/your-org/moments/internal/vision"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.EnrolledPerson, error)
	CreateMediaItem(ctx context.Context, item *models.MediaItem) error
	GetMediaItem(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
	FinalizeIntake(ctx context.Context, p FinalizeParams) (*uuid.UUID, error)
}

// BlobStore stores and retrieves raw media bytes by opaque locator.
type BlobStore interface {
	Put(ctx context.Context, tenantID uuid.UUID, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// FaceEngine detects faces and produces per-face signatures.
type FaceEngine interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]vision.FaceObservation, error)
}

// FaceMatcher resolves observations against a tenant's enrollment set.
type FaceMatcher interface {
	MatchFaces(ctx context.Context, tenantID uuid.UUID, observations []vision.FaceObservation) ([]match.FaceMatch, error)
}

// Captioner produces a non-empty caption for an intake run.
type Captioner interface {
	Generate(ctx context.Context, req caption.Request) string
}

// EventPublisher emits the post-commit persisted event. Delivery is
// fire-and-forget from the pipeline's point of view.
type EventPublisher interface {
	PublishMediaPersisted(ctx context.Context, ev models.MediaPersistedEvent) error
}

// UploadRequest is one photo submitted for intake.
type UploadRequest struct {
	TenantID    uuid.UUID
	UploaderID  uuid.UUID
	Data        []byte
	ContentType string
	Hint        string
	CapturedAt  time.Time
}

// MediaItemResult is the outcome of a completed intake run.
type MediaItemResult struct {
	Item            *models.MediaItem
	ActivityEntryID *uuid.UUID
}

// Orchestrator drives a media item through
// Uploaded → Detecting → Matched|Unmatched → Captioned → Persisted.
// Detection and caption failures degrade the result; only quota and
// persistence failures surface as errors.
type Orchestrator struct {
	store     Store
	blobs     BlobStore
	engine    FaceEngine
	matcher   FaceMatcher
	captioner Captioner
	publisher EventPublisher
	batchSize int
}

func NewOrchestrator(store Store, blobs BlobStore, engine FaceEngine, matcher FaceMatcher, captioner Captioner, publisher EventPublisher, cfg config.IntakeConfig) *Orchestrator {
	batch := cfg.BatchConcurrency
	if batch <= 0 {
		batch = 1
	}
	return &Orchestrator{
		store:     store,
		blobs:     blobs,
		engine:    engine,
		matcher:   matcher,
		captioner: captioner,
		publisher: publisher,
		batchSize: batch,
	}
}

// ProcessUpload runs the full pipeline for a fresh upload. The quota is
// prechecked before any storage or model work; the authoritative check is
// the conditional increment inside the persistence transaction.
func (o *Orchestrator) ProcessUpload(ctx context.Context, req UploadRequest) (*MediaItemResult, error) {
	tenant, err := o.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", req.TenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", req.TenantID)
	}

	size := int64(len(req.Data))
	if size > tenant.RemainingBytes() {
		observability.QuotaRejections.Inc()
		observability.UploadsProcessed.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("upload of %d bytes for tenant %s: %w", size, tenant.ID, ErrQuotaExceeded)
	}

	key, err := o.blobs.Put(ctx, req.TenantID, req.Data, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store media bytes: %w", err)
	}

	now := time.Now().UTC()
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	item := &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		UploaderID: req.UploaderID,
		StorageKey: key,
		SizeBytes:  size,
		Hint:       req.Hint,
		State:      models.MediaStateUploaded,
		CapturedAt: capturedAt,
		UploadedAt: now,
	}
	if err := o.store.CreateMediaItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create media item: %w", err)
	}

	return o.run(ctx, tenant, item, req.Data, size)
}

// Reprocess runs the pipeline on an already stored item. It serves both
// the async first run (item still pending from an enqueued upload) and a
// staff-triggered rerun. The storage counter is charged only on the first
// run; a rerun replaces match, caption and the activity entry, so
// repeating it is idempotent. The state read here only decides whether a
// charge is requested; FinalizeIntake re-checks the state under the item
// row lock, so a queue redelivery racing a slow first run cannot charge
// the item twice.
func (o *Orchestrator) Reprocess(ctx context.Context, mediaItemID uuid.UUID) (*MediaItemResult, error) {
	item, err := o.store.GetMediaItem(ctx, mediaItemID)
	if err != nil {
		return nil, fmt.Errorf("load media item %s: %w", mediaItemID, err)
	}
	if item == nil {
		return nil, fmt.Errorf("media item %s not found", mediaItemID)
	}
	tenant, err := o.store.GetTenant(ctx, item.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", item.TenantID, err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s not found", item.TenantID)
	}
	data, err := o.blobs.Get(ctx, item.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load media bytes %s: %w", item.StorageKey, err)
	}

	var chargeBytes int64
	if item.State == models.MediaStateUploaded {
		chargeBytes = item.SizeBytes
	}
	return o.run(ctx, tenant, item, data, chargeBytes)
}

// ProcessBatch reprocesses a set of items with bounded concurrency. Items
// fail independently; the result slice is index-aligned with ids.
func (o *Orchestrator) ProcessBatch(ctx context.Context, ids []uuid.UUID) []BatchResult {
	results := make([]BatchResult, len(ids))
	sem := make(chan struct{}, o.batchSize)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := o.Reprocess(ctx, id)
			results[i] = BatchResult{MediaItemID: id, Result: res, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

// BatchResult is one item's outcome within a batch run.
type BatchResult struct {
	MediaItemID uuid.UUID
	Result      *MediaItemResult
	Err         error
}

// run executes detect → match → classify → caption → persist for one item.
// chargeBytes is the amount to add to the tenant's counter while the item
// is still pending, zero on reprocess.
func (o *Orchestrator) run(ctx context.Context, tenant *models.Tenant, item *models.MediaItem, data []byte, chargeBytes int64) (*MediaItemResult, error) {
	item.State = models.MediaStateDetecting

	observations, err := o.engine.DetectFaces(ctx, data)
	recognitionComplete := true
	if err != nil {
		// A failed detection degrades to zero faces rather than failing
		// the upload; the flag records that recognition never ran.
		var de *vision.DetectionError
		if errors.As(err, &de) {
			slog.Warn("face detection failed, continuing without faces",
				"media_item_id", item.ID, "stage", de.Stage, "error", err)
		} else {
			slog.Warn("face detection failed, continuing without faces",
				"media_item_id", item.ID, "error", err)
		}
		observations = nil
		recognitionComplete = false
	}

	matchStart := time.Now()
	matches, err := o.matcher.MatchFaces(ctx, tenant.ID, observations)
	observability.IntakeStageDuration.WithLabelValues("match").Observe(time.Since(matchStart).Seconds())
	if err != nil {
		slog.Warn("face matching failed, continuing unmatched",
			"media_item_id", item.ID, "error", err)
		matches = unmatchedFrom(observations)
		recognitionComplete = false
	}

	faces := make([]models.DetectedFace, 0, len(matches))
	distinct := make(map[uuid.UUID]struct{})
	for _, m := range matches {
		faces = append(faces, models.DetectedFace{
			BBox:            m.BBox,
			Confidence:      m.Confidence,
			MatchedPersonID: m.PersonID,
			MatchDistance:   m.Distance,
			Ambiguous:       m.Ambiguous,
		})
		if m.PersonID != nil {
			distinct[*m.PersonID] = struct{}{}
		}
	}

	// Exactly one distinct matched person makes the photo auto-taggable;
	// a group photo keeps its per-face matches but gets no subject.
	var subjectID *uuid.UUID
	if len(distinct) == 1 {
		for id := range distinct {
			sid := id
			subjectID = &sid
		}
	}

	category := classify.Classify(item.Hint, item.CapturedAt)

	var personName string
	if subjectID != nil {
		person, err := o.store.GetPerson(ctx, *subjectID)
		if err != nil {
			slog.Warn("matched person lookup failed",
				"person_id", *subjectID, "error", err)
		} else if person != nil {
			personName = person.Name
		}
	}

	captionStart := time.Now()
	captionText := o.captioner.Generate(ctx, caption.Request{
		PersonName: personName,
		Category:   category,
		CapturedAt: item.CapturedAt,
		Tone:       tenant.CaptionTone,
	})
	observability.IntakeStageDuration.WithLabelValues("caption").Observe(time.Since(captionStart).Seconds())
	item.State = models.MediaStateCaptioned

	params := FinalizeParams{
		MediaItemID:         item.ID,
		TenantID:            tenant.ID,
		ChargeBytes:         chargeBytes,
		MatchedPersonID:     subjectID,
		Caption:             captionText,
		Category:            string(category),
		Faces:               faces,
		AutoTagged:          subjectID != nil,
		RecognitionComplete: recognitionComplete,
	}
	if subjectID != nil {
		params.Activity = &ActivityDraft{
			PersonID:   *subjectID,
			Category:   string(category),
			Notes:      captionText,
			OccurredAt: item.CapturedAt,
		}
	}

	persistStart := time.Now()
	activityID, err := o.store.FinalizeIntake(ctx, params)
	observability.IntakeStageDuration.WithLabelValues("persist").Observe(time.Since(persistStart).Seconds())
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			observability.QuotaRejections.Inc()
			observability.UploadsProcessed.WithLabelValues("rejected").Inc()
			return nil, err
		}
		observability.UploadsProcessed.WithLabelValues("failed").Inc()
		return nil, &PersistenceError{MediaItemID: item.ID, Err: err}
	}

	item.State = models.MediaStatePersisted
	item.MatchedPersonID = subjectID
	item.Caption = &captionText
	item.ActivityCategory = string(category)
	item.DetectedFaces = faces
	item.AutoTagged = subjectID != nil
	item.RecognitionComplete = recognitionComplete
	item.UpdatedAt = time.Now().UTC()

	observability.UploadsProcessed.WithLabelValues(outcomeLabel(subjectID, matches)).Inc()

	if o.publisher != nil {
		ev := models.MediaPersistedEvent{
			MediaItemID:     item.ID,
			TenantID:        tenant.ID,
			MatchedPersonID: subjectID,
			Caption:         captionText,
			Category:        string(category),
			ActivityEntryID: activityID,
			FaceCount:       len(faces),
			PersistedAt:     time.Now().UTC(),
		}
		if err := o.publisher.PublishMediaPersisted(ctx, ev); err != nil {
			slog.Warn("persisted event publish failed",
				"media_item_id", item.ID, "error", err)
		}
	}

	return &MediaItemResult{Item: item, ActivityEntryID: activityID}, nil
}

func unmatchedFrom(observations []vision.FaceObservation) []match.FaceMatch {
	out := make([]match.FaceMatch, 0, len(observations))
	for _, obs := range observations {
		out = append(out, match.FaceMatch{BBox: obs.BBox, Confidence: obs.Confidence})
	}
	return out
}

func outcomeLabel(subjectID *uuid.UUID, matches []match.FaceMatch) string {
	if subjectID != nil {
		return "matched"
	}
	for _, m := range matches {
		if m.Ambiguous {
			return "ambiguous"
		}
	}
	return "unmatched"
}
