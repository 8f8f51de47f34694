package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/caption"
	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/match"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/vision"
)

type fakeStore struct {
	mu         sync.Mutex
	tenants    map[uuid.UUID]*models.Tenant
	persons    map[uuid.UUID]*models.EnrolledPerson
	items      map[uuid.UUID]*models.MediaItem
	activities map[uuid.UUID]models.ActivityEntry
	finalized  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:    make(map[uuid.UUID]*models.Tenant),
		persons:    make(map[uuid.UUID]*models.EnrolledPerson),
		items:      make(map[uuid.UUID]*models.MediaItem),
		activities: make(map[uuid.UUID]models.ActivityEntry),
	}
}

func (s *fakeStore) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, errors.New("tenant not found")
	}
	copied := *t
	return &copied, nil
}

func (s *fakeStore) GetPerson(_ context.Context, id uuid.UUID) (*models.EnrolledPerson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, errors.New("person not found")
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) CreateMediaItem(_ context.Context, item *models.MediaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *fakeStore) GetMediaItem(_ context.Context, id uuid.UUID) (*models.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, errors.New("media item not found")
	}
	copied := *item
	return &copied, nil
}

func (s *fakeStore) FinalizeIntake(_ context.Context, p FinalizeParams) (*uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized++

	tenant, ok := s.tenants[p.TenantID]
	if !ok {
		return nil, errors.New("tenant not found")
	}
	item, ok := s.items[p.MediaItemID]
	if !ok {
		return nil, errors.New("media item not found")
	}
	// Charge only while the item is still pending, as the transactional
	// state check does.
	if p.ChargeBytes > 0 && item.State == models.MediaStateUploaded {
		if tenant.StorageUsedBytes+p.ChargeBytes > tenant.StorageQuotaBytes {
			return nil, ErrQuotaExceeded
		}
		tenant.StorageUsedBytes += p.ChargeBytes
	}
	item.State = models.MediaStatePersisted
	item.MatchedPersonID = p.MatchedPersonID
	item.Caption = &p.Caption
	item.ActivityCategory = p.Category
	item.DetectedFaces = p.Faces
	item.AutoTagged = p.AutoTagged
	item.RecognitionComplete = p.RecognitionComplete

	delete(s.activities, p.MediaItemID)
	if p.Activity == nil {
		return nil, nil
	}
	entry := models.ActivityEntry{
		ID:          uuid.New(),
		TenantID:    p.TenantID,
		MediaItemID: p.MediaItemID,
		PersonID:    p.Activity.PersonID,
		Category:    p.Activity.Category,
		Notes:       p.Activity.Notes,
		OccurredAt:  p.Activity.OccurredAt,
	}
	s.activities[p.MediaItemID] = entry
	id := entry.ID
	return &id, nil
}

func (s *fakeStore) usedBytes(tenantID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[tenantID].StorageUsedBytes
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (b *fakeBlobs) Put(_ context.Context, tenantID uuid.UUID, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := "media/" + tenantID.String() + "/" + uuid.NewString()
	b.objects[key] = data
	return key, nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeEngine struct {
	observations []vision.FaceObservation
	err          error
}

func (e *fakeEngine) DetectFaces(context.Context, []byte) ([]vision.FaceObservation, error) {
	return e.observations, e.err
}

type fakeMatcher struct {
	matches []match.FaceMatch
	err     error
}

func (m *fakeMatcher) MatchFaces(_ context.Context, _ uuid.UUID, observations []vision.FaceObservation) ([]match.FaceMatch, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return m.matches, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.MediaPersistedEvent
}

func (p *fakePublisher) PublishMediaPersisted(_ context.Context, ev models.MediaPersistedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }
func (failingProvider) Generate(context.Context, caption.Request) (string, error) {
	return "", errors.New("provider unavailable")
}

type harness struct {
	store     *fakeStore
	blobs     *fakeBlobs
	engine    *fakeEngine
	matcher   *fakeMatcher
	publisher *fakePublisher
	orch      *Orchestrator
	tenant    *models.Tenant
}

func newHarness(t *testing.T, quota int64) *harness {
	t.Helper()
	store := newFakeStore()
	tenant := &models.Tenant{
		ID:                uuid.New(),
		Name:              "Sunshine Daycare",
		StorageQuotaBytes: quota,
	}
	store.tenants[tenant.ID] = tenant

	h := &harness{
		store:     store,
		blobs:     newFakeBlobs(),
		engine:    &fakeEngine{},
		matcher:   &fakeMatcher{},
		publisher: &fakePublisher{},
		tenant:    tenant,
	}
	h.orch = NewOrchestrator(store, h.blobs, h.engine, h.matcher,
		caption.NewGeneratorWith(caption.NewTemplateProvider(), time.Second),
		h.publisher, config.IntakeConfig{BatchConcurrency: 2})
	return h
}

func (h *harness) enroll(name string) uuid.UUID {
	id := uuid.New()
	h.store.persons[id] = &models.EnrolledPerson{ID: id, TenantID: h.tenant.ID, Name: name}
	return id
}

func observation() vision.FaceObservation {
	return vision.FaceObservation{
		BBox:       [4]float32{10, 10, 50, 50},
		Confidence: 0.9,
		Signature:  make([]float32, 512),
	}
}

func matchedFace(personID uuid.UUID, distance float32) match.FaceMatch {
	return match.FaceMatch{
		BBox:       [4]float32{10, 10, 50, 50},
		Confidence: 0.9,
		PersonID:   &personID,
		Distance:   distance,
	}
}

func TestProcessUploadZeroFaces(t *testing.T) {
	h := newHarness(t, 1<<20)

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     []byte("photo-bytes"),
		Hint:     "group photo",
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	if res.Item.State != models.MediaStatePersisted {
		t.Errorf("state = %s, want persisted", res.Item.State)
	}
	if res.Item.MatchedPersonID != nil {
		t.Errorf("expected no subject, got %v", res.Item.MatchedPersonID)
	}
	if res.Item.Caption == nil || *res.Item.Caption == "" {
		t.Error("caption must be non-empty even with zero faces")
	}
	if res.ActivityEntryID != nil {
		t.Error("expected no activity entry for zero faces")
	}
	if res.Item.AutoTagged {
		t.Error("zero faces must not be auto-tagged")
	}
}

func TestProcessUploadSingleMatch(t *testing.T) {
	h := newHarness(t, 1<<20)
	emma := h.enroll("Emma")
	h.engine.observations = []vision.FaceObservation{observation()}
	h.matcher.matches = []match.FaceMatch{matchedFace(emma, 0.35)}

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID:   h.tenant.ID,
		Data:       []byte("photo-bytes"),
		Hint:       "eating lunch",
		CapturedAt: time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	if res.Item.MatchedPersonID == nil || *res.Item.MatchedPersonID != emma {
		t.Fatalf("subject = %v, want %s", res.Item.MatchedPersonID, emma)
	}
	if !res.Item.AutoTagged {
		t.Error("single-subject photo must be auto-tagged")
	}
	if res.Item.ActivityCategory != "meal" {
		t.Errorf("category = %s, want meal", res.Item.ActivityCategory)
	}
	if res.ActivityEntryID == nil {
		t.Fatal("expected an activity entry")
	}
	entry := h.store.activities[res.Item.ID]
	if entry.PersonID != emma {
		t.Errorf("activity person = %s, want %s", entry.PersonID, emma)
	}
	if entry.Notes != *res.Item.Caption {
		t.Errorf("activity notes = %q, want caption %q", entry.Notes, *res.Item.Caption)
	}
	if !strings.Contains(*res.Item.Caption, "Emma") {
		t.Errorf("caption %q should mention the subject", *res.Item.Caption)
	}

	if len(h.publisher.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(h.publisher.events))
	}
	if h.publisher.events[0].ActivityEntryID == nil {
		t.Error("event should carry the activity entry id")
	}
}

func TestProcessUploadMultiplePersonsNoEntry(t *testing.T) {
	h := newHarness(t, 1<<20)
	emma := h.enroll("Emma")
	liam := h.enroll("Liam")
	h.engine.observations = []vision.FaceObservation{observation(), observation()}
	h.matcher.matches = []match.FaceMatch{matchedFace(emma, 0.3), matchedFace(liam, 0.4)}

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     []byte("photo-bytes"),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	if res.Item.MatchedPersonID != nil {
		t.Error("group photo must have no subject")
	}
	if res.ActivityEntryID != nil {
		t.Error("group photo must not create an activity entry")
	}
	if len(res.Item.DetectedFaces) != 2 {
		t.Fatalf("detected faces = %d, want 2", len(res.Item.DetectedFaces))
	}
	// Per-face matches are retained even though the photo gets no subject.
	for i, f := range res.Item.DetectedFaces {
		if f.MatchedPersonID == nil {
			t.Errorf("face %d lost its per-face match", i)
		}
	}
}

func TestProcessUploadDetectionFailureDegrades(t *testing.T) {
	h := newHarness(t, 1<<20)
	h.engine.err = &vision.DetectionError{Stage: "decode", Err: errors.New("bad jpeg")}

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     []byte("not-an-image"),
	})
	if err != nil {
		t.Fatalf("detection failure must not fail the upload: %v", err)
	}
	if res.Item.State != models.MediaStatePersisted {
		t.Errorf("state = %s, want persisted", res.Item.State)
	}
	if res.Item.RecognitionComplete {
		t.Error("recognition_complete must be false after a detection failure")
	}
	if res.Item.Caption == nil || *res.Item.Caption == "" {
		t.Error("caption must still be produced")
	}
}

func TestProcessUploadCaptionProviderFailure(t *testing.T) {
	h := newHarness(t, 1<<20)
	h.orch = NewOrchestrator(h.store, h.blobs, h.engine, h.matcher,
		caption.NewGeneratorWith(failingProvider{}, 50*time.Millisecond),
		h.publisher, config.IntakeConfig{})

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     []byte("photo-bytes"),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	if res.Item.Caption == nil || *res.Item.Caption == "" {
		t.Error("template fallback must yield a non-empty caption")
	}
}

func TestProcessUploadQuotaCharged(t *testing.T) {
	h := newHarness(t, 100)

	_, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     make([]byte, 10),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	if used := h.store.usedBytes(h.tenant.ID); used != 10 {
		t.Errorf("storage used = %d, want 10", used)
	}
}

func TestProcessUploadQuotaExceeded(t *testing.T) {
	h := newHarness(t, 5)

	_, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     make([]byte, 10),
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	if used := h.store.usedBytes(h.tenant.ID); used != 0 {
		t.Errorf("storage used = %d, want 0 after rejection", used)
	}
	if h.store.finalized != 0 {
		t.Errorf("finalize ran %d times before the precheck rejection", h.store.finalized)
	}
	if len(h.blobs.objects) != 0 {
		t.Error("rejected upload must not leave blobs behind")
	}
	if len(h.store.items) != 0 {
		t.Error("rejected upload must not create a media item")
	}
}

func TestReprocessDoesNotRecharge(t *testing.T) {
	h := newHarness(t, 100)
	emma := h.enroll("Emma")

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     make([]byte, 10),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	// Enrollment changed between upload and reprocess; the stored photo now
	// matches Emma.
	h.engine.observations = []vision.FaceObservation{observation()}
	h.matcher.matches = []match.FaceMatch{matchedFace(emma, 0.3)}

	first, err := h.orch.Reprocess(context.Background(), res.Item.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	second, err := h.orch.Reprocess(context.Background(), res.Item.ID)
	if err != nil {
		t.Fatalf("Reprocess again: %v", err)
	}

	if used := h.store.usedBytes(h.tenant.ID); used != 10 {
		t.Errorf("storage used = %d after reprocess, want 10", used)
	}
	if first.ActivityEntryID == nil || second.ActivityEntryID == nil {
		t.Fatal("both reprocess runs should create an activity entry")
	}
	if *first.ActivityEntryID == *second.ActivityEntryID {
		t.Error("reprocess should replace the activity entry, not reuse it")
	}
	if len(h.store.activities) != 1 {
		t.Errorf("activity entries = %d, want exactly 1", len(h.store.activities))
	}
}

func TestReprocessPendingItemChargesOnce(t *testing.T) {
	h := newHarness(t, 100)

	// An enqueued upload leaves the item pending; the worker's first run
	// must charge the counter, a second run must not.
	item := &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   h.tenant.ID,
		SizeBytes:  10,
		State:      models.MediaStateUploaded,
		CapturedAt: time.Now(),
	}
	key, err := h.blobs.Put(context.Background(), h.tenant.ID, make([]byte, 10), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	item.StorageKey = key
	if err := h.store.CreateMediaItem(context.Background(), item); err != nil {
		t.Fatalf("CreateMediaItem: %v", err)
	}

	if _, err := h.orch.Reprocess(context.Background(), item.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if used := h.store.usedBytes(h.tenant.ID); used != 10 {
		t.Errorf("storage used = %d after first run, want 10", used)
	}

	if _, err := h.orch.Reprocess(context.Background(), item.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if used := h.store.usedBytes(h.tenant.ID); used != 10 {
		t.Errorf("storage used = %d after second run, want 10", used)
	}
}

// gateBlobs holds Get until two readers have arrived, so both runs observe
// the item in its pending state before either one finalizes.
type gateBlobs struct {
	*fakeBlobs
	ready sync.WaitGroup
}

func (b *gateBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.ready.Done()
	b.ready.Wait()
	return b.fakeBlobs.Get(ctx, key)
}

func TestConcurrentReprocessChargesOnce(t *testing.T) {
	h := newHarness(t, 100)

	item := &models.MediaItem{
		ID:         uuid.New(),
		TenantID:   h.tenant.ID,
		SizeBytes:  10,
		State:      models.MediaStateUploaded,
		CapturedAt: time.Now(),
	}
	key, err := h.blobs.Put(context.Background(), h.tenant.ID, make([]byte, 10), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	item.StorageKey = key
	if err := h.store.CreateMediaItem(context.Background(), item); err != nil {
		t.Fatalf("CreateMediaItem: %v", err)
	}

	gated := &gateBlobs{fakeBlobs: h.blobs}
	gated.ready.Add(2)
	h.orch = NewOrchestrator(h.store, gated, h.engine, h.matcher,
		caption.NewGeneratorWith(caption.NewTemplateProvider(), time.Second),
		h.publisher, config.IntakeConfig{BatchConcurrency: 2})

	// A queue redelivery can run the same pending item twice at once. Both
	// runs request a charge; only one may land.
	results := h.orch.ProcessBatch(context.Background(), []uuid.UUID{item.ID, item.ID})
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("run %d: %v", i, r.Err)
		}
	}

	if used := h.store.usedBytes(h.tenant.ID); used != 10 {
		t.Errorf("storage used = %d after concurrent runs, want 10", used)
	}
}

func TestReprocessQuotaFullStillSucceeds(t *testing.T) {
	h := newHarness(t, 10)

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     make([]byte, 10),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	// Quota is now exhausted; reprocess charges nothing so it must pass.
	if _, err := h.orch.Reprocess(context.Background(), res.Item.ID); err != nil {
		t.Fatalf("Reprocess at full quota: %v", err)
	}
}

func TestProcessBatchIsolation(t *testing.T) {
	h := newHarness(t, 1<<20)

	res, err := h.orch.ProcessUpload(context.Background(), UploadRequest{
		TenantID: h.tenant.ID,
		Data:     []byte("photo-bytes"),
	})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	missing := uuid.New()
	results := h.orch.ProcessBatch(context.Background(), []uuid.UUID{res.Item.ID, missing})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("existing item failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("missing item should fail without affecting the batch")
	}
	if results[0].MediaItemID != res.Item.ID || results[1].MediaItemID != missing {
		t.Error("results must be aligned with the input ids")
	}
}
