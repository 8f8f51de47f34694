package match

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/models"
)

func TestCacheReadThrough(t *testing.T) {
	tenant := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		tenant: {{PersonID: uuid.New(), Name: "Emma", Signature: sig(0, 0)}},
	}}
	cache := NewCache(source)

	for i := 0; i < 3; i++ {
		sigs, err := cache.Signatures(context.Background(), tenant)
		if err != nil {
			t.Fatalf("Signatures: %v", err)
		}
		if len(sigs) != 1 {
			t.Fatalf("got %d signatures; want 1", len(sigs))
		}
	}
	if source.loads != 1 {
		t.Errorf("source loaded %d times; want 1 (read-through)", source.loads)
	}
}

func TestCacheInvalidate(t *testing.T) {
	tenant := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{tenant: {}}}
	cache := NewCache(source)

	if _, err := cache.Signatures(context.Background(), tenant); err != nil {
		t.Fatalf("Signatures: %v", err)
	}
	cache.Invalidate(tenant)
	if _, err := cache.Signatures(context.Background(), tenant); err != nil {
		t.Fatalf("Signatures after invalidate: %v", err)
	}
	if source.loads != 2 {
		t.Errorf("source loaded %d times; want 2 after invalidation", source.loads)
	}
}

func TestCacheErrorNotCached(t *testing.T) {
	tenant := uuid.New()
	source := &fakeSource{err: errors.New("db down")}
	cache := NewCache(source)

	if _, err := cache.Signatures(context.Background(), tenant); err == nil {
		t.Fatal("expected load error")
	}

	source.err = nil
	source.sigs = map[uuid.UUID][]models.PersonSignature{tenant: {}}
	if _, err := cache.Signatures(context.Background(), tenant); err != nil {
		t.Fatalf("load after recovery: %v", err)
	}
}

func TestCacheTenantsAreIsolated(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{
		a: {{PersonID: uuid.New(), Name: "A"}},
		b: {{PersonID: uuid.New(), Name: "B"}, {PersonID: uuid.New(), Name: "B2"}},
	}}
	cache := NewCache(source)

	sa, _ := cache.Signatures(context.Background(), a)
	sb, _ := cache.Signatures(context.Background(), b)
	if len(sa) != 1 || len(sb) != 2 {
		t.Errorf("tenant isolation broken: %d/%d", len(sa), len(sb))
	}

	cache.Invalidate(a)
	if _, err := cache.Signatures(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	// b stayed cached through a's invalidation.
	if source.loads != 3 {
		t.Errorf("source loaded %d times; want 3", source.loads)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	tenant := uuid.New()
	source := &fakeSource{sigs: map[uuid.UUID][]models.PersonSignature{tenant: {}}}
	cache := NewCache(source)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Signatures(context.Background(), tenant)
		}()
	}
	wg.Wait()

	// fakeSource increments without locking; single-flight keeps it to one.
	if source.loads != 1 {
		t.Errorf("concurrent loads = %d; want 1 (single-flight)", source.loads)
	}
}
