// Package match compares face signatures from uploaded photos against the
// enrolled signatures of a tenant.
package match

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/moments/internal/models"
)

// SignatureSource lists the enrolled reference signatures of a tenant.
// The Postgres store implements this.
type SignatureSource interface {
	ListSignatures(ctx context.Context, tenantID uuid.UUID) ([]models.PersonSignature, error)
}

// Cache is a read-through, per-tenant cache of enrolled signatures.
// Signatures are read-only during matching; enrollment writes call
// Invalidate, so matching never pauses for enrollment.
type Cache struct {
	source SignatureSource

	mu      sync.RWMutex
	tenants map[uuid.UUID][]models.PersonSignature
	loading map[uuid.UUID]*loadCall
}

type loadCall struct {
	done chan struct{}
	sigs []models.PersonSignature
	err  error
}

func NewCache(source SignatureSource) *Cache {
	return &Cache{
		source:  source,
		tenants: make(map[uuid.UUID][]models.PersonSignature),
		loading: make(map[uuid.UUID]*loadCall),
	}
}

// Signatures returns the tenant's enrolled signatures, loading them from the
// source on first use. Concurrent loads for the same tenant are collapsed
// into one source call.
func (c *Cache) Signatures(ctx context.Context, tenantID uuid.UUID) ([]models.PersonSignature, error) {
	c.mu.RLock()
	if sigs, ok := c.tenants[tenantID]; ok {
		c.mu.RUnlock()
		return sigs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if sigs, ok := c.tenants[tenantID]; ok {
		c.mu.Unlock()
		return sigs, nil
	}
	if call, ok := c.loading[tenantID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.sigs, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	c.loading[tenantID] = call
	c.mu.Unlock()

	sigs, err := c.source.ListSignatures(ctx, tenantID)
	if err != nil {
		err = fmt.Errorf("load signatures for tenant %s: %w", tenantID, err)
	}

	call.sigs, call.err = sigs, err
	close(call.done)

	c.mu.Lock()
	delete(c.loading, tenantID)
	if err == nil {
		c.tenants[tenantID] = sigs
	}
	c.mu.Unlock()

	return sigs, err
}

// Invalidate drops the cached signatures for a tenant. The enrollment
// workflow calls this after appending a new signature.
func (c *Cache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	delete(c.tenants, tenantID)
	c.mu.Unlock()
}
