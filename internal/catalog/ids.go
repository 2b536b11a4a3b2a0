package catalog

import (
	"context"
	"fmt"

	"github.com/xenking/kv-catalog/internal/kv"
)

// Allocator hands out strictly increasing ids per entity kind. The sequence
// lives in the store (one atomic counter per kind), never in process memory,
// so multiple service instances share one id space and ids are never reused,
// not even after deletion.
type Allocator struct {
	store kv.Store
}

// NewAllocator returns an Allocator backed by the given store.
func NewAllocator(store kv.Store) *Allocator {
	return &Allocator{store: store}
}

// Next returns the next id for kind.
func (a *Allocator) Next(ctx context.Context, kind Kind) (int64, error) {
	id, err := a.store.IncrCounter(ctx, counterKey(kind))
	if err != nil {
		return 0, fmt.Errorf("allocating %s id: %w", kind, err)
	}
	return id, nil
}
