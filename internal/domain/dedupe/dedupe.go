// Package dedupe defines the interface for vote-event idempotency tracking.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Default bound on remembered event ids.
const defaultMaxSize = 50_000

// Deduper records seen vote-event IDs to ensure at-most-once ingestion.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set, allowing it to be retried.
	// Used when an event was marked as seen but failed to be processed
	// (e.g. queue backpressure).
	Unrecord(ctx context.Context, id string)

	// Size returns the current number of remembered ids.
	Size() int64
}

// inMemoryDeduper implements Deduper with a bounded FIFO window: once the
// bound is reached the oldest remembered id is forgotten. Unbounded when
// maxSize <= 0.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // FIFO of recorded ids; may contain unrecorded ids
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration
// options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
		d.order = append(d.order, id)
	}
	d.seen[id] = struct{}{}
	d.size.Store(int64(len(d.seen)))
	return false
}

// Unrecord removes an ID from the seen set.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, id)
	d.size.Store(int64(len(d.seen)))
}

// evictOldest drops the oldest still-remembered id. Entries already removed
// by Unrecord are skipped. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	for len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		if _, exists := d.seen[oldest]; exists {
			delete(d.seen, oldest)
			return
		}
	}
}

// Size returns the current number of remembered ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
