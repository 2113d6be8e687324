// Package dedupe tracks which asset ids a report has already seen so no
// asset is valued or queued twice.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen ids to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool
}

type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a deduper. It lives for one invocation, so it
// is unbounded.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{seen: make(map[string]struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

// Unique returns ids in first-seen order with duplicates and ids already
// known to d removed. Every returned id is recorded.
func Unique(ctx context.Context, d Deduper, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || d.SeenAndRecord(ctx, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
