package sink

import (
	"context"
	"sync"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

// DeadLetterQueue receives batches that exhausted all retries (spec.md §4.3
// "on final failure the batch is handed to a dead letter queue").
type DeadLetterQueue interface {
	Write(ctx context.Context, tenantID string, events []cim.Event, cause error) error
}

// DeadLetterEntry is one recorded failure.
type DeadLetterEntry struct {
	TenantID string
	Events   []cim.Event
	Cause    error
}

// RingDLQ is an in-memory, fixed-capacity dead letter queue; oldest entries
// are evicted once capacity is reached. A pluggable real backend (file,
// object storage, a second Redis stream) can implement DeadLetterQueue
// instead.
type RingDLQ struct {
	mu       sync.Mutex
	capacity int
	entries  []DeadLetterEntry
}

// NewRingDLQ returns a RingDLQ bounded at capacity entries.
func NewRingDLQ(capacity int) *RingDLQ {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingDLQ{capacity: capacity}
}

func (d *RingDLQ) Write(_ context.Context, tenantID string, events []cim.Event, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DeadLetterEntry{TenantID: tenantID, Events: events, Cause: cause})
	if len(d.entries) > d.capacity {
		d.entries = d.entries[len(d.entries)-d.capacity:]
	}
	return nil
}

// Entries returns a snapshot of currently held entries.
func (d *RingDLQ) Entries() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetterEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports the current entry count.
func (d *RingDLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
