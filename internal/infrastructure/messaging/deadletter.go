package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is a delivery that still failed after all retries.
type DeadLetterEntry struct {
	Event    shared.Event
	Error    string
	Attempts int
	FailedAt time.Time

	handler shared.EventHandler
}

// DeadLetterQueue keeps failed deliveries so they can be redelivered later.
// The oldest entry is evicted when the queue is full.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Redeliver hands every queued entry back to its handler once. Entries that
// fail again are re-queued with their attempt count raised.
func (q *DeadLetterQueue) Redeliver(ctx context.Context, now func() time.Time) (delivered, failed int) {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	for i, entry := range pending {
		if ctx.Err() != nil {
			for _, rest := range pending[i:] {
				q.Add(rest)
			}
			return delivered, failed + len(pending) - i
		}
		if entry.handler == nil {
			continue
		}
		if err := invoke(ctx, entry.handler, entry.Event); err != nil {
			entry.Attempts++
			entry.Error = err.Error()
			entry.FailedAt = now()
			q.Add(entry)
			failed++
			continue
		}
		delivered++
	}
	return delivered, failed
}
