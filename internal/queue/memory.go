package queue

import (
	"context"
	"sync"
	"time"

	"courier-relay/internal/domain/envelope"
)

// MemoryQueue implements Queue in process memory for tests and
// single-node runs. A single mutex across all devices is enough here;
// the redis implementation carries the multi-process load.
type MemoryQueue struct {
	mu      sync.Mutex
	cap     int
	entries map[string][]Entry
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &MemoryQueue{
		cap:     capacity,
		entries: make(map[string][]Entry),
	}
}

func key(handle, deviceID string) string {
	return handle + "/" + deviceID
}

func (q *MemoryQueue) Enqueue(ctx context.Context, handle, deviceID string, env envelope.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(handle, deviceID)
	entries := append(q.entries[k], Entry{Envelope: env, QueuedAt: time.Now()})
	if len(entries) > q.cap {
		entries = entries[len(entries)-q.cap:]
	}
	q.entries[k] = entries
	return nil
}

func (q *MemoryQueue) Drain(ctx context.Context, handle, deviceID string) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(handle, deviceID)
	entries := q.entries[k]
	delete(q.entries, k)
	return entries, nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, handle, deviceID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(handle, deviceID)
	merged := make([]Entry, 0, len(entries)+len(q.entries[k]))
	merged = append(merged, entries...)
	merged = append(merged, q.entries[k]...)
	if len(merged) > q.cap {
		merged = merged[len(merged)-q.cap:]
	}
	q.entries[k] = merged
	return nil
}

func (q *MemoryQueue) Len(ctx context.Context, handle, deviceID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[key(handle, deviceID)]), nil
}
