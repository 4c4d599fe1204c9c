package queue

import (
	"context"
	"time"

	"courier-relay/internal/domain/envelope"
)

// Entry is one queued envelope awaiting a device's next connection.
type Entry struct {
	Envelope envelope.Envelope `json:"envelope"`
	QueuedAt time.Time         `json:"queuedAt"`
}

// Queue is the per-device durable holding area for envelopes that
// could not be delivered live.
//
// Drain removes and returns all entries atomically with respect to
// concurrent Enqueue calls: an envelope enqueued during a drain is
// either part of that drain's result or left queued for the next one,
// never lost. Requeue restores entries the transport refused to the
// head of the queue, preserving their original order ahead of anything
// enqueued since.
//
// Each queue is bounded; past the cap the oldest entries are evicted
// first.
type Queue interface {
	Enqueue(ctx context.Context, handle, deviceID string, env envelope.Envelope) error
	Drain(ctx context.Context, handle, deviceID string) ([]Entry, error)
	Requeue(ctx context.Context, handle, deviceID string, entries []Entry) error
	Len(ctx context.Context, handle, deviceID string) (int, error)
}

// DefaultCap bounds a device's queue when no explicit cap is configured.
const DefaultCap = 1000
