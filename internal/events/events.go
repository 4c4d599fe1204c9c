package events

import "context"

// Wake tells relay instances that an envelope was just queued for a
// device, so whichever instance holds that device's live connection
// can drain the offline queue immediately instead of waiting for the
// next identify. Delivery correctness never depends on wakes; the
// durable queue is the unit of truth and a lost wake only costs
// latency.
type Wake struct {
	Identity string `json:"identity"`
	DeviceID string `json:"deviceId"`
	QueuedAt int64  `json:"queuedAt"`
}

type Handler func(ctx context.Context, wake Wake)

type Bus interface {
	PublishWake(ctx context.Context, handle, deviceID string) error
	// SubscribeWakes delivers every wake published by any instance to
	// handler until ctx is cancelled. Non-blocking; the listen loop
	// runs in its own goroutine.
	SubscribeWakes(ctx context.Context, handler Handler) error
	Close() error
}

// NopBus discards wakes. Used in single-instance runs where the local
// registry already sees every connection.
type NopBus struct{}

func (NopBus) PublishWake(ctx context.Context, handle, deviceID string) error { return nil }

func (NopBus) SubscribeWakes(ctx context.Context, handler Handler) error { return nil }

func (NopBus) Close() error { return nil }
