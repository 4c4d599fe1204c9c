package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"courier-relay/pkg/logger"
)

// Wake channel pattern:
// - wake:{identity}:{device}

const wakeChannelPrefix = "wake:"

// RedisBus carries wakes over Redis pub/sub between relay instances.
type RedisBus struct {
	client *goredis.Client
	log    *logger.Logger
	pubsub *goredis.PubSub
}

func NewRedisBus(client *goredis.Client, log *logger.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

func wakeChannel(handle, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", wakeChannelPrefix, handle, deviceID)
}

func (b *RedisBus) PublishWake(ctx context.Context, handle, deviceID string) error {
	data, err := json.Marshal(Wake{
		Identity: handle,
		DeviceID: deviceID,
		QueuedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal wake: %w", err)
	}
	return b.client.Publish(ctx, wakeChannel(handle, deviceID), data).Err()
}

func (b *RedisBus) SubscribeWakes(ctx context.Context, handler Handler) error {
	b.pubsub = b.client.PSubscribe(ctx, wakeChannelPrefix+"*")
	go b.listen(ctx, handler)
	return nil
}

func (b *RedisBus) listen(ctx context.Context, handler Handler) {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var wake Wake
			if err := json.Unmarshal([]byte(msg.Payload), &wake); err != nil {
				b.log.Errorf("discarding malformed wake on %s: %v", msg.Channel, err)
				continue
			}
			handler(ctx, wake)
		}
	}
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
