package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/queue"
)

// Offline queue key pattern:
// - queue:{identity}:{device} - list of JSON queue entries, oldest at head

// drainScript removes and returns the whole list in one atomic step,
// so an enqueue racing the drain lands either in this result or in a
// fresh list for the next drain, never nowhere.
var drainScript = goredis.NewScript(`
	local entries = redis.call('LRANGE', KEYS[1], 0, -1)
	redis.call('DEL', KEYS[1])
	return entries
`)

// Queue is the redis-backed offline queue shared by all relay
// instances. It satisfies the same contract as the in-memory queue;
// bounded per device with oldest-first eviction.
type Queue struct {
	client *goredis.Client
	cap    int
}

func NewQueue(client *goredis.Client, capacity int) *Queue {
	if capacity <= 0 {
		capacity = queue.DefaultCap
	}
	return &Queue{client: client, cap: capacity}
}

func queueKey(handle, deviceID string) string {
	return fmt.Sprintf("queue:%s:%s", handle, deviceID)
}

func (q *Queue) Enqueue(ctx context.Context, handle, deviceID string, env envelope.Envelope) error {
	data, err := json.Marshal(queue.Entry{Envelope: env, QueuedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}

	key := queueKey(handle, deviceID)
	pipe := q.client.Pipeline()
	pipe.RPush(ctx, key, data)
	// Keep the newest cap entries; everything older falls off the head.
	pipe.LTrim(ctx, key, int64(-q.cap), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (q *Queue) Drain(ctx context.Context, handle, deviceID string) ([]queue.Entry, error) {
	raw, err := drainScript.Run(ctx, q.client, []string{queueKey(handle, deviceID)}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}

	entries := make([]queue.Entry, 0, len(raw))
	for _, item := range raw {
		var entry queue.Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (q *Queue) Requeue(ctx context.Context, handle, deviceID string, entries []queue.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// LPUSH prepends argument by argument, so pushing in reverse keeps
	// entries[0] at the head ahead of anything enqueued meanwhile.
	values := make([]interface{}, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		data, err := json.Marshal(entries[i])
		if err != nil {
			return fmt.Errorf("marshal queue entry: %w", err)
		}
		values = append(values, data)
	}

	key := queueKey(handle, deviceID)
	pipe := q.client.Pipeline()
	pipe.LPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-q.cap), -1)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queue) Len(ctx context.Context, handle, deviceID string) (int, error) {
	n, err := q.client.LLen(ctx, queueKey(handle, deviceID)).Result()
	return int(n), err
}
