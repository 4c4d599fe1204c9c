package queue

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-relay/internal/domain/envelope"
)

func env(body string) envelope.Envelope {
	return envelope.Envelope{Alg: envelope.Alg, Ciphertext: body}
}

func bodies(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Envelope.Ciphertext
	}
	return out
}

func TestEnqueueDrainOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, q.Enqueue(ctx, "bob", "b2", env(body)))
	}

	n, err := q.Len(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	drained, err := q.Drain(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, bodies(drained))

	// Drain empties the queue.
	again, err := q.Drain(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueuesAreIsolatedPerDevice(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)

	require.NoError(t, q.Enqueue(ctx, "bob", "b1", env("for-b1")))
	require.NoError(t, q.Enqueue(ctx, "bob", "b2", env("for-b2")))

	drained, err := q.Drain(ctx, "bob", "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"for-b1"}, bodies(drained))

	n, err := q.Len(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCapEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(3)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, "bob", "b2", env(strconv.Itoa(i))))
	}

	drained, err := q.Drain(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4"}, bodies(drained))
}

func TestRequeueRestoresHeadOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, q.Enqueue(ctx, "bob", "b2", env(body)))
	}

	drained, err := q.Drain(ctx, "bob", "b2")
	require.NoError(t, err)

	// The transport accepted "one" but refused the rest; meanwhile a
	// new envelope arrived.
	require.NoError(t, q.Enqueue(ctx, "bob", "b2", env("four")))
	require.NoError(t, q.Requeue(ctx, "bob", "b2", drained[1:]))

	final, err := q.Drain(ctx, "bob", "b2")
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three", "four"}, bodies(final))
}

// TestDrainNeverLosesConcurrentEnqueues checks the atomic-drain
// contract: every envelope enqueued while drains are running shows up
// in exactly one drain, in enqueue order.
func TestDrainNeverLosesConcurrentEnqueues(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(0)
	const total = 500

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if err := q.Enqueue(ctx, "bob", "b2", env(strconv.Itoa(i))); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	var collected []string
	deadline := time.After(5 * time.Second)
	for len(collected) < total {
		select {
		case <-deadline:
			t.Fatalf("collected %d of %d envelopes before timeout", len(collected), total)
		default:
		}
		drained, err := q.Drain(ctx, "bob", "b2")
		require.NoError(t, err)
		collected = append(collected, bodies(drained)...)
	}
	<-done

	require.Len(t, collected, total)
	for i, body := range collected {
		assert.Equal(t, strconv.Itoa(i), body)
	}
}
