package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	closed atomic.Bool
}

func (f *fakeConn) Push(frame []byte) error { return nil }
func (f *fakeConn) Close()                  { f.closed.Store(true) }

func TestBindAndLookup(t *testing.T) {
	r := New()
	c := &fakeConn{id: "c1"}

	epoch, replaced := r.Bind("alice", "a1", c)
	assert.Nil(t, replaced)
	assert.NotZero(t, epoch)

	got, gotEpoch, ok := r.Lookup("alice", "a1")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, epoch, gotEpoch)

	_, _, ok = r.Lookup("alice", "a2")
	assert.False(t, ok)
}

func TestBindReplacesPriorConnection(t *testing.T) {
	r := New()
	first := &fakeConn{id: "first"}
	second := &fakeConn{id: "second"}

	e1, replaced := r.Bind("alice", "a1", first)
	require.Nil(t, replaced)

	e2, replaced := r.Bind("alice", "a1", second)
	assert.Same(t, first, replaced)
	assert.Greater(t, e2, e1)

	got, _, ok := r.Lookup("alice", "a1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

// TestStaleUnbindIgnored covers the disconnect/reconnect race: the old
// connection's close event fires after the device has already re-bound.
// The registry must end up pointing at the new handle, never unbound.
func TestStaleUnbindIgnored(t *testing.T) {
	r := New()
	old := &fakeConn{id: "old"}
	fresh := &fakeConn{id: "fresh"}

	oldEpoch, _ := r.Bind("alice", "a1", old)
	_, replaced := r.Bind("alice", "a1", fresh)
	assert.Same(t, old, replaced)

	// The stale close arrives late.
	removed := r.Unbind("alice", "a1", oldEpoch)
	assert.False(t, removed)

	got, _, ok := r.Lookup("alice", "a1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestUnbindCurrentEpoch(t *testing.T) {
	r := New()
	c := &fakeConn{id: "c"}

	epoch, _ := r.Bind("alice", "a1", c)
	assert.True(t, r.Unbind("alice", "a1", epoch))

	_, _, ok := r.Lookup("alice", "a1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestEpochsAreDistinctAcrossKeys(t *testing.T) {
	r := New()
	e1, _ := r.Bind("alice", "a1", &fakeConn{})
	e2, _ := r.Bind("bob", "b1", &fakeConn{})
	assert.NotEqual(t, e1, e2)
}

func TestDrain(t *testing.T) {
	r := New()
	r.Bind("alice", "a1", &fakeConn{id: "a"})
	r.Bind("bob", "b1", &fakeConn{id: "b"})

	conns := r.Drain()
	assert.Len(t, conns, 2)
	assert.Zero(t, r.Len())
}

// TestConcurrentBindUnbind hammers one key from many goroutines. Each
// goroutine unbinds the epoch of its own bind, so only the globally
// last binder's unbind can succeed and the registry must end empty.
func TestConcurrentBindUnbind(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				epoch, _ := r.Bind("alice", "a1", &fakeConn{})
				r.Unbind("alice", "a1", epoch)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, r.Len())
}
