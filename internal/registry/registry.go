package registry

import (
	"sync"
)

// Conn is the transport write-half a registry entry owns. Push hands a
// frame to the connection's writer without blocking; Close is
// idempotent and safe to call from any goroutine.
type Conn interface {
	Push(frame []byte) error
	Close()
}

type entry struct {
	conn  Conn
	epoch uint64
}

// Registry is one process's authoritative view of which devices are
// reachable right now. Each bind is stamped with a monotonically
// increasing epoch; unbind is a compare-and-remove on that epoch, so a
// stale disconnect can never evict a newer connection for the same
// device.
//
// Every method holds the lock only for the map operation itself.
// Closing a replaced connection is the caller's job, outside the lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	epoch   uint64
}

func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func key(handle, deviceID string) string {
	return handle + "/" + deviceID
}

// Bind installs conn as the live connection for (handle, deviceID) and
// returns its epoch. If a prior connection held the slot it is
// returned so the caller can close it; the registry never does I/O.
func (r *Registry) Bind(handle, deviceID string, conn Conn) (uint64, Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(handle, deviceID)
	var replaced Conn
	if prev, ok := r.entries[k]; ok {
		replaced = prev.conn
	}
	r.epoch++
	r.entries[k] = entry{conn: conn, epoch: r.epoch}
	return r.epoch, replaced
}

// Unbind removes the entry only if epoch still matches the current
// binding. Reports whether the entry was removed; a false return means
// a newer connection owns the slot and must be left alone.
func (r *Registry) Unbind(handle, deviceID string, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(handle, deviceID)
	cur, ok := r.entries[k]
	if !ok || cur.epoch != epoch {
		return false
	}
	delete(r.entries, k)
	return true
}

// Lookup returns the live connection for (handle, deviceID), if any.
func (r *Registry) Lookup(handle, deviceID string) (Conn, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key(handle, deviceID)]
	if !ok {
		return nil, 0, false
	}
	return e.conn, e.epoch, true
}

// Len reports the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Drain removes every binding and returns the connections so the
// caller can close them during shutdown.
func (r *Registry) Drain() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]Conn, 0, len(r.entries))
	for _, e := range r.entries {
		conns = append(conns, e.conn)
	}
	r.entries = make(map[string]entry)
	return conns
}
