package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/domain/identity"
	relayerrors "courier-relay/pkg/errors"
)

// MemoryDirectory is the in-process DeviceDirectory used by tests and
// single-node runs. Semantics match the Postgres implementation,
// including registered_at surviving a key rotation.
type MemoryDirectory struct {
	mu      sync.RWMutex
	devices map[string]map[string]identity.Device
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{devices: make(map[string]map[string]identity.Device)}
}

func (m *MemoryDirectory) RegisterDevice(ctx context.Context, d *identity.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	devs := m.devices[d.Identity]
	if devs == nil {
		devs = make(map[string]identity.Device)
		m.devices[d.Identity] = devs
	}
	if existing, ok := devs[d.DeviceID]; ok {
		d.RegisteredAt = existing.RegisteredAt
	} else {
		d.RegisteredAt = time.Now()
	}
	devs[d.DeviceID] = *d
	return nil
}

func (m *MemoryDirectory) DeviceExists(ctx context.Context, handle, deviceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[handle][deviceID]
	return ok, nil
}

func (m *MemoryDirectory) PublicKeysFor(ctx context.Context, handle string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make(map[string]string, len(m.devices[handle]))
	for deviceID, d := range m.devices[handle] {
		keys[deviceID] = d.PublicKeyPEM
	}
	return keys, nil
}

func (m *MemoryDirectory) DevicesFor(ctx context.Context, handle string) ([]identity.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]identity.Device, 0, len(m.devices[handle]))
	for _, d := range m.devices[handle] {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RegisteredAt.Equal(devices[j].RegisteredAt) {
			return devices[i].DeviceID < devices[j].DeviceID
		}
		return devices[i].RegisteredAt.Before(devices[j].RegisteredAt)
	})
	return devices, nil
}

type MemoryIdentityRepository struct {
	mu         sync.RWMutex
	identities map[string]identity.Identity
}

func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{identities: make(map[string]identity.Identity)}
}

func (m *MemoryIdentityRepository) CreateIdentity(ctx context.Context, ident *identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[ident.Handle]; ok {
		return relayerrors.ErrAlreadyExists
	}
	ident.CreatedAt = time.Now()
	m.identities[ident.Handle] = *ident
	return nil
}

func (m *MemoryIdentityRepository) GetIdentity(ctx context.Context, handle string) (identity.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.identities[handle]
	if !ok {
		return identity.Identity{}, relayerrors.ErrNotFound
	}
	return ident, nil
}

// MemoryConversationStore mirrors the Postgres store: a process-wide
// seq counter stands in for the bigserial column.
type MemoryConversationStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string][]conversation.Record
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{records: make(map[string][]conversation.Record)}
}

func (m *MemoryConversationStore) Append(ctx context.Context, conversationID string, rec *conversation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	rec.Seq = m.seq
	rec.CreatedAt = time.Now()
	m.records[conversationID] = append(m.records[conversationID], *rec)
	return nil
}

func (m *MemoryConversationStore) History(ctx context.Context, conversationID string) ([]conversation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.records[conversationID]
	out := make([]conversation.Record, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MemoryConversationStore) ConversationIDsInvolving(ctx context.Context, handle string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for conversationID, recs := range m.records {
		for _, rec := range recs {
			if rec.Sender == handle || rec.Recipient == handle {
				ids = append(ids, conversationID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
