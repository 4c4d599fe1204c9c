package storage

import (
	"context"
	"sync"

	relayerrors "courier-relay/pkg/errors"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// Memory is an in-process blob store for tests and single-node runs
// without S3.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func (m *Memory) Put(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data:        append([]byte(nil), body...),
		contentType: contentType,
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", relayerrors.ErrNotFound
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

// PresignGet reports no URL; callers fall back to the download
// endpoint.
func (m *Memory) PresignGet(ctx context.Context, key string) (string, error) {
	return "", nil
}
