package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-relay/internal/domain/identity"
	relayerrors "courier-relay/pkg/errors"
)

// fakeCache counts hits and can be forced to fail, standing in for the
// Redis-backed cache.
type fakeCache struct {
	entries map[string][]identity.Device
	gets    int
	sets    int
	broken  bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]identity.Device)}
}

func (f *fakeCache) GetDevices(ctx context.Context, handle string) ([]identity.Device, bool, error) {
	f.gets++
	if f.broken {
		return nil, false, relayerrors.ErrServiceUnavailable
	}
	devices, ok := f.entries[handle]
	return devices, ok, nil
}

func (f *fakeCache) SetDevices(ctx context.Context, handle string, devices []identity.Device) error {
	f.sets++
	if f.broken {
		return relayerrors.ErrServiceUnavailable
	}
	f.entries[handle] = devices
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, handle string) error {
	if f.broken {
		return relayerrors.ErrServiceUnavailable
	}
	delete(f.entries, handle)
	return nil
}

func TestCachedDirectoryReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryDirectory()
	cache := newFakeCache()
	dir := NewCachedDirectory(inner, cache)

	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "phone", PublicKeyPEM: "pem-phone",
	}))

	// First read populates the cache, the second is served from it.
	devices, err := dir.DevicesFor(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 1, cache.sets)

	cached, ok := cache.entries["bob"]
	require.True(t, ok)
	assert.Equal(t, devices, cached)

	_, err = dir.DevicesFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "cache hit must not re-populate")

	keys, err := dir.PublicKeysFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "pem-phone"}, keys)

	exists, err := dir.DeviceExists(ctx, "bob", "phone")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCachedDirectoryInvalidatesOnRegister(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryDirectory()
	cache := newFakeCache()
	dir := NewCachedDirectory(inner, cache)

	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "phone", PublicKeyPEM: "pem-old",
	}))
	_, err := dir.DevicesFor(ctx, "bob")
	require.NoError(t, err)

	// Rotation drops the entry so the stale key is never served.
	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "phone", PublicKeyPEM: "pem-new",
	}))
	_, ok := cache.entries["bob"]
	assert.False(t, ok)

	keys, err := dir.PublicKeysFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "pem-new", keys["phone"])
}

func TestCachedDirectorySurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryDirectory()
	cache := newFakeCache()
	cache.broken = true
	dir := NewCachedDirectory(inner, cache)

	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "phone", PublicKeyPEM: "pem-phone",
	}))

	// Every cache call fails; lookups still come back from the inner
	// directory.
	devices, err := dir.DevicesFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	exists, err := dir.DeviceExists(ctx, "bob", "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}
