package repository

import (
	"context"

	"courier-relay/internal/domain/identity"
)

// DirectoryCache is the lookaside store CachedDirectory reads through.
// GetDevices reports presence separately so a cached empty list (an
// identity known to have no devices) stays distinguishable from a miss.
type DirectoryCache interface {
	GetDevices(ctx context.Context, handle string) ([]identity.Device, bool, error)
	SetDevices(ctx context.Context, handle string, devices []identity.Device) error
	Invalidate(ctx context.Context, handle string) error
}

// CachedDirectory wraps a DeviceDirectory with a read-through cache.
// The cache is advisory: any cache error degrades to a direct read,
// never to a failed lookup.
type CachedDirectory struct {
	inner DeviceDirectory
	cache DirectoryCache
}

func NewCachedDirectory(inner DeviceDirectory, cache DirectoryCache) *CachedDirectory {
	return &CachedDirectory{inner: inner, cache: cache}
}

func (d *CachedDirectory) RegisterDevice(ctx context.Context, dev *identity.Device) error {
	if err := d.inner.RegisterDevice(ctx, dev); err != nil {
		return err
	}
	// Drop instead of update; the authoritative timestamps come back on
	// the next read.
	_ = d.cache.Invalidate(ctx, dev.Identity)
	return nil
}

func (d *CachedDirectory) DevicesFor(ctx context.Context, handle string) ([]identity.Device, error) {
	if devices, ok, err := d.cache.GetDevices(ctx, handle); err == nil && ok {
		return devices, nil
	}

	devices, err := d.inner.DevicesFor(ctx, handle)
	if err != nil {
		return nil, err
	}
	_ = d.cache.SetDevices(ctx, handle, devices)
	return devices, nil
}

func (d *CachedDirectory) DeviceExists(ctx context.Context, handle, deviceID string) (bool, error) {
	devices, err := d.DevicesFor(ctx, handle)
	if err != nil {
		return false, err
	}
	for _, dev := range devices {
		if dev.DeviceID == deviceID {
			return true, nil
		}
	}
	return false, nil
}

func (d *CachedDirectory) PublicKeysFor(ctx context.Context, handle string) (map[string]string, error) {
	devices, err := d.DevicesFor(ctx, handle)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(devices))
	for _, dev := range devices {
		keys[dev.DeviceID] = dev.PublicKeyPEM
	}
	return keys, nil
}
