package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"courier-relay/internal/domain/identity"
)

// Directory cache key pattern:
// - directory:{identity} - JSON device list, 5m TTL, dropped on key rotation

// DirectoryCache keeps an identity's device rows in Redis. Directory
// reads sit on the send path (every message resolves the recipient's
// device keys before fan-out), so steady-state sends skip Postgres.
// Registration and rotation invalidate the entry; a stale read between
// the write and the invalidation at worst wraps for a key the device
// just retired, which the next lookup corrects.
type DirectoryCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDirectoryCache(client *goredis.Client, ttl time.Duration) *DirectoryCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &DirectoryCache{client: client, ttl: ttl}
}

func directoryKey(handle string) string {
	return fmt.Sprintf("directory:%s", handle)
}

// GetDevices returns the cached device list for an identity. The
// second return reports whether the entry was present; a miss is not
// an error.
func (c *DirectoryCache) GetDevices(ctx context.Context, handle string) ([]identity.Device, bool, error) {
	data, err := c.client.Get(ctx, directoryKey(handle)).Result()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var devices []identity.Device
	if err := json.Unmarshal([]byte(data), &devices); err != nil {
		return nil, false, err
	}
	return devices, true, nil
}

// SetDevices caches an identity's device list. An empty list is cached
// too; unknown recipients are a lookup result worth remembering.
func (c *DirectoryCache) SetDevices(ctx context.Context, handle string, devices []identity.Device) error {
	data, err := json.Marshal(devices)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, directoryKey(handle), data, c.ttl).Err()
}

// Invalidate drops an identity's cache entry.
func (c *DirectoryCache) Invalidate(ctx context.Context, handle string) error {
	return c.client.Del(ctx, directoryKey(handle)).Err()
}
