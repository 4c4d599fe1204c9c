package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Presence key pattern:
// - presence:{identity} - hash of device id -> JSON DevicePresence, TTL-bound

// DevicePresence is the advisory "last known reachable" record for one
// device. The connection registry stays the in-process truth; presence
// only feeds the REST read surface across relay instances.
type DevicePresence struct {
	Identity    string    `json:"identity"`
	DeviceID    string    `json:"deviceId"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func presenceKey(handle string) string {
	return fmt.Sprintf("presence:%s", handle)
}

// SetOnline records a device connection.
func (p *PresenceStore) SetOnline(ctx context.Context, handle, deviceID string) error {
	now := time.Now()
	data, err := json.Marshal(DevicePresence{
		Identity:    handle,
		DeviceID:    deviceID,
		ConnectedAt: now,
		LastSeen:    now,
	})
	if err != nil {
		return err
	}

	key := presenceKey(handle)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, deviceID, data)
	pipe.Expire(ctx, key, p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Heartbeat refreshes a device's last-seen time and the hash TTL.
// Driven by the transport's pong handler.
func (p *PresenceStore) Heartbeat(ctx context.Context, handle, deviceID string) error {
	key := presenceKey(handle)
	raw, err := p.client.HGet(ctx, key, deviceID).Result()
	if err == goredis.Nil {
		return p.SetOnline(ctx, handle, deviceID)
	}
	if err != nil {
		return err
	}

	var pres DevicePresence
	if err := json.Unmarshal([]byte(raw), &pres); err != nil {
		return p.SetOnline(ctx, handle, deviceID)
	}
	pres.LastSeen = time.Now()

	data, err := json.Marshal(pres)
	if err != nil {
		return err
	}
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, deviceID, data)
	pipe.Expire(ctx, key, p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// SetOffline removes a device's presence record.
func (p *PresenceStore) SetOffline(ctx context.Context, handle, deviceID string) error {
	return p.client.HDel(ctx, presenceKey(handle), deviceID).Err()
}

// DevicesOnline lists the devices with a live presence record for an
// identity.
func (p *PresenceStore) DevicesOnline(ctx context.Context, handle string) ([]DevicePresence, error) {
	raw, err := p.client.HGetAll(ctx, presenceKey(handle)).Result()
	if err != nil {
		return nil, err
	}

	devices := make([]DevicePresence, 0, len(raw))
	for _, item := range raw {
		var pres DevicePresence
		if err := json.Unmarshal([]byte(item), &pres); err != nil {
			continue
		}
		devices = append(devices, pres)
	}
	return devices, nil
}
