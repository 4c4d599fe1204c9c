package services

import (
	"context"
	"time"

	"courier-relay/internal/domain/envelope"
	redisx "courier-relay/internal/redis"
	"courier-relay/internal/repository"
	relayerrors "courier-relay/pkg/errors"
)

// DirectoryService serves the public half of the device directory:
// the key material peers need before they can seal anything, plus
// advisory presence.
type DirectoryService struct {
	directory repository.DeviceDirectory
	presence  *redisx.PresenceStore
}

func NewDirectoryService(directory repository.DeviceDirectory, presence *redisx.PresenceStore) *DirectoryService {
	return &DirectoryService{directory: directory, presence: presence}
}

// PublicDevice is a device as peers see it, public key included.
type PublicDevice struct {
	DeviceID     string    `json:"device_id"`
	Label        string    `json:"label,omitempty"`
	PublicKeyPEM string    `json:"public_key_pem"`
	Fingerprint  string    `json:"fingerprint"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (s *DirectoryService) Devices(ctx context.Context, handle string) ([]PublicDevice, error) {
	devices, err := s.directory.DevicesFor(ctx, handle)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, relayerrors.ErrNotFound
	}

	out := make([]PublicDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, PublicDevice{
			DeviceID:     d.DeviceID,
			Label:        d.Label,
			PublicKeyPEM: d.PublicKeyPEM,
			Fingerprint:  envelope.Fingerprint(d.PublicKeyPEM),
			RegisteredAt: d.RegisteredAt,
		})
	}
	return out, nil
}

// Presence lists the devices currently reporting themselves online.
// Advisory only; messages to a device listed here may still end up
// queued, and vice versa.
func (s *DirectoryService) Presence(ctx context.Context, handle string) ([]redisx.DevicePresence, error) {
	if s.presence == nil {
		return []redisx.DevicePresence{}, nil
	}
	return s.presence.DevicesOnline(ctx, handle)
}
