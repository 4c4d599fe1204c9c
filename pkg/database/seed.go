package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/domain/identity"
	"courier-relay/internal/repository"
	relayerrors "courier-relay/pkg/errors"

	"golang.org/x/crypto/bcrypt"
)

// SeedConfig holds configuration for development seeding.
type SeedConfig struct {
	Password    string
	Handles     []string
	DevicesEach int
}

// DefaultSeedConfig returns default seed configuration.
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Password:    "courier-dev",
		Handles:     []string{"alice", "bob", "carol"},
		DevicesEach: 2,
	}
}

// SeededIdentity pairs a created identity with the device keys minted
// for it. Private keys exist only in this result; the relay never
// stores them.
type SeededIdentity struct {
	Handle  string
	Devices []SeededDevice
}

type SeededDevice struct {
	DeviceID      string
	PrivateKeyPEM string
}

var deviceLabels = []string{"phone", "laptop", "tablet", "desktop"}

// Seed provisions development identities, each with freshly generated
// device keys. Identities that already exist are skipped.
func Seed(ctx context.Context, identities repository.IdentityRepository, directory repository.DeviceDirectory, cfg *SeedConfig) ([]SeededIdentity, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	var out []SeededIdentity
	for _, handle := range cfg.Handles {
		ident := identity.Identity{
			Handle:       handle,
			PasswordHash: string(hash),
			DisplayName:  strings.ToUpper(handle[:1]) + handle[1:],
		}
		if err := identities.CreateIdentity(ctx, &ident); err != nil {
			if errors.Is(err, relayerrors.ErrAlreadyExists) {
				log.Printf("identity %q already present, skipping", handle)
				continue
			}
			return nil, fmt.Errorf("create identity %s: %w", handle, err)
		}

		seeded := SeededIdentity{Handle: handle}
		for i := 0; i < cfg.DevicesEach; i++ {
			name := deviceLabels[i%len(deviceLabels)]
			dev, err := seedDevice(ctx, directory, handle, name)
			if err != nil {
				return nil, err
			}
			seeded.Devices = append(seeded.Devices, dev)
		}
		out = append(out, seeded)
	}
	return out, nil
}

func seedDevice(ctx context.Context, directory repository.DeviceDirectory, handle, name string) (SeededDevice, error) {
	priv, err := envelope.GenerateKeyPair()
	if err != nil {
		return SeededDevice{}, fmt.Errorf("generate key for %s/%s: %w", handle, name, err)
	}
	pubPEM, err := envelope.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return SeededDevice{}, fmt.Errorf("encode key for %s/%s: %w", handle, name, err)
	}
	privPEM, err := envelope.EncodePrivateKey(priv)
	if err != nil {
		return SeededDevice{}, fmt.Errorf("encode private key for %s/%s: %w", handle, name, err)
	}

	dev := identity.Device{
		Identity:     handle,
		DeviceID:     name,
		PublicKeyPEM: pubPEM,
		Label:        fmt.Sprintf("%s's %s", handle, name),
	}
	if err := directory.RegisterDevice(ctx, &dev); err != nil {
		return SeededDevice{}, fmt.Errorf("register device %s/%s: %w", handle, name, err)
	}
	return SeededDevice{DeviceID: name, PrivateKeyPEM: privPEM}, nil
}
