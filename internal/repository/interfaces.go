package repository

import (
	"context"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/domain/identity"
)

// DeviceDirectory maps identities to their registered devices and
// public keys. The router only reads it to resolve fan-out targets;
// registration goes through the auth surface.
type DeviceDirectory interface {
	RegisterDevice(ctx context.Context, d *identity.Device) error
	DeviceExists(ctx context.Context, handle, deviceID string) (bool, error)
	// PublicKeysFor returns deviceID -> PEM public key, empty when the
	// identity is unknown.
	PublicKeysFor(ctx context.Context, handle string) (map[string]string, error)
	DevicesFor(ctx context.Context, handle string) ([]identity.Device, error)
}

// IdentityRepository stores account rows for the auth service.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, ident *identity.Identity) error
	GetIdentity(ctx context.Context, handle string) (identity.Identity, error)
}

// ConversationStore is the append-only conversation log. Append
// assigns rec.Seq and rec.CreatedAt; History returns records in
// append order, oldest first.
type ConversationStore interface {
	Append(ctx context.Context, conversationID string, rec *conversation.Record) error
	History(ctx context.Context, conversationID string) ([]conversation.Record, error)
	ConversationIDsInvolving(ctx context.Context, handle string) ([]string, error)
}
