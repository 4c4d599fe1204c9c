package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/domain/identity"
	relayerrors "courier-relay/pkg/errors"
)

func TestMemoryDirectoryRegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "b1", PublicKeyPEM: "pem-b1", Label: "laptop",
	}))
	require.NoError(t, dir.RegisterDevice(ctx, &identity.Device{
		Identity: "bob", DeviceID: "b2", PublicKeyPEM: "pem-b2", Label: "phone",
	}))

	exists, err := dir.DeviceExists(ctx, "bob", "b1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = dir.DeviceExists(ctx, "bob", "b9")
	require.NoError(t, err)
	assert.False(t, exists)

	keys, err := dir.PublicKeysFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b1": "pem-b1", "b2": "pem-b2"}, keys)

	// Unknown identity resolves to an empty map, not an error.
	keys, err = dir.PublicKeysFor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryDirectoryKeyRotation(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	first := identity.Device{Identity: "bob", DeviceID: "b1", PublicKeyPEM: "pem-old", Label: "laptop"}
	require.NoError(t, dir.RegisterDevice(ctx, &first))

	rotated := identity.Device{Identity: "bob", DeviceID: "b1", PublicKeyPEM: "pem-new", Label: "laptop v2"}
	require.NoError(t, dir.RegisterDevice(ctx, &rotated))

	// Same device slot: the key rotates, registered_at stays.
	assert.Equal(t, first.RegisteredAt, rotated.RegisteredAt)

	devices, err := dir.DevicesFor(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "pem-new", devices[0].PublicKeyPEM)
	assert.Equal(t, "laptop v2", devices[0].Label)
}

func TestMemoryIdentityRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryIdentityRepository()

	require.NoError(t, repo.CreateIdentity(ctx, &identity.Identity{Handle: "alice", PasswordHash: "h", DisplayName: "Alice"}))

	err := repo.CreateIdentity(ctx, &identity.Identity{Handle: "alice"})
	assert.ErrorIs(t, err, relayerrors.ErrAlreadyExists)

	got, err := repo.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)

	_, err = repo.GetIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, relayerrors.ErrNotFound)
}

func TestMemoryConversationStoreAppendOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore()
	convID := conversation.ID("alice", "bob")

	for i, body := range []string{"one", "two", "three"} {
		rec := conversation.Record{
			Sender:    "alice",
			Recipient: "bob",
			Envelope:  envelope.Envelope{Alg: envelope.Alg, Ciphertext: body},
		}
		require.NoError(t, store.Append(ctx, convID, &rec))
		assert.Equal(t, int64(i+1), rec.Seq)
	}

	history, err := store.History(ctx, convID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Envelope.Ciphertext)
	assert.Equal(t, "two", history[1].Envelope.Ciphertext)
	assert.Equal(t, "three", history[2].Envelope.Ciphertext)

	// History without intervening appends is idempotent.
	again, err := store.History(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestMemoryConversationStoreInvolving(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConversationStore()

	ab := conversation.ID("alice", "bob")
	ac := conversation.ID("alice", "carol")
	require.NoError(t, store.Append(ctx, ab, &conversation.Record{Sender: "alice", Recipient: "bob"}))
	require.NoError(t, store.Append(ctx, ac, &conversation.Record{Sender: "carol", Recipient: "alice"}))

	ids, err := store.ConversationIDsInvolving(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{ab, ac}, ids)

	ids, err = store.ConversationIDsInvolving(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{ab}, ids)

	ids, err = store.ConversationIDsInvolving(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
