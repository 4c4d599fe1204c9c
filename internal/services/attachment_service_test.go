package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-relay/internal/storage"
	relayerrors "courier-relay/pkg/errors"
)

func TestAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewAttachmentService(storage.NewMemory())
	blob := []byte("sealed bytes the relay cannot read")

	info, err := svc.Upload(ctx, "alice", "application/octet-stream", blob)
	require.NoError(t, err)

	_, err = uuid.Parse(info.ID)
	require.NoError(t, err, "attachment ids are uuids")
	assert.True(t, strings.HasPrefix(info.Key, "attachments/alice/"))
	assert.Equal(t, len(blob), info.Size)
	assert.Empty(t, info.URL, "memory store does not presign")

	data, contentType, err := svc.Download(ctx, "alice", info.ID)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(blob, data))
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestAttachmentUploadLimits(t *testing.T) {
	ctx := context.Background()
	svc := NewAttachmentService(storage.NewMemory())

	_, err := svc.Upload(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, relayerrors.ErrInvalidInput)

	_, err = svc.Upload(ctx, "alice", "", make([]byte, MaxAttachmentSize+1))
	assert.ErrorIs(t, err, relayerrors.ErrTooLarge)

	// Exactly at the cap is still accepted.
	_, err = svc.Upload(ctx, "alice", "", make([]byte, MaxAttachmentSize))
	assert.NoError(t, err)
}

func TestAttachmentDownloadRejections(t *testing.T) {
	ctx := context.Background()
	svc := NewAttachmentService(storage.NewMemory())

	_, _, err := svc.Download(ctx, "", uuid.New().String())
	assert.ErrorIs(t, err, relayerrors.ErrInvalidInput)

	_, _, err = svc.Download(ctx, "alice", "../../etc/passwd")
	assert.ErrorIs(t, err, relayerrors.ErrInvalidInput)

	_, _, err = svc.Download(ctx, "alice", uuid.New().String())
	assert.ErrorIs(t, err, relayerrors.ErrNotFound)
}
