package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	relayerrors "courier-relay/pkg/errors"
)

// MaxAttachmentSize bounds one attachment blob. Attachments arrive
// already encrypted; the relay stores bytes it cannot read.
const MaxAttachmentSize = 16 * 1024 * 1024

// BlobStore is the storage backend for attachment blobs. PresignGet
// may return an empty URL when the backend cannot presign.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

type AttachmentService struct {
	store BlobStore
}

func NewAttachmentService(store BlobStore) *AttachmentService {
	return &AttachmentService{store: store}
}

type AttachmentInfo struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Size       int       `json:"size"`
	URL        string    `json:"url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Upload stores an opaque blob under the uploader's namespace. The id
// is an unguessable capability: whoever the uploader shares it with
// (inside an encrypted message) can fetch the blob.
func (s *AttachmentService) Upload(ctx context.Context, owner, contentType string, data []byte) (AttachmentInfo, error) {
	if len(data) == 0 {
		return AttachmentInfo{}, relayerrors.ErrInvalidInput
	}
	if len(data) > MaxAttachmentSize {
		return AttachmentInfo{}, relayerrors.ErrTooLarge
	}

	id := uuid.New().String()
	key := attachmentKey(owner, id)
	if err := s.store.Put(ctx, key, contentType, data); err != nil {
		return AttachmentInfo{}, err
	}

	url, err := s.store.PresignGet(ctx, key)
	if err != nil {
		// The blob is stored; the caller just falls back to the
		// download endpoint.
		url = ""
	}

	return AttachmentInfo{
		ID:         id,
		Key:        key,
		Size:       len(data),
		URL:        url,
		UploadedAt: time.Now(),
	}, nil
}

// Download fetches a blob by owner and id.
func (s *AttachmentService) Download(ctx context.Context, owner, id string) ([]byte, string, error) {
	if owner == "" || id == "" {
		return nil, "", relayerrors.ErrInvalidInput
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, "", relayerrors.ErrInvalidInput
	}
	return s.store.Get(ctx, attachmentKey(owner, id))
}

func attachmentKey(owner, id string) string {
	return fmt.Sprintf("attachments/%s/%s", owner, id)
}
