package services

import (
	"context"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/repository"
	relayerrors "courier-relay/pkg/errors"
)

// ConversationService reads the append-only conversation log for the
// REST surface. Writes only ever happen through the message router.
type ConversationService struct {
	store repository.ConversationStore
}

func NewConversationService(store repository.ConversationStore) *ConversationService {
	return &ConversationService{store: store}
}

// ConversationInfo names one conversation from the caller's side.
type ConversationInfo struct {
	ConversationID string `json:"conversation_id"`
	Peer           string `json:"peer"`
}

func (s *ConversationService) List(ctx context.Context, handle string) ([]ConversationInfo, error) {
	ids, err := s.store.ConversationIDsInvolving(ctx, handle)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationInfo, 0, len(ids))
	for _, id := range ids {
		a, b, ok := conversation.Participants(id)
		if !ok {
			continue
		}
		peer := a
		if peer == handle {
			peer = b
		}
		out = append(out, ConversationInfo{ConversationID: id, Peer: peer})
	}
	return out, nil
}

// History returns the caller's conversation with peer, oldest first.
// The id derivation doubles as authorization: a caller can only ever
// name conversations it participates in.
func (s *ConversationService) History(ctx context.Context, handle, peer string) ([]conversation.Record, error) {
	if peer == "" {
		return nil, relayerrors.ErrInvalidInput
	}
	return s.store.History(ctx, conversation.ID(handle, peer))
}
