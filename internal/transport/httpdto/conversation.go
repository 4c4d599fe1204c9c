package httpdto

import "courier-relay/internal/domain/envelope"

// ConversationDTO names one conversation from the caller's side.
type ConversationDTO struct {
	ConversationID string `json:"conversation_id"`
	Peer           string `json:"peer"`
}

// ConversationsResponse is returned when listing conversations.
type ConversationsResponse struct {
	Conversations []ConversationDTO `json:"conversations"`
}

// RecordDTO is one stored message in history responses. The envelope
// comes back exactly as the relay stored it; only the holder of a
// recipient device key can open it.
type RecordDTO struct {
	Seq       int64             `json:"seq"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Envelope  envelope.Envelope `json:"envelope"`
	CreatedAt string            `json:"created_at"`
}

// HistoryResponse is returned for a conversation history fetch.
type HistoryResponse struct {
	ConversationID string      `json:"conversation_id"`
	Records        []RecordDTO `json:"records"`
}
