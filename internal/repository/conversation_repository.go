package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/domain/envelope"
)

type PostgresConversationStore struct {
	db DB
}

func NewConversationStore(db DB) ConversationStore {
	return &PostgresConversationStore{db: db}
}

// Append inserts one record; the bigserial seq column captures append
// order, which History must reproduce exactly.
func (r *PostgresConversationStore) Append(ctx context.Context, conversationID string, rec *conversation.Record) error {
	payload, err := json.Marshal(rec.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	const q = `
		INSERT INTO conversation_records (conversation_id, sender, recipient, envelope, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING seq, created_at`
	return r.db.QueryRow(ctx, q, conversationID, rec.Sender, rec.Recipient, payload).
		Scan(&rec.Seq, &rec.CreatedAt)
}

func (r *PostgresConversationStore) History(ctx context.Context, conversationID string) ([]conversation.Record, error) {
	const q = `
		SELECT seq, sender, recipient, envelope, created_at
		FROM conversation_records
		WHERE conversation_id = $1
		ORDER BY seq`
	rows, err := r.db.Query(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []conversation.Record
	for rows.Next() {
		var rec conversation.Record
		var payload []byte
		if err := rows.Scan(&rec.Seq, &rec.Sender, &rec.Recipient, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		var env envelope.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope seq %d: %w", rec.Seq, err)
		}
		rec.Envelope = env
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresConversationStore) ConversationIDsInvolving(ctx context.Context, handle string) ([]string, error) {
	const q = `
		SELECT DISTINCT conversation_id
		FROM conversation_records
		WHERE sender = $1 OR recipient = $1
		ORDER BY conversation_id`
	rows, err := r.db.Query(ctx, q, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
