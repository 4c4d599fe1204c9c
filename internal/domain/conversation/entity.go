package conversation

import (
	"strings"
	"time"

	"courier-relay/internal/domain/envelope"
)

// Record represents one row of the conversation_records table: one
// logical message, stored in its multi-recipient envelope form so any
// recipient device can decrypt it later. Seq is assigned by the store
// and carries the append order.
type Record struct {
	Seq       int64
	Sender    string
	Recipient string
	Envelope  envelope.Envelope
	CreatedAt time.Time
}

// ID returns the conversation identifier for two identities: the pair
// order-normalized by sorting, joined with an underscore, so both
// participants resolve to the same log (alice_bob, never bob_alice).
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Participants splits a conversation id back into its two identities.
func Participants(conversationID string) (string, string, bool) {
	a, b, ok := strings.Cut(conversationID, "_")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// Involves reports whether the identity is one of the conversation's
// two participants.
func Involves(conversationID, identity string) bool {
	a, b, ok := Participants(conversationID)
	return ok && (a == identity || b == identity)
}
