package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-relay/internal/router"
	relayerrors "courier-relay/pkg/errors"
)

func TestDecodeEventDelivery(t *testing.T) {
	raw := []byte(`{"type":"message.payload","alg":"RSA-OAEP-256+A256GCM",` +
		`"from":{"identity":"alice","device":"a1"},` +
		`"to":{"identity":"bob","device":"b1"},` +
		`"wrappedKey":"d2s=","iv":"aXY=","ciphertext":"Y3Q=","timestamp":1700000000000}`)

	ev, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventDelivery, ev.Type)
	require.NotNil(t, ev.Envelope)
	assert.Equal(t, "alice", ev.Envelope.From.Identity)
	assert.Equal(t, "b1", ev.Envelope.To.Device)
	assert.Equal(t, "d2s=", ev.Envelope.WrappedKey)
}

func TestDecodeEventReceiptAndError(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"type":"message-sent","to":"bob","deliveredTo":2}`))
	require.NoError(t, err)
	assert.Equal(t, EventReceipt, ev.Type)
	assert.Equal(t, "bob", ev.To)
	assert.Equal(t, 2, ev.DeliveredTo)

	ev, err = decodeEvent([]byte(`{"type":"error","error":"rate-limited"}`))
	require.NoError(t, err)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, router.CodeRateLimited, ev.Code)

	_, err = decodeEvent([]byte(`{not json`))
	require.Error(t, err)
}

func TestProtocolErrorCarriesSentinels(t *testing.T) {
	require.ErrorIs(t, ProtocolError(router.CodeAuthFailed), relayerrors.ErrUnauthorized)
	require.ErrorIs(t, ProtocolError(router.CodeAlreadyIdentified), relayerrors.ErrAlreadyIdentified)
	require.ErrorIs(t, ProtocolError(router.CodeNotIdentified), relayerrors.ErrNotIdentified)
	require.ErrorIs(t, ProtocolError(router.CodeBackendFailure), relayerrors.ErrServiceUnavailable)

	err := ProtocolError("some-future-code")
	require.Error(t, err)
	assert.NotErrorIs(t, err, relayerrors.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "some-future-code")
}
