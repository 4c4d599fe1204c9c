package router

import "courier-relay/internal/domain/envelope"

// Frame types exchanged over a relay connection.
const (
	TypeIdentify   = "identify"
	TypeIdentified = "identified"
	TypeMessage    = "message"
	TypeReceipt    = "message-sent"
	TypeDelivery   = "message.payload"
	TypeError      = "error"
)

// Codes carried in an error event's "error" field.
const (
	CodeAuthFailed        = "auth-failed"
	CodeUnknownDevice     = "unknown-device"
	CodeAlreadyIdentified = "already-identified"
	CodeNotIdentified     = "not-identified"
	CodeRecipientNotFound = "recipient-not-found"
	CodeDeliveryFailed    = "delivery-failed"
	CodeBackendFailure    = "backend-failure"
	CodeRateLimited       = "rate-limited"
)

// Frame is the probe every inbound frame is decoded into before the
// type-specific decode.
type Frame struct {
	Type string `json:"type"`
}

type IdentifyFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
}

type IdentifiedFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type MessageFrame struct {
	Type       string            `json:"type"`
	ToIdentity string            `json:"toIdentity"`
	Payload    envelope.Envelope `json:"payload"`
}

type ReceiptFrame struct {
	Type        string `json:"type"`
	To          string `json:"to"`
	DeliveredTo int    `json:"deliveredTo"`
}

// DeliveryFrame is the envelope itself flattened onto the wire with a
// type tag, so receivers decode the envelope fields at the top level.
type DeliveryFrame struct {
	Type string `json:"type"`
	envelope.Envelope
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
