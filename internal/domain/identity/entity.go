package identity

import (
	"time"
)

// Identity represents the identities table
type Identity struct {
	Handle       string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// Device represents the devices table
type Device struct {
	Identity     string
	DeviceID     string
	PublicKeyPEM string
	Label        string
	RegisteredAt time.Time

	// Unique constraint handled by index in SQL: UNIQUE(identity, device_id)
}
