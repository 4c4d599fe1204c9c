package httpdto

// DeviceDTO represents a registered device in API responses, without
// the public key.
type DeviceDTO struct {
	DeviceID     string `json:"device_id"`
	Label        string `json:"label,omitempty"`
	Fingerprint  string `json:"fingerprint"`
	RegisteredAt string `json:"registered_at"`
}

// PublicDeviceDTO is a device as peers see it when looking up keys
// before encrypting.
type PublicDeviceDTO struct {
	DeviceID     string `json:"device_id"`
	Label        string `json:"label,omitempty"`
	PublicKeyPEM string `json:"public_key_pem"`
	Fingerprint  string `json:"fingerprint"`
	RegisteredAt string `json:"registered_at"`
}

// DevicesResponse is returned when listing an identity's devices.
type DevicesResponse struct {
	Identity string            `json:"identity"`
	Devices  []PublicDeviceDTO `json:"devices"`
}

// PresenceDTO represents one device's connection state.
type PresenceDTO struct {
	DeviceID    string `json:"device_id"`
	ConnectedAt string `json:"connected_at"`
	LastSeen    string `json:"last_seen"`
}

// PresenceResponse is returned when querying which of an identity's
// devices are online. Advisory only.
type PresenceResponse struct {
	Identity string        `json:"identity"`
	Online   []PresenceDTO `json:"online"`
}
