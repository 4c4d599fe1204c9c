package httpdto

// RegisterRequest is used for POST /v1/auth/register
type RegisterRequest struct {
	Handle       string `json:"handle" binding:"required"`
	Password     string `json:"password" binding:"required"`
	DisplayName  string `json:"display_name" binding:"required"`
	DeviceID     string `json:"device_id" binding:"required"`
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
	DeviceLabel  string `json:"device_label,omitempty"`
}

// LoginRequest is used for POST /v1/auth/login. The public key is
// optional: when present the device is registered (or its key
// rotated), when absent the device must already be known.
type LoginRequest struct {
	Handle       string `json:"handle" binding:"required"`
	Password     string `json:"password" binding:"required"`
	DeviceID     string `json:"device_id" binding:"required"`
	PublicKeyPEM string `json:"public_key_pem,omitempty"`
	DeviceLabel  string `json:"device_label,omitempty"`
}

// AuthResponse is returned after successful registration or login.
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expires_in"`
	Identity  IdentityDTO `json:"identity"`
	Device    DeviceDTO   `json:"device"`
}

// IdentityDTO represents an identity in API responses.
type IdentityDTO struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}
