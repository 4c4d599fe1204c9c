package services

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"courier-relay/config"
	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/domain/identity"
	"courier-relay/internal/repository"
	relayerrors "courier-relay/pkg/errors"
)

// Handles never contain underscores; the conversation id joins two
// handles with one. Device ids additionally exclude colons, which
// separate the segments of queue and presence keys.
var (
	handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,31}$`)
	devicePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

type AuthService struct {
	identities repository.IdentityRepository
	directory  repository.DeviceDirectory
	jwtSecret  []byte
	tokenTTL   time.Duration
}

func NewAuthService(identities repository.IdentityRepository, directory repository.DeviceDirectory, cfg *config.Config) *AuthService {
	return &AuthService{
		identities: identities,
		directory:  directory,
		jwtSecret:  []byte(cfg.Auth.JWTSecret),
		tokenTTL:   time.Duration(cfg.Auth.JWTExpiryMin) * time.Minute,
	}
}

type RegisterInput struct {
	Handle       string
	Password     string
	DisplayName  string
	DeviceID     string
	PublicKeyPEM string
	DeviceLabel  string
}

type LoginInput struct {
	Handle   string
	Password string
	DeviceID string
	// Optional: present registers or rotates the device key, absent
	// requires the device to be registered already.
	PublicKeyPEM string
	DeviceLabel  string
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	Identity  IdentityInfo `json:"identity"`
	Device    DeviceInfo   `json:"device"`
}

type IdentityInfo struct {
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type DeviceInfo struct {
	DeviceID     string    `json:"device_id"`
	Label        string    `json:"label,omitempty"`
	Fingerprint  string    `json:"fingerprint"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AccessClaims struct {
	Identity string `json:"sub"`
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResponse, error) {
	if err := validateRegister(in); err != nil {
		return AuthResponse{}, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return AuthResponse{}, err
	}

	ident := &identity.Identity{
		Handle:       in.Handle,
		PasswordHash: hash,
		DisplayName:  in.DisplayName,
		CreatedAt:    time.Now(),
	}
	if err := s.identities.CreateIdentity(ctx, ident); err != nil {
		return AuthResponse{}, err
	}

	device, err := s.registerDevice(ctx, in.Handle, in.DeviceID, in.PublicKeyPEM, in.DeviceLabel)
	if err != nil {
		return AuthResponse{}, err
	}

	token, expiresIn, err := s.newAccessToken(in.Handle, in.DeviceID)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		Identity:  toIdentityInfo(*ident),
		Device:    device,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResponse, error) {
	if in.Handle == "" || in.Password == "" || in.DeviceID == "" {
		return AuthResponse{}, relayerrors.ErrInvalidInput
	}

	ident, err := s.identities.GetIdentity(ctx, in.Handle)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := comparePassword(ident.PasswordHash, in.Password); err != nil {
		return AuthResponse{}, relayerrors.ErrUnauthorized
	}

	device, err := s.ensureDevice(ctx, in)
	if err != nil {
		return AuthResponse{}, err
	}

	token, expiresIn, err := s.newAccessToken(in.Handle, in.DeviceID)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		Identity:  toIdentityInfo(ident),
		Device:    device,
	}, nil
}

// VerifyToken resolves a bearer token to the identity it was issued
// for. This is the auth collaborator the message router consumes.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (string, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.Identity, nil
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, relayerrors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, relayerrors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, relayerrors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, relayerrors.ErrUnauthorized
	}

	return *claims, nil
}

// registerDevice validates and upserts a device key. Re-registering an
// existing device id rotates its key.
func (s *AuthService) registerDevice(ctx context.Context, handle, deviceID, publicKeyPEM, label string) (DeviceInfo, error) {
	if _, err := envelope.ParsePublicKey(publicKeyPEM); err != nil {
		return DeviceInfo{}, relayerrors.ErrInvalidInput
	}

	device := &identity.Device{
		Identity:     handle,
		DeviceID:     deviceID,
		PublicKeyPEM: publicKeyPEM,
		Label:        label,
	}
	if err := s.directory.RegisterDevice(ctx, device); err != nil {
		return DeviceInfo{}, err
	}
	return toDeviceInfo(*device), nil
}

func (s *AuthService) ensureDevice(ctx context.Context, in LoginInput) (DeviceInfo, error) {
	if !devicePattern.MatchString(in.DeviceID) {
		return DeviceInfo{}, relayerrors.ErrInvalidInput
	}
	if in.PublicKeyPEM != "" {
		return s.registerDevice(ctx, in.Handle, in.DeviceID, in.PublicKeyPEM, in.DeviceLabel)
	}

	devices, err := s.directory.DevicesFor(ctx, in.Handle)
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.DeviceID == in.DeviceID {
			return toDeviceInfo(d), nil
		}
	}
	return DeviceInfo{}, relayerrors.ErrDeviceNotFound
}

func (s *AuthService) newAccessToken(handle, deviceID string) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	claims := AccessClaims{
		Identity: handle,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.tokenTTL.Seconds()), nil
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, relayerrors.ErrInvalidInput):
		return 400
	case errors.Is(err, relayerrors.ErrUnauthorized):
		return 401
	case errors.Is(err, relayerrors.ErrForbidden):
		return 403
	case errors.Is(err, relayerrors.ErrNotFound),
		errors.Is(err, relayerrors.ErrRecipientNotFound),
		errors.Is(err, relayerrors.ErrDeviceNotFound):
		return 404
	case errors.Is(err, relayerrors.ErrAlreadyExists), errors.Is(err, relayerrors.ErrConflict):
		return 409
	case errors.Is(err, relayerrors.ErrTooLarge):
		return 413
	case errors.Is(err, relayerrors.ErrRateLimited):
		return 429
	case errors.Is(err, relayerrors.ErrQueueFull), errors.Is(err, relayerrors.ErrServiceUnavailable):
		return 503
	default:
		return 500
	}
}

type ctxKey string

var identityKey ctxKey = "identity"
var deviceKey ctxKey = "device_id"

func WithIdentityContext(ctx context.Context, handle, deviceID string) context.Context {
	ctx = context.WithValue(ctx, identityKey, handle)
	if deviceID != "" {
		ctx = context.WithValue(ctx, deviceKey, deviceID)
	}
	return ctx
}

func IdentityFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(identityKey)
	if value == nil {
		return "", false
	}
	handle, ok := value.(string)
	return handle, ok
}

func DeviceIDFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(deviceKey)
	if value == nil {
		return "", false
	}
	deviceID, ok := value.(string)
	return deviceID, ok
}

func validateRegister(in RegisterInput) error {
	if !handlePattern.MatchString(in.Handle) {
		return relayerrors.ErrInvalidInput
	}
	if len(in.Password) < 8 {
		return relayerrors.ErrInvalidInput
	}
	if in.DisplayName == "" {
		return relayerrors.ErrInvalidInput
	}
	if !devicePattern.MatchString(in.DeviceID) {
		return relayerrors.ErrInvalidInput
	}
	if in.PublicKeyPEM == "" {
		return relayerrors.ErrInvalidInput
	}
	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func toIdentityInfo(ident identity.Identity) IdentityInfo {
	return IdentityInfo{
		Handle:      ident.Handle,
		DisplayName: ident.DisplayName,
		CreatedAt:   ident.CreatedAt,
	}
}

func toDeviceInfo(d identity.Device) DeviceInfo {
	return DeviceInfo{
		DeviceID:     d.DeviceID,
		Label:        d.Label,
		Fingerprint:  envelope.Fingerprint(d.PublicKeyPEM),
		RegisteredAt: d.RegisteredAt,
	}
}
