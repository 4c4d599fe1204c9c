package repository

import (
	"context"

	"courier-relay/internal/domain/identity"
	relayerrors "courier-relay/pkg/errors"
)

type PostgresDeviceDirectory struct {
	db DB
}

func NewDeviceDirectory(db DB) DeviceDirectory {
	return &PostgresDeviceDirectory{db: db}
}

// RegisterDevice inserts the device or, when the (identity, device_id)
// pair already exists, overwrites key and label. Callers treat an
// overwrite as key rotation, never as an identity change.
func (r *PostgresDeviceDirectory) RegisterDevice(ctx context.Context, d *identity.Device) error {
	const q = `
		INSERT INTO devices (identity, device_id, public_key_pem, label, registered_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (identity, device_id)
		DO UPDATE SET public_key_pem = EXCLUDED.public_key_pem, label = EXCLUDED.label
		RETURNING registered_at`
	return r.db.QueryRow(ctx, q, d.Identity, d.DeviceID, d.PublicKeyPEM, d.Label).
		Scan(&d.RegisteredAt)
}

func (r *PostgresDeviceDirectory) DeviceExists(ctx context.Context, handle, deviceID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM devices WHERE identity = $1 AND device_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, q, handle, deviceID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresDeviceDirectory) PublicKeysFor(ctx context.Context, handle string) (map[string]string, error) {
	const q = `SELECT device_id, public_key_pem FROM devices WHERE identity = $1`
	rows, err := r.db.Query(ctx, q, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var deviceID, pemKey string
		if err := rows.Scan(&deviceID, &pemKey); err != nil {
			return nil, err
		}
		keys[deviceID] = pemKey
	}
	return keys, rows.Err()
}

func (r *PostgresDeviceDirectory) DevicesFor(ctx context.Context, handle string) ([]identity.Device, error) {
	const q = `
		SELECT identity, device_id, public_key_pem, label, registered_at
		FROM devices
		WHERE identity = $1
		ORDER BY registered_at, device_id`
	rows, err := r.db.Query(ctx, q, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []identity.Device
	for rows.Next() {
		var d identity.Device
		if err := rows.Scan(&d.Identity, &d.DeviceID, &d.PublicKeyPEM, &d.Label, &d.RegisteredAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

type PostgresIdentityRepository struct {
	db DB
}

func NewIdentityRepository(db DB) IdentityRepository {
	return &PostgresIdentityRepository{db: db}
}

func (r *PostgresIdentityRepository) CreateIdentity(ctx context.Context, ident *identity.Identity) error {
	const q = `
		INSERT INTO identities (handle, password_hash, display_name, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING created_at`
	err := r.db.QueryRow(ctx, q, ident.Handle, ident.PasswordHash, ident.DisplayName).
		Scan(&ident.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return relayerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresIdentityRepository) GetIdentity(ctx context.Context, handle string) (identity.Identity, error) {
	const q = `SELECT handle, password_hash, display_name, created_at FROM identities WHERE handle = $1`
	var ident identity.Identity
	err := r.db.QueryRow(ctx, q, handle).
		Scan(&ident.Handle, &ident.PasswordHash, &ident.DisplayName, &ident.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return identity.Identity{}, relayerrors.ErrNotFound
		}
		return identity.Identity{}, err
	}
	return ident, nil
}
