package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Alg tags the only scheme the codec speaks: a fresh AES-256 content
// key per message, AES-GCM over the plaintext, the content key wrapped
// with RSA-OAEP/SHA-256 per recipient device.
const Alg = "RSA-OAEP-256+A256GCM"

const (
	contentKeySize = 32
	nonceSize      = 12
	tagSize        = 16
)

var (
	// ErrKeyUnwrap means the wrapped content key could not be recovered
	// (wrong private key, or a corrupted wrap).
	ErrKeyUnwrap = errors.New("envelope: key unwrap failed")
	// ErrAuthentication means GCM tag verification failed: the
	// ciphertext was tampered with or encrypted to a different key.
	ErrAuthentication = errors.New("envelope: ciphertext authentication failed")
	// ErrAlgorithm means the envelope's alg tag is not one this codec speaks.
	ErrAlgorithm = errors.New("envelope: unsupported algorithm")
	// ErrNoRecipients means SealFor was given an empty key set.
	ErrNoRecipients = errors.New("envelope: no recipient keys")
)

// Seal encrypts plaintext to a single recipient device key.
func Seal(plaintext []byte, from, to Address, pub *rsa.PublicKey) (Envelope, error) {
	key, env, err := sealSymmetric(plaintext, from, to)
	if err != nil {
		return Envelope{}, err
	}
	wrapped, err := wrapKey(pub, key)
	if err != nil {
		return Envelope{}, err
	}
	env.WrappedKey = wrapped
	return env, nil
}

// SealFor encrypts plaintext once and wraps the content key for every
// device in keys, producing the multi-recipient envelope form. The
// ciphertext is shared; only the wraps differ per device.
func SealFor(plaintext []byte, from Address, toIdentity string, keys map[string]*rsa.PublicKey) (Envelope, error) {
	if len(keys) == 0 {
		return Envelope{}, ErrNoRecipients
	}
	key, env, err := sealSymmetric(plaintext, from, Address{Identity: toIdentity})
	if err != nil {
		return Envelope{}, err
	}
	env.WrappedKeys = make(map[string]string, len(keys))
	for deviceID, pub := range keys {
		wrapped, err := wrapKey(pub, key)
		if err != nil {
			return Envelope{}, fmt.Errorf("wrap for device %s: %w", deviceID, err)
		}
		env.WrappedKeys[deviceID] = wrapped
	}
	return env, nil
}

// Open recovers the plaintext of a single-recipient envelope. For an
// envelope still in multi-recipient form it unwraps the key addressed
// to env.To.Device. Failure modes are ErrKeyUnwrap (wrap stage) and
// ErrAuthentication (AEAD stage); no partial plaintext is ever returned.
func Open(env Envelope, priv *rsa.PrivateKey) ([]byte, error) {
	wrapped := env.WrappedKey
	if wrapped == "" && env.To.Device != "" {
		wrapped = env.WrappedKeys[env.To.Device]
	}
	return openWith(env, wrapped, priv)
}

// OpenAs recovers the plaintext of a multi-recipient envelope using
// the wrap addressed to the given device. Used when decrypting stored
// history, where To.Device is unset.
func OpenAs(env Envelope, deviceID string, priv *rsa.PrivateKey) ([]byte, error) {
	wrapped := env.WrappedKeys[deviceID]
	if wrapped == "" && env.To.Device == deviceID {
		wrapped = env.WrappedKey
	}
	return openWith(env, wrapped, priv)
}

func sealSymmetric(plaintext []byte, from, to Address) ([]byte, Envelope, error) {
	// Fresh key and nonce on every call. A nonce is never reused
	// because the key it pairs with never outlives this envelope.
	key := make([]byte, contentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, Envelope{}, fmt.Errorf("generate content key: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, Envelope{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, Envelope{}, err
	}

	// gcm.Seal appends the 16-byte tag to the ciphertext; the trailing
	// position is part of the wire contract.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	return key, Envelope{
		Alg:        Alg,
		From:       from,
		To:         to,
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

func wrapKey(pub *rsa.PublicKey, key []byte) (string, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap content key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

func openWith(env Envelope, wrappedB64 string, priv *rsa.PrivateKey) ([]byte, error) {
	if env.Alg != Alg {
		return nil, fmt.Errorf("%w: %q", ErrAlgorithm, env.Alg)
	}
	if wrappedB64 == "" {
		return nil, fmt.Errorf("%w: no wrapped key for recipient", ErrKeyUnwrap)
	}

	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	if len(key) != contentKeySize {
		return nil, fmt.Errorf("%w: unexpected content key size %d", ErrKeyUnwrap, len(key))
	}

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: unexpected nonce size %d", ErrAuthentication, len(nonce))
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(sealed) < tagSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrAuthentication)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnwrap, err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
