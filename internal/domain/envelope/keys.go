package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

const rsaKeyBits = 2048

// GenerateKeyPair creates a fresh RSA-2048 device keypair.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, rsaKeyBits)
}

// EncodePublicKey renders a public key as a PEM PUBLIC KEY block,
// the form the directory stores and the wire carries.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKey parses a PEM public key and enforces the RSA-2048
// requirement devices register under.
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	if pub.N.BitLen() != rsaKeyBits {
		return nil, fmt.Errorf("public key must be RSA-%d, got %d bits", rsaKeyBits, pub.N.BitLen())
	}
	return pub, nil
}

// EncodePrivateKey renders a private key as a PEM PRIVATE KEY block
// (PKCS#8). Only clients persist private keys; the relay never sees one.
func EncodePrivateKey(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePrivateKey parses a PEM PKCS#8 RSA private key.
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return priv, nil
}

// Fingerprint returns a short hex fingerprint of a PEM public key.
//
// It hashes the PEM bytes with SHA-256 and truncates to 10 bytes
// (20 hex chars), enough for a human key comparison.
func Fingerprint(pemStr string) string {
	sum := sha256.Sum256([]byte(pemStr))
	return hex.EncodeToString(sum[:10])
}
