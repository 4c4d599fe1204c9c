package client

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"courier-relay/internal/domain/envelope"
)

const profileFile = "profile.json"

// Profile is the saved CLI session for one device.
type Profile struct {
	Relay    string `json:"relay"`
	Handle   string `json:"handle"`
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

// FileStore keeps the courier CLI's profile and device keys under one
// directory, one key file per handle and device pair. Key files are
// plain PEM with 0600 permissions, the same trust model as an ssh key.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) SaveProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, profileFile), raw, 0o600)
}

func (s *FileStore) LoadProfile() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, profileFile))
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("corrupt profile: %w", err)
	}
	return p, nil
}

func (s *FileStore) SaveKey(handle, deviceID string, priv *rsa.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pemStr, err := envelope.EncodePrivateKey(priv)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, keyFile(handle, deviceID)), []byte(pemStr), 0o600)
}

func (s *FileStore) LoadKey(handle, deviceID string) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, keyFile(handle, deviceID)))
	if err != nil {
		return nil, err
	}
	return envelope.ParsePrivateKey(string(raw))
}

func keyFile(handle, deviceID string) string {
	return fmt.Sprintf("%s-%s.key.pem", handle, deviceID)
}
