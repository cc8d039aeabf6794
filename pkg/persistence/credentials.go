package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CredentialsVersion is the current version of the credentials file format.
const CredentialsVersion = 1

// Maximum field lengths accepted by the station configuration.
const (
	MaxSSIDLen       = 32
	MaxPassphraseLen = 64
)

// Persistence errors.
var (
	ErrEmptySSID         = errors.New("empty SSID")
	ErrSSIDTooLong       = errors.New("SSID too long")
	ErrPassphraseTooLong = errors.New("passphrase too long")
	ErrUnsupportedFormat = errors.New("unsupported credentials format")
)

// Credentials are the station credentials of one access point.
type Credentials struct {
	// Version is the file format version.
	Version int `json:"version"`

	// SavedAt is when the credentials were stored.
	SavedAt time.Time `json:"saved_at"`

	// SSID is the access point network name.
	SSID string `json:"ssid"`

	// Passphrase is the WPA passphrase. Empty for open networks.
	Passphrase string `json:"passphrase,omitempty"`
}

// Validate checks field lengths.
func (c *Credentials) Validate() error {
	if c.SSID == "" {
		return ErrEmptySSID
	}
	if len(c.SSID) > MaxSSIDLen {
		return fmt.Errorf("%w: %d bytes", ErrSSIDTooLong, len(c.SSID))
	}
	if len(c.Passphrase) > MaxPassphraseLen {
		return fmt.Errorf("%w: %d bytes", ErrPassphraseTooLong, len(c.Passphrase))
	}
	return nil
}

// CredentialStore manages persistence of station credentials to a JSON file.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewCredentialStore creates a store backed by the file at path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the backing file path.
func (s *CredentialStore) Path() string {
	return s.path
}

// Save persists the credentials to disk.
func (s *CredentialStore) Save(creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	creds.Version = CredentialsVersion
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	// Passphrases are secrets.
	return os.WriteFile(s.path, data, 0600)
}

// Load reads the credentials from disk.
// Returns nil, nil if the file doesn't exist (not provisioned).
func (s *CredentialStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	creds := &Credentials{}
	if err := json.Unmarshal(data, creds); err != nil {
		return nil, err
	}
	if creds.Version != CredentialsVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, creds.Version)
	}

	return creds, nil
}

// Exists reports whether credentials are stored.
func (s *CredentialStore) Exists() (bool, error) {
	creds, err := s.Load()
	if err != nil {
		return false, err
	}
	return creds != nil, nil
}

// Erase removes the credentials file. Erasing an absent file is not an error.
func (s *CredentialStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
