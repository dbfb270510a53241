//go:build !darwin

package vault

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// SystemVault stores the secret in the platform keyring: Secret Service over
// D-Bus on Linux and BSD, Credential Manager on Windows.
type SystemVault struct {
	id Identity
}

// NewSystemVault creates a keyring-backed vault for id.
func NewSystemVault(id Identity) *SystemVault {
	return &SystemVault{id: id}
}

// Save creates or replaces the keyring entry.
func (s *SystemVault) Save(secret string) error {
	if err := keyring.Set(s.id.Service, s.id.Account, secret); err != nil {
		return fmt.Errorf("%w: keyring set %q: %v", ErrIO, s.id.Key(), err)
	}
	return nil
}

// Load reads the keyring entry.
func (s *SystemVault) Load() (string, error) {
	secret, err := keyring.Get(s.id.Service, s.id.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.id.Key())
		}
		return "", fmt.Errorf("%w: keyring get %q: %v", ErrIO, s.id.Key(), err)
	}
	return secret, nil
}
