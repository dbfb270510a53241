//go:build darwin

package vault

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemVault stores the secret in the macOS Keychain as a generic password.
// The item is never synced to iCloud and is only readable while the machine
// is unlocked.
type SystemVault struct {
	id Identity
}

// NewSystemVault creates a Keychain-backed vault for id.
func NewSystemVault(id Identity) *SystemVault {
	return &SystemVault{id: id}
}

// Save creates or replaces the Keychain item.
func (s *SystemVault) Save(secret string) error {
	// update = delete + add
	err := gokeychain.DeleteGenericPasswordItem(s.id.Service, s.id.Account)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("%w: keychain delete %q: %v", ErrIO, s.id.Key(), err)
	}

	item := gokeychain.NewGenericPassword(
		s.id.Service,
		s.id.Account,
		fmt.Sprintf("penny: %s", s.id.Account),
		[]byte(secret),
		"",
	)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return fmt.Errorf("%w: keychain add %q: %v", ErrIO, s.id.Key(), err)
	}
	return nil
}

// Load reads the Keychain item.
func (s *SystemVault) Load() (string, error) {
	query := gokeychain.NewItem()
	query.SetSecClass(gokeychain.SecClassGenericPassword)
	query.SetService(s.id.Service)
	query.SetAccount(s.id.Account)
	query.SetMatchLimit(gokeychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := gokeychain.QueryItem(query)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.id.Key())
		}
		return "", fmt.Errorf("%w: keychain get %q: %v", ErrIO, s.id.Key(), err)
	}
	// QueryItem reports a missing item as zero results rather than an error.
	if len(results) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, s.id.Key())
	}
	return string(results[0].Data), nil
}
