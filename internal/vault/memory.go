package vault

import (
	"fmt"
	"sync"
)

// MemoryVault is an in-memory Vault for tests. Nothing persists across
// restarts.
type MemoryVault struct {
	mu     sync.RWMutex
	secret *string
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{}
}

func (m *MemoryVault) Save(secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = &secret
	return nil
}

func (m *MemoryVault) Load() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.secret == nil {
		return "", fmt.Errorf("%w: memory vault is empty", ErrNotFound)
	}
	return *m.secret, nil
}
