package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// KeySource supplies the master secret that FileVault derives keys from.
type KeySource interface {
	MasterSecret() ([]byte, error)
}

// Passphrase is a KeySource backed by a fixed passphrase.
type Passphrase string

// MasterSecret returns the passphrase bytes.
func (p Passphrase) MasterSecret() ([]byte, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrCrypto)
	}
	return []byte(p), nil
}

const deviceKeySize = 32

// DeviceKeyFile is a KeySource that keeps a random device key in a file.
// The key is generated on first use and never changes afterwards; losing the
// file makes existing records unreadable.
type DeviceKeyFile string

// MasterSecret reads the device key, creating it if the file does not exist.
func (p DeviceKeyFile) MasterSecret() ([]byte, error) {
	path := string(p)
	key, err := readDeviceKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key, err = createDeviceKey(path)
	if errors.Is(err, fs.ErrExist) {
		// Another process won the race; use its key.
		return readDeviceKey(path)
	}
	return key, err
}

func readDeviceKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading device key: %v", ErrIO, err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(key) != deviceKeySize {
		return nil, fmt.Errorf("%w: device key file %s is invalid", ErrCrypto, path)
	}
	return key, nil
}

func createDeviceKey(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: creating key dir: %v", ErrIO, err)
	}

	key := make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: generating device key: %v", ErrCrypto, err)
	}

	// O_EXCL so two first runs can't both write a key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: creating device key: %v", ErrIO, err)
	}
	_, werr := f.WriteString(base64.StdEncoding.EncodeToString(key) + "\n")
	if serr := f.Sync(); werr == nil {
		werr = serr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: writing device key: %v", ErrIO, werr)
	}
	return key, nil
}
