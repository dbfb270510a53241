package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileVault keeps the secret in an encrypted JSON record on disk.
type FileVault struct {
	path   string
	keys   KeySource
	params KDFParams
	random io.Reader
	logger *slog.Logger
}

// FileOption configures a FileVault.
type FileOption func(*FileVault)

// WithKDFParams sets the Argon2id parameters used for new records. Loads
// always use the parameters stored in the record.
func WithKDFParams(p KDFParams) FileOption {
	return func(v *FileVault) { v.params = p }
}

// WithRandom replaces crypto/rand as the salt and nonce source.
func WithRandom(r io.Reader) FileOption {
	return func(v *FileVault) { v.random = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FileOption {
	return func(v *FileVault) { v.logger = l }
}

// NewFileVault creates a vault that stores its record at path.
func NewFileVault(path string, keys KeySource, opts ...FileOption) *FileVault {
	v := &FileVault{
		path:   path,
		keys:   keys,
		params: DefaultKDFParams,
		random: rand.Reader,
		logger: slog.With("component", "vault", "backend", "file"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Path returns the location of the record.
func (v *FileVault) Path() string {
	return v.path
}

func (v *FileVault) lockPath() string {
	return v.path + ".lock"
}

// Save encrypts secret and atomically replaces the stored record.
func (v *FileVault) Save(secret string) error {
	_, err := v.save(secret)
	return err
}

// save is Save returning the record bytes it wrote.
func (v *FileVault) save(secret string) ([]byte, error) {
	if err := v.params.validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid kdf parameters", ErrCrypto)
	}
	master, err := v.keys.MasterSecret()
	if err != nil {
		return nil, err
	}

	s, err := seal(master, secret, v.params, v.random)
	if err != nil {
		return nil, err
	}
	data, err := marshalRecord(s)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
	}

	lock, err := lockFile(v.lockPath(), true)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	if err := writeFileAtomic(v.path, data); err != nil {
		return nil, err
	}
	v.logger.Debug("secret saved", "path", v.path)
	return data, nil
}

// Load reads and decrypts the stored record.
func (v *FileVault) Load() (string, error) {
	data, err := v.readRecord()
	if err != nil {
		return "", err
	}
	return v.decrypt(data)
}

// decrypt parses a record read from disk and opens it.
func (v *FileVault) decrypt(data []byte) (string, error) {
	s, err := unmarshalRecord(data)
	if err != nil {
		return "", err
	}

	master, err := v.keys.MasterSecret()
	if err != nil {
		return "", err
	}

	secret, err := open(master, s)
	if err != nil {
		v.logger.Warn("stored secret unreadable", "path", v.path, "kind", Kind(err))
		return "", err
	}
	return secret, nil
}

// readRecord returns the raw record under a shared lock.
func (v *FileVault) readRecord() ([]byte, error) {
	if _, err := os.Stat(v.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, v.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	lock, err := lockFile(v.lockPath(), false)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, v.path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, v.path, err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old record or the new one.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing record: %v", ErrIO, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: setting permissions: %v", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing record: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing record: %v", ErrIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: replacing record: %v", ErrIO, err)
	}
	return nil
}
