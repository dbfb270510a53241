package vault

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CachedVault keeps the decrypted secret of a FileVault in memory so the
// key derivation runs once per process instead of once per request.
//
// Every Load re-reads the record and serves the cache only if the bytes are
// identical to the ones it was decrypted from, so an edited or corrupted
// record is never masked. The fsnotify watch additionally drops the cached
// plaintext as soon as the record changes.
type CachedVault struct {
	inner   *FileVault
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}

	mu     sync.Mutex
	secret string
	raw    []byte // record the secret was decrypted from
	valid  bool
}

// NewCachedVault wraps inner and starts watching its record. Call Close to
// stop the watcher.
func NewCachedVault(inner *FileVault) (*CachedVault, error) {
	path := filepath.Clean(inner.Path())
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	// The directory is watched because Save replaces the file by rename.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	c := &CachedVault{
		inner:   inner,
		path:    path,
		watcher: watcher,
		logger:  slog.With("component", "vault", "backend", "file-cached"),
		done:    make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

func (c *CachedVault) watch() {
	defer close(c.done)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			c.logger.Debug("record changed, dropping cached secret", "op", event.Op)
			c.Invalidate()

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			// Events may have been lost.
			c.logger.Error("record watcher error", "error", err)
			c.Invalidate()
		}
	}
}

// Save writes through to the file vault and caches the new secret.
func (c *CachedVault) Save(secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := c.inner.save(secret)
	if err != nil {
		c.drop()
		return err
	}
	c.secret, c.raw, c.valid = secret, data, true
	return nil
}

// Load returns the cached secret if the record on disk is unchanged, and
// decrypts it again otherwise. Errors are never cached.
func (c *CachedVault) Load() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.inner.readRecord()
	if err != nil {
		c.drop()
		return "", err
	}
	if c.valid && bytes.Equal(data, c.raw) {
		return c.secret, nil
	}

	secret, err := c.inner.decrypt(data)
	if err != nil {
		c.drop()
		return "", err
	}
	c.secret, c.raw, c.valid = secret, data, true
	return secret, nil
}

// Invalidate drops the cached secret.
func (c *CachedVault) Invalidate() {
	c.mu.Lock()
	c.drop()
	c.mu.Unlock()
}

func (c *CachedVault) drop() {
	c.secret, c.raw, c.valid = "", nil, false
}

// Close stops watching the record.
func (c *CachedVault) Close() error {
	err := c.watcher.Close()
	<-c.done
	return err
}
