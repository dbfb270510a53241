// Package audit provides append-only structured logging for credential
// access.
//
// Every vault read and write is recorded to ~/.penny/audit.log as
// newline-delimited JSON. The file is rotated by size.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Action describes what happened.
type Action string

const (
	ActionSecretRead  Action = "secret_read"
	ActionSecretWrite Action = "secret_write"
)

// Entry is a single audit log record. It never carries the secret itself.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Key       string    `json:"key"`
	Actor     string    `json:"actor,omitempty"`   // "cli", "chat"
	Backend   string    `json:"backend,omitempty"` // "file", "system", "memory"
	Error     string    `json:"error,omitempty"`   // vault error kind
}

// Options control log rotation.
type Options struct {
	MaxSizeMB  int // default 10
	MaxBackups int // default 3
}

// Logger writes audit entries to an append-only, size-rotated file.
type Logger struct {
	mu   sync.Mutex
	out  io.WriteCloser
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string, opts Options) (*Logger, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit log dir: %w", err)
	}
	// lumberjack creates files lazily; create it now so permission problems
	// surface here and the mode is 0600.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	f.Close()

	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	return &Logger{out: out, path: path}, nil
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return &Logger{out: nopCloser{io.Discard}}
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the audit log location, or "" for a discarding logger.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	return l.out.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
