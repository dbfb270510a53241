package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path, Options{})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionSecretWrite,
		Key:       "penny/openai_api_key",
		Actor:     "cli",
		Backend:   "file",
	})

	l.Log(Entry{
		Timestamp: ts.Add(time.Hour),
		Action:    ActionSecretRead,
		Key:       "penny/openai_api_key",
		Actor:     "chat",
		Error:     "crypto",
	})

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e1 Entry
	json.Unmarshal([]byte(lines[0]), &e1)
	if e1.Action != ActionSecretWrite {
		t.Errorf("expected secret_write, got %v", e1.Action)
	}
	if e1.Backend != "file" {
		t.Errorf("expected file, got %q", e1.Backend)
	}
	if !e1.Timestamp.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, e1.Timestamp)
	}

	var e2 Entry
	json.Unmarshal([]byte(lines[1]), &e2)
	if e2.Action != ActionSecretRead {
		t.Errorf("expected secret_read, got %v", e2.Action)
	}
	if e2.Actor != "chat" {
		t.Errorf("expected chat, got %q", e2.Actor)
	}
	if e2.Error != "crypto" {
		t.Errorf("expected crypto, got %q", e2.Error)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, _ := NewLogger(path, Options{})
	l1.Log(Entry{Action: ActionSecretWrite, Key: "first"})
	l1.Close()

	l2, _ := NewLogger(path, Options{})
	l2.Log(Entry{Action: ActionSecretRead, Key: "second"})
	l2.Close()

	if lines := readLines(t, path); len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestLoggerDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path, Options{})
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionSecretRead, Key: "test"})
	after := time.Now().UTC()

	data, _ := os.ReadFile(path)
	var e Entry
	json.Unmarshal(data, &e)

	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")
	l, err := NewLogger(path, Options{})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Log(Entry{Action: ActionSecretRead, Key: "test"})
	l.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestLoggerNeverStoresSecretField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path, Options{})
	l.Log(Entry{Action: ActionSecretWrite, Key: "penny/openai_api_key"})
	l.Close()

	var fields map[string]any
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"secret", "value"} {
		if _, ok := fields[k]; ok {
			t.Errorf("unexpected field %q in audit entry", k)
		}
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if err := l.Log(Entry{Action: ActionSecretRead, Key: "x"}); err != nil {
		t.Errorf("Log: %v", err)
	}
	if l.Path() != "" {
		t.Errorf("expected empty path, got %q", l.Path())
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
