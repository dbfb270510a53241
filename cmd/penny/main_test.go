package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/penny/internal/chat"
	"github.com/benaskins/penny/internal/store"
	"github.com/benaskins/penny/internal/vault"
)

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "*****"},
		{"sk-test-1234", "************"},
		{"sk-proj-abcdefgh1234", "sk-*************1234"},
	}
	for _, tt := range tests {
		if got := mask(tt.in); got != tt.want {
			t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "stored"},
		{fmt.Errorf("wrapped: %w", vault.ErrNotFound), "not stored"},
		{fmt.Errorf("wrapped: %w", vault.ErrCrypto), "unreadable"},
		{fmt.Errorf("wrapped: %w", vault.ErrMalformedRecord), "unreadable"},
		{fmt.Errorf("wrapped: %w", vault.ErrIO), "unreadable"},
		{errors.New("boom"), "unreadable"},
	}
	for _, tt := range tests {
		if got := keyStatus(tt.err); got != tt.want {
			t.Errorf("keyStatus(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestErrorTextHidesVaultDetail(t *testing.T) {
	err := fmt.Errorf("loading API key: %w", fmt.Errorf("%w: authentication failed", vault.ErrCrypto))
	if got := errorText(err); strings.Contains(got, "authentication") {
		t.Errorf("errorText leaked detail: %q", got)
	}
	if got := errorText(errors.New("plain")); got != "plain" {
		t.Errorf("errorText(plain) = %q", got)
	}
}

func TestTitleFrom(t *testing.T) {
	if got := titleFrom("  what   is\tGo? "); got != "what is Go?" {
		t.Errorf("titleFrom collapsed = %q", got)
	}
	if got := titleFrom(""); got != "New conversation" {
		t.Errorf("titleFrom empty = %q", got)
	}
	long := strings.Repeat("a", 100)
	if got := []rune(titleFrom(long)); len(got) != 48 {
		t.Errorf("titleFrom long has %d runes, want 48", len(got))
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("12"); err != nil || id != 12 {
		t.Errorf("parseID(12) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "abc"} {
		if _, err := parseID(bad); err == nil {
			t.Errorf("parseID(%q) should fail", bad)
		}
	}
}

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, msgs []chat.Message) (chat.Message, error) {
	last := msgs[len(msgs)-1].Content.String()
	return chat.Message{Role: chat.RoleAssistant, Content: chat.Text("echo: " + last)}, nil
}

func TestAskStoresBothMessages(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "penny.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	reply, err := ask(ctx, st, echoCompleter{}, "hello there")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply.Content.String() != "echo: hello there" {
		t.Errorf("reply = %q", reply.Content.String())
	}

	convs, err := st.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 || convs[0].Title != "hello there" {
		t.Fatalf("conversations = %+v", convs)
	}
	msgs := convs[0].Messages
	if len(msgs) != 2 || msgs[0].Role != chat.RoleUser || msgs[1].Content != "echo: hello there" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestOpenVaultMemoryBackend(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("PENNY_VAULT_BACKEND", "memory")
	configPath = filepath.Join(home, "missing.yaml")
	t.Cleanup(func() { configPath = "" })

	a, err := loadApp()
	if err != nil {
		t.Fatalf("loadApp: %v", err)
	}
	defer a.Close()

	v, err := a.openVault("test", false)
	if err != nil {
		t.Fatalf("openVault: %v", err)
	}
	if _, err := v.Load(); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := v.Save("sk-test-1234"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, err := v.Load(); err != nil || got != "sk-test-1234" {
		t.Errorf("Load = %q, %v", got, err)
	}
}
