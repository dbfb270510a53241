package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setHome points the home directory at a temp dir and clears overrides.
func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{"PENNY_VAULT_BACKEND", "PENNY_VAULT_PASSPHRASE", "PENNY_CHAT_BASE_URL", "PENNY_CHAT_MODEL"} {
		t.Setenv(k, "")
	}
	return home
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	home := setHome(t)
	path := writeConfig(t, `log_level: debug
database: ~/chats/penny.db
vault:
  backend: system
  service: com.example.penny
chat:
  model: gpt-4o
  requests_per_minute: 5
  timeout: 15s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if want := filepath.Join(home, "chats", "penny.db"); cfg.Database != want {
		t.Errorf("Database = %q, want %q", cfg.Database, want)
	}
	if cfg.Vault.Backend != BackendSystem {
		t.Errorf("Vault.Backend = %q, want system", cfg.Vault.Backend)
	}
	if cfg.Vault.Service != "com.example.penny" {
		t.Errorf("Vault.Service = %q, want com.example.penny", cfg.Vault.Service)
	}
	// Unset keys in a section keep their defaults.
	if cfg.Vault.Account != "openai_api_key" {
		t.Errorf("Vault.Account = %q, want openai_api_key", cfg.Vault.Account)
	}
	if cfg.Chat.Model != "gpt-4o" {
		t.Errorf("Chat.Model = %q, want gpt-4o", cfg.Chat.Model)
	}
	if cfg.Chat.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Chat.BaseURL = %q, want default", cfg.Chat.BaseURL)
	}
	if cfg.Chat.RequestsPerMinute != 5 {
		t.Errorf("Chat.RequestsPerMinute = %d, want 5", cfg.Chat.RequestsPerMinute)
	}
	if cfg.Chat.Timeout != 15*time.Second {
		t.Errorf("Chat.Timeout = %v, want 15s", cfg.Chat.Timeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	home := setHome(t)

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Vault.Backend != BackendFile {
		t.Errorf("Vault.Backend = %q, want file", cfg.Vault.Backend)
	}
	if want := filepath.Join(home, ".penny", "credential.json"); cfg.Vault.Path != want {
		t.Errorf("Vault.Path = %q, want %q", cfg.Vault.Path, want)
	}
	if cfg.Vault.KeySource != KeySourceDevice {
		t.Errorf("Vault.KeySource = %q, want device", cfg.Vault.KeySource)
	}
}

func TestLoadEmptyAndCommentOnlyFiles(t *testing.T) {
	setHome(t)

	for name, content := range map[string]string{
		"empty":    "",
		"comments": "# nothing configured yet\n# log_level: debug\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.LogLevel != "info" {
				t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
			}
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	setHome(t)

	_, err := Load(writeConfig(t, "vault: [unclosed\n"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setHome(t)
	t.Setenv("PENNY_VAULT_BACKEND", "memory")
	t.Setenv("PENNY_CHAT_BASE_URL", "http://127.0.0.1:8080/v1")
	t.Setenv("PENNY_CHAT_MODEL", "local-model")

	cfg, err := Load(writeConfig(t, "vault:\n  backend: system\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.Backend != BackendMemory {
		t.Errorf("Vault.Backend = %q, want memory", cfg.Vault.Backend)
	}
	if cfg.Chat.BaseURL != "http://127.0.0.1:8080/v1" {
		t.Errorf("Chat.BaseURL = %q", cfg.Chat.BaseURL)
	}
	if cfg.Chat.Model != "local-model" {
		t.Errorf("Chat.Model = %q", cfg.Chat.Model)
	}
}

func TestLoadPassphraseKeySource(t *testing.T) {
	setHome(t)
	path := writeConfig(t, "vault:\n  key_source: passphrase\n")

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "PENNY_VAULT_PASSPHRASE") {
		t.Fatalf("expected passphrase error, got %v", err)
	}

	t.Setenv("PENNY_VAULT_PASSPHRASE", "correct horse")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.Passphrase != "correct horse" {
		t.Errorf("Vault.Passphrase = %q", cfg.Vault.Passphrase)
	}
}

func TestPassphraseNeverReadFromFile(t *testing.T) {
	setHome(t)

	cfg, err := Load(writeConfig(t, "vault:\n  passphrase: from-file\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vault.Passphrase != "" {
		t.Errorf("Vault.Passphrase = %q, want empty", cfg.Vault.Passphrase)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad backend", func(c *Config) { c.Vault.Backend = "cloud" }, "vault.backend"},
		{"bad key source", func(c *Config) { c.Vault.KeySource = "tpm" }, "vault.key_source"},
		{"no path", func(c *Config) { c.Vault.Path = "" }, "vault.path"},
		{"no key path", func(c *Config) { c.Vault.KeyPath = "" }, "vault.key_path"},
		{"no account", func(c *Config) { c.Vault.Account = "" }, "vault.account"},
		{"no model", func(c *Config) { c.Chat.Model = "" }, "chat.model"},
		{"negative rate", func(c *Config) { c.Chat.RequestsPerMinute = -1 }, "requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	if err := Default(t.TempDir()).Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}
