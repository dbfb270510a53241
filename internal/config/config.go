package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings loaded from ~/.penny/config.yaml.
type Config struct {
	LogLevel string `yaml:"log_level"`
	AuditLog string `yaml:"audit_log"`
	Database string `yaml:"database"`
	Vault    Vault  `yaml:"vault"`
	Chat     Chat   `yaml:"chat"`
}

// Vault selects and configures the credential backend.
type Vault struct {
	Backend   string `yaml:"backend"`    // "file" | "system" | "memory"
	Path      string `yaml:"path"`       // file backend record
	KeySource string `yaml:"key_source"` // "device" | "passphrase"
	KeyPath   string `yaml:"key_path"`   // device key file
	Service   string `yaml:"service"`
	Account   string `yaml:"account"`

	// Passphrase comes from PENNY_VAULT_PASSPHRASE only; it is never read
	// from or written to the config file.
	Passphrase string `yaml:"-"`
}

// Chat configures the chat-completion API client.
type Chat struct {
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

const (
	BackendFile   = "file"
	BackendSystem = "system"
	BackendMemory = "memory"

	KeySourceDevice     = "device"
	KeySourcePassphrase = "passphrase"
)

// Home returns the penny home directory (~/.penny).
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".penny"), nil
}

// DefaultPath returns the default config file path: ~/.penny/config.yaml.
func DefaultPath() string {
	dir, err := Home()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Default returns the configuration used when no file exists, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		LogLevel: "info",
		AuditLog: filepath.Join(dir, "audit.log"),
		Database: filepath.Join(dir, "penny.db"),
		Vault: Vault{
			Backend:   BackendFile,
			Path:      filepath.Join(dir, "credential.json"),
			KeySource: KeySourceDevice,
			KeyPath:   filepath.Join(dir, "device.key"),
			Service:   "penny",
			Account:   "openai_api_key",
		},
		Chat: Chat{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 20,
			Timeout:           60 * time.Second,
		},
	}
}

// Load reads a YAML config file from path over the defaults, then applies
// environment overrides. A missing, empty or all-comment file yields the
// defaults with no error.
func Load(path string) (*Config, error) {
	dir, err := Home()
	if err != nil {
		return nil, fmt.Errorf("resolving home: %w", err)
	}
	cfg := Default(dir)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.expandHome(filepath.Dir(dir))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PENNY_VAULT_BACKEND"); v != "" {
		c.Vault.Backend = v
	}
	if v := getenv("PENNY_VAULT_PASSPHRASE"); v != "" {
		c.Vault.Passphrase = v
	}
	if v := getenv("PENNY_CHAT_BASE_URL"); v != "" {
		c.Chat.BaseURL = v
	}
	if v := getenv("PENNY_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
}

func (c *Config) expandHome(home string) {
	for _, p := range []*string{&c.AuditLog, &c.Database, &c.Vault.Path, &c.Vault.KeyPath} {
		if *p == "~" {
			*p = home
		} else if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}

	switch c.Vault.Backend {
	case BackendFile:
		if c.Vault.Path == "" {
			return errors.New("vault.path is required for the file backend")
		}
		switch c.Vault.KeySource {
		case KeySourceDevice:
			if c.Vault.KeyPath == "" {
				return errors.New("vault.key_path is required for the device key source")
			}
		case KeySourcePassphrase:
			if c.Vault.Passphrase == "" {
				return errors.New("vault.key_source passphrase requires PENNY_VAULT_PASSPHRASE")
			}
		default:
			return fmt.Errorf("vault.key_source: unknown source %q", c.Vault.KeySource)
		}
	case BackendSystem, BackendMemory:
	default:
		return fmt.Errorf("vault.backend: unknown backend %q", c.Vault.Backend)
	}
	if c.Vault.Service == "" || c.Vault.Account == "" {
		return errors.New("vault.service and vault.account must be set")
	}

	if c.Chat.BaseURL == "" {
		return errors.New("chat.base_url must be set")
	}
	if c.Chat.Model == "" {
		return errors.New("chat.model must be set")
	}
	if c.Chat.RequestsPerMinute < 0 {
		return errors.New("chat.requests_per_minute must not be negative")
	}
	return nil
}
