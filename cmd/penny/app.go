package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/benaskins/penny/internal/audit"
	"github.com/benaskins/penny/internal/chat"
	"github.com/benaskins/penny/internal/config"
	"github.com/benaskins/penny/internal/store"
	"github.com/benaskins/penny/internal/vault"
)

// app holds what a command needs after the config is loaded.
type app struct {
	cfg     *config.Config
	audit   *audit.Logger
	closers []func() error
}

func loadApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	a := &app{cfg: cfg}
	if cfg.AuditLog == "" {
		a.audit = audit.Discard()
	} else {
		a.audit, err = audit.NewLogger(cfg.AuditLog, audit.Options{})
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
	}
	a.closers = append(a.closers, a.audit.Close)
	return a, nil
}

func (a *app) identity() vault.Identity {
	return vault.Identity{Service: a.cfg.Vault.Service, Account: a.cfg.Vault.Account}
}

// openVault builds the configured backend wrapped in the audit trail. With
// cached set, a file backend keeps the decrypted secret in memory until the
// record changes on disk.
func (a *app) openVault(actor string, cached bool) (vault.Vault, error) {
	vc := a.cfg.Vault
	logger := slog.With("component", "vault", "backend", vc.Backend)

	var inner vault.Vault
	switch vc.Backend {
	case config.BackendFile:
		var keys vault.KeySource = vault.DeviceKeyFile(vc.KeyPath)
		if vc.KeySource == config.KeySourcePassphrase {
			keys = vault.Passphrase(vc.Passphrase)
		}
		fv := vault.NewFileVault(vc.Path, keys, vault.WithLogger(logger))
		inner = fv
		if cached {
			cv, err := vault.NewCachedVault(fv)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, cv.Close)
			inner = cv
		}
	case config.BackendSystem:
		inner = vault.NewSystemVault(a.identity())
	case config.BackendMemory:
		inner = vault.NewMemoryVault()
	default:
		return nil, fmt.Errorf("unknown vault backend %q", vc.Backend)
	}
	return vault.NewAuditedVault(inner, a.audit, a.identity(), vc.Backend, actor), nil
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func (a *app) chatClient(creds chat.CredentialSource) *chat.Client {
	cc := a.cfg.Chat
	return chat.New(cc.BaseURL, cc.Model, creds,
		chat.WithTimeout(cc.Timeout),
		chat.WithRequestsPerMinute(cc.RequestsPerMinute),
	)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// errorText renders err for the terminal, hiding vault internals.
func errorText(err error) string {
	if msg, ok := vault.UserMessage(err); ok {
		return msg
	}
	return err.Error()
}
