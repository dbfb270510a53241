package vault

import (
	"fmt"

	"github.com/benaskins/penny/internal/audit"
)

// AuditedVault wraps a Vault and records every access in the audit log.
type AuditedVault struct {
	inner   Vault
	audit   *audit.Logger
	id      Identity
	backend string
	actor   string // "cli" or "chat"
}

// NewAuditedVault wraps inner with audit logging.
func NewAuditedVault(inner Vault, auditLog *audit.Logger, id Identity, backend, actor string) *AuditedVault {
	return &AuditedVault{
		inner:   inner,
		audit:   auditLog,
		id:      id,
		backend: backend,
		actor:   actor,
	}
}

func (a *AuditedVault) Save(secret string) error {
	err := a.inner.Save(secret)

	// Audit logging is best-effort; a failure to log should not block the operation.
	a.audit.Log(a.entry(audit.ActionSecretWrite, err))

	if err != nil {
		return fmt.Errorf("audited vault save: %w", err)
	}
	return nil
}

func (a *AuditedVault) Load() (string, error) {
	secret, err := a.inner.Load()

	a.audit.Log(a.entry(audit.ActionSecretRead, err))

	if err != nil {
		return "", fmt.Errorf("audited vault load: %w", err)
	}
	return secret, nil
}

func (a *AuditedVault) entry(action audit.Action, err error) audit.Entry {
	e := audit.Entry{
		Action:  action,
		Key:     a.id.Key(),
		Actor:   a.actor,
		Backend: a.backend,
	}
	if err != nil {
		// Only the kind is recorded; messages may carry paths and OS detail.
		e.Error = Kind(err)
		if e.Error == "" {
			e.Error = "unknown"
		}
	}
	return e
}
