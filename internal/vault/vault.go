// Package vault stores the chat API credential encrypted at rest.
//
// Two backends share one contract:
//   - FileVault: Argon2id key derivation and AES-256-GCM, persisted as a
//     small JSON record (see EncryptedRecord).
//   - SystemVault: the operating system's credential store (macOS Keychain,
//     Secret Service, Windows Credential Manager).
//
// Each backend holds exactly one secret under a fixed Identity. A Save
// replaces whatever was stored before; there is no update, delete or list.
package vault

import (
	"errors"
)

// Vault is the interface collaborators use to store and recover the secret.
type Vault interface {
	Save(secret string) error
	Load() (string, error)
}

var (
	// ErrNotFound is returned when no secret has been saved yet.
	ErrNotFound = errors.New("secret not found")
	// ErrIO is returned when the underlying store is unreachable or unwritable.
	ErrIO = errors.New("secret store unavailable")
	// ErrMalformedRecord is returned when a stored record cannot be parsed.
	ErrMalformedRecord = errors.New("malformed secret record")
	// ErrCrypto covers both key derivation and authentication failures.
	ErrCrypto = errors.New("secret could not be decrypted")
	// ErrEncoding is returned when decrypted bytes are not valid UTF-8.
	ErrEncoding = errors.New("secret is not valid text")
)

// Identity names the single entry a vault reads and writes.
type Identity struct {
	Service string `yaml:"service"`
	Account string `yaml:"account"`
}

// DefaultIdentity is the identity used when none is configured.
var DefaultIdentity = Identity{Service: "penny", Account: "openai_api_key"}

// Key renders the identity for logs and audit entries.
func (id Identity) Key() string {
	return id.Service + "/" + id.Account
}

// Kind returns the short name of the vault error kind wrapped by err, or ""
// if err is not a vault error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	}
	return ""
}

// UserMessage returns the text to show a user for a vault error. Everything
// except ErrNotFound collapses into one generic message so a wrong key can't
// be told apart from a tampered record. ok is false for non-vault errors.
func UserMessage(err error) (msg string, ok bool) {
	switch Kind(err) {
	case "":
		return "", false
	case "not_found":
		return "No API key stored yet. Please enter your API key (penny key set).", true
	default:
		return "Could not read the stored credential.", true
	}
}
