package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const keySize = 32

// KDFParams are the Argon2id cost parameters stored with each record.
// Memory is in KiB.
type KDFParams struct {
	Algorithm string `json:"algorithm"`
	Time      uint32 `json:"time"`
	Memory    uint32 `json:"memory"`
	Threads   uint8  `json:"threads"`
}

var (
	// DefaultKDFParams follow the OWASP baseline for Argon2id.
	DefaultKDFParams = KDFParams{Algorithm: "argon2id", Time: 2, Memory: 19 * 1024, Threads: 1}

	// LegacyKDFParams apply to records written before the format was versioned.
	LegacyKDFParams = DefaultKDFParams
)

const (
	maxKDFTime    = 16
	maxKDFMemory  = 1024 * 1024 // 1 GiB
	maxKDFThreads = 64
)

func (p KDFParams) validate() error {
	if p.Algorithm != "argon2id" {
		return fmt.Errorf("%w: unsupported kdf %q", ErrMalformedRecord, p.Algorithm)
	}
	if p.Time == 0 || p.Time > maxKDFTime {
		return fmt.Errorf("%w: kdf time out of range", ErrMalformedRecord)
	}
	if p.Memory < 8*uint32(p.Threads) || p.Memory > maxKDFMemory {
		return fmt.Errorf("%w: kdf memory out of range", ErrMalformedRecord)
	}
	if p.Threads == 0 || p.Threads > maxKDFThreads {
		return fmt.Errorf("%w: kdf threads out of range", ErrMalformedRecord)
	}
	return nil
}

func deriveKey(master, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(master, salt, p.Time, p.Memory, p.Threads, keySize)
}

// additionalData binds the record version into the GCM tag. Legacy records
// were sealed without it.
func additionalData(version int) []byte {
	if version == 0 {
		return nil
	}
	return []byte("penny-vault:v" + strconv.Itoa(version))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return gcm, nil
}

// seal encrypts plaintext under a key derived from master with a fresh salt
// and nonce read from rnd.
func seal(master []byte, plaintext string, p KDFParams, rnd io.Reader) (*sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("%w: generating salt: %v", ErrCrypto, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", ErrCrypto, err)
	}

	gcm, err := newGCM(deriveKey(master, salt, p))
	if err != nil {
		return nil, err
	}

	return &sealed{
		version:    RecordVersion,
		params:     p,
		salt:       salt,
		nonce:      nonce,
		ciphertext: gcm.Seal(nil, nonce, []byte(plaintext), additionalData(RecordVersion)),
	}, nil
}

// open reverses seal. It returns either the exact plaintext or an error.
func open(master []byte, s *sealed) (string, error) {
	gcm, err := newGCM(deriveKey(master, s.salt, s.params))
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, s.nonce, s.ciphertext, additionalData(s.version))
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCrypto)
	}
	if !utf8.Valid(plaintext) {
		return "", ErrEncoding
	}
	return string(plaintext), nil
}
