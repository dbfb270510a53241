package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// RecordVersion is the format written by this package.
	RecordVersion = 1

	saltSize  = 16
	nonceSize = 12
	tagSize   = 16
)

// EncryptedRecord is the on-disk form of one secret. Binary fields are
// base64 (standard encoding) so the record stays plain JSON.
type EncryptedRecord struct {
	Version    int        `json:"version,omitempty"`
	KDF        *KDFParams `json:"kdf,omitempty"`
	Salt       string     `json:"salt"`
	Nonce      string     `json:"nonce"`
	Ciphertext string     `json:"ciphertext"`
}

// sealed is a decoded record ready for decryption.
type sealed struct {
	version    int
	params     KDFParams
	salt       []byte
	nonce      []byte
	ciphertext []byte
}

func (s *sealed) record() *EncryptedRecord {
	params := s.params
	return &EncryptedRecord{
		Version:    s.version,
		KDF:        &params,
		Salt:       base64.StdEncoding.EncodeToString(s.salt),
		Nonce:      base64.StdEncoding.EncodeToString(s.nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(s.ciphertext),
	}
}

// marshalRecord encodes s as indented JSON.
func marshalRecord(s *sealed) ([]byte, error) {
	data, err := json.MarshalIndent(s.record(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encoding record: %w", ErrMalformedRecord, err)
	}
	return append(data, '\n'), nil
}

// unmarshalRecord parses and validates a stored record. A record with no
// version field is the original three-field format and is read with
// LegacyKDFParams.
func unmarshalRecord(data []byte) (*sealed, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	for _, field := range []string{"salt", "nonce", "ciphertext"} {
		if _, ok := raw[field]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedRecord, field)
		}
	}

	var rec EncryptedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	s := &sealed{version: rec.Version}
	switch rec.Version {
	case 0:
		if rec.KDF != nil {
			return nil, fmt.Errorf("%w: kdf parameters without a version", ErrMalformedRecord)
		}
		s.params = LegacyKDFParams
	case RecordVersion:
		if rec.KDF == nil {
			return nil, fmt.Errorf("%w: missing field %q", ErrMalformedRecord, "kdf")
		}
		s.params = *rec.KDF
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedRecord, rec.Version)
	}
	if err := s.params.validate(); err != nil {
		return nil, err
	}

	var err error
	if s.salt, err = decodeField("salt", rec.Salt); err != nil {
		return nil, err
	}
	if s.nonce, err = decodeField("nonce", rec.Nonce); err != nil {
		return nil, err
	}
	if s.ciphertext, err = decodeField("ciphertext", rec.Ciphertext); err != nil {
		return nil, err
	}

	if len(s.salt) < saltSize {
		return nil, fmt.Errorf("%w: salt too short", ErrMalformedRecord)
	}
	if len(s.nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrMalformedRecord, nonceSize)
	}
	if len(s.ciphertext) < tagSize {
		return nil, fmt.Errorf("%w: ciphertext truncated", ErrMalformedRecord)
	}
	return s, nil
}

func decodeField(name, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not valid base64", ErrMalformedRecord, name)
	}
	return b, nil
}
