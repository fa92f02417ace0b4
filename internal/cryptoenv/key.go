// Package cryptoenv implements the Fernet authenticated-symmetric-cipher
// envelope used to wrap every JSON payload on the wire (spec §4.3). No
// Fernet implementation appears anywhere in the retrieved example corpus,
// so this is built directly against the published Fernet token format using
// the standard library's crypto primitives (see DESIGN.md).
package cryptoenv

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeySize is the raw (decoded) key length Fernet requires: 16 bytes for
// HMAC-SHA256 signing and 16 bytes for AES-128.
const KeySize = 32

// Key is a decoded 32-byte Fernet key, split into its signing and
// encryption halves per the Fernet spec.
type Key struct {
	signingKey    [16]byte
	encryptionKey [16]byte
}

// ParseKey decodes a URL-safe base64 Fernet key, as produced by GenerateKey
// or supplied via configuration.
func ParseKey(b64 string) (Key, error) {
	raw, err := base64.URLEncoding.DecodeString(b64)
	if err != nil {
		return Key{}, fmt.Errorf("cryptoenv: invalid key encoding: %w", err)
	}
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("cryptoenv: key must decode to %d bytes, got %d", KeySize, len(raw))
	}
	var k Key
	copy(k.signingKey[:], raw[:16])
	copy(k.encryptionKey[:], raw[16:])
	return k, nil
}

// GenerateKey returns a fresh, random URL-safe base64 Fernet key (32 bytes
// of entropy before encoding).
func GenerateKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("cryptoenv: generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}
