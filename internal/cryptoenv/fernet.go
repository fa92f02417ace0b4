package cryptoenv

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Fernet token layout (https://github.com/fernet/spec):
//
//	Version   (1 byte)   = 0x80
//	Timestamp (8 bytes)  big-endian Unix seconds
//	IV        (16 bytes) AES-CBC initialization vector
//	Ciphertext (N bytes) AES-128-CBC of PKCS#7-padded plaintext
//	HMAC      (32 bytes) SHA-256 HMAC over everything preceding it
//
// The whole token is URL-safe base64 encoded for transport.
const (
	version   byte = 0x80
	ivSize         = 16
	hmacSize       = 32
	headerLen      = 1 + 8 + ivSize // version + timestamp + iv
)

var (
	// ErrInvalidToken covers malformed tokens: too short, bad base64, or a
	// version byte other than 0x80.
	ErrInvalidToken = errors.New("cryptoenv: invalid token")
	// ErrAuthentication covers a token whose HMAC does not match — tampering
	// or an encryption-key mismatch.
	ErrAuthentication = errors.New("cryptoenv: authentication failed")
)

// Encrypt wraps plaintext in a Fernet token encrypted and authenticated
// under key, using now as the embedded timestamp, and returns the URL-safe
// base64 encoding of the token.
func Encrypt(key Key, plaintext []byte, now time.Time) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("cryptoenv: generate iv: %w", err)
	}

	block, err := aes.NewCipher(key.encryptionKey[:])
	if err != nil {
		return "", fmt.Errorf("cryptoenv: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	buf := new(bytes.Buffer)
	buf.WriteByte(version)
	binary.Write(buf, binary.BigEndian, now.Unix())
	buf.Write(iv)
	buf.Write(ciphertext)

	mac := hmac.New(sha256.New, key.signingKey[:])
	mac.Write(buf.Bytes())
	buf.Write(mac.Sum(nil))

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt verifies and decrypts a Fernet token (as produced by Encrypt)
// under key, returning the original plaintext.
func Decrypt(key Key, tokenB64 string) ([]byte, error) {
	token, err := base64.URLEncoding.DecodeString(tokenB64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if len(token) < headerLen+hmacSize {
		return nil, ErrInvalidToken
	}
	if token[0] != version {
		return nil, ErrInvalidToken
	}

	body := token[:len(token)-hmacSize]
	gotMAC := token[len(token)-hmacSize:]

	mac := hmac.New(sha256.New, key.signingKey[:])
	mac.Write(body)
	wantMAC := mac.Sum(nil)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, ErrAuthentication
	}

	iv := token[9:headerLen]
	ciphertext := body[headerLen:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidToken
	}

	block, err := aes.NewCipher(key.encryptionKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: new cipher: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidToken
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrInvalidToken
	}
	return data[:len(data)-padLen], nil
}
