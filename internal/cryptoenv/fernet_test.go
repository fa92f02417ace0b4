package cryptoenv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) Key {
	t.Helper()
	b64, err := GenerateKey()
	require.NoError(t, err)
	key, err := ParseKey(b64)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"operation":"login","username":"alice"}`)

	token, err := Encrypt(key, plaintext, time.Now())
	require.NoError(t, err)

	got, err := Decrypt(key, token)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := testKey(t)
	other := testKey(t)

	token, err := Encrypt(key, []byte("hello"), time.Now())
	require.NoError(t, err)

	_, err = Decrypt(other, token)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecryptTamperedTokenFails(t *testing.T) {
	key := testKey(t)
	token, err := Encrypt(key, []byte("hello"), time.Now())
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-1] ^= 0x01
	_, err = Decrypt(key, string(tampered))
	assert.Error(t, err)
}

func TestDecryptMalformedTokenFails(t *testing.T) {
	key := testKey(t)
	_, err := Decrypt(key, "not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseKeyRejectsWrongLength(t *testing.T) {
	_, err := ParseKey("dG9vc2hvcnQ=")
	assert.Error(t, err)
}
