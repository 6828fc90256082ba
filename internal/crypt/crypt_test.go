package crypt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger/pkg/faults"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("CBC panel: WBC 6.1, RBC 4.8, HGB 14.2")

	ciphertext, iv, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	require.Len(t, iv, IVSize)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(ciphertext, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptFreshIVPerCall(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same plaintext")

	ct1, iv1, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	ct2, iv2, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(iv1, iv2), "IV must be fresh per call")
	assert.False(t, bytes.Equal(ct1, ct2), "ciphertext must differ per call")
}

func TestDecryptDetectsTampering(t *testing.T) {
	key := testKey(t)
	ciphertext, iv, err := Encrypt([]byte("blood panel"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)/2] ^= 0x01

	_, err = Decrypt(ciphertext, key, iv)
	require.Error(t, err)
	var ce *faults.CryptoError
	assert.ErrorAs(t, err, &ce)
}

func TestDecryptWrongKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	ciphertext, iv, err := Encrypt([]byte("blood panel"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, other, iv)
	var ce *faults.CryptoError
	assert.ErrorAs(t, err, &ce)
}

func TestDecryptInvalidKeyAndIVSizes(t *testing.T) {
	key := testKey(t)
	ciphertext, iv, err := Encrypt([]byte("x"), key)
	require.NoError(t, err)

	var ce *faults.CryptoError
	_, err = Decrypt(ciphertext, key[:16], iv)
	assert.ErrorAs(t, err, &ce)

	_, err = Decrypt(ciphertext, key, iv[:4])
	assert.ErrorAs(t, err, &ce)

	_, _, err = Encrypt([]byte("x"), []byte("short"))
	assert.ErrorAs(t, err, &ce)
}
