// Package crypt seals record content with AES-256-GCM and provides the
// SHA-256 Digest type used for content addressing and ledger anchoring.
//
// A fresh nonce is generated per Encrypt call, so the same plaintext
// and key never produce the same ciphertext twice. Decrypt fails with
// a faults.CryptoError on a wrong key, wrong nonce or any ciphertext
// mutation; it never returns garbage plaintext.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/medledger/medledger/pkg/faults"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
)

// NewKey generates a random 32-byte symmetric key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, &faults.CryptoError{Op: "keygen", Err: err}
	}
	return key, nil
}

// Encrypt seals plaintext under key and returns the ciphertext and the
// freshly generated IV. The IV is not prepended to the ciphertext; it
// travels separately on the record document.
func Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	aead, err := newAEAD(key, "encrypt")
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, &faults.CryptoError{Op: "encrypt", Err: err}
	}

	ciphertext = aead.Seal(nil, iv, plaintext, nil)
	return ciphertext, iv, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any mutation of the
// ciphertext, key or IV fails authentication.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	aead, err := newAEAD(key, "decrypt")
	if err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, &faults.CryptoError{
			Op:  "decrypt",
			Err: fmt.Errorf("invalid iv length %d, want %d", len(iv), IVSize),
		}
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &faults.CryptoError{
			Op:  "decrypt",
			Err: errors.New("ciphertext authentication failed"),
		}
	}
	return plaintext, nil
}

func newAEAD(key []byte, op string) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, &faults.CryptoError{
			Op:  op,
			Err: fmt.Errorf("invalid key length %d, want %d", len(key), KeySize),
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &faults.CryptoError{Op: op, Err: err}
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &faults.CryptoError{Op: op, Err: err}
	}
	return aead, nil
}
