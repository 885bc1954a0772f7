//go:build !windows

package main

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// sealValue encrypts plaintext with nacl/secretbox under the
// passphrase-derived key. Returns nonce (24 bytes) + ciphertext.
func sealValue(key *[32]byte, plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// openValue decrypts data sealed with sealValue.
// Expects nonce (24 bytes) + ciphertext.
func openValue(key *[32]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24+secretbox.Overhead {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("open failed: wrong passphrase or corrupt record")
	}
	return plaintext, nil
}
