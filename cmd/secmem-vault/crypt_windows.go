//go:build windows

package main

import (
	"github.com/billgraziano/dpapi"
)

// sealValue encrypts plaintext using Windows DPAPI. The derived key is
// unused here; DPAPI keys the ciphertext to the user account instead.
func sealValue(_ *[32]byte, plaintext []byte) ([]byte, error) {
	return dpapi.EncryptBytes(plaintext)
}

// openValue decrypts data sealed with sealValue.
func openValue(_ *[32]byte, ciphertext []byte) ([]byte, error) {
	return dpapi.DecryptBytes(ciphertext)
}
