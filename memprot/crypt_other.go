//go:build !windows

package memprot

// At-rest memory encryption is a Windows facility (CryptProtectMemory).
// Elsewhere a locked region relies on page protection alone.

// AtRestEncryption reports whether locked regions are encrypted in
// place on this platform. Always false here.
func AtRestEncryption() bool { return false }

// EncryptInPlace is a no-op on this platform.
func EncryptInPlace(b []byte) error { return nil }

// DecryptInPlace is a no-op on this platform.
func DecryptInPlace(b []byte) error { return nil }
