//go:build !linux

package memprot

// Secret-backed anonymous memory is a Linux facility (memfd_secret).
// Other platforms use the ordinary secure allocation path.

// SecretBlock is a mapping backed by the platform's secret-memory
// facility. Never produced on this platform.
type SecretBlock struct {
	Data []byte
}

// SecretSupported reports whether the platform provides secret-backed
// memory. Always false here.
func SecretSupported() bool { return false }

// SecretAlloc always fails on this platform.
func SecretAlloc(size int) (*SecretBlock, error) {
	return nil, ErrSecretUnsupported
}

// Free releases the mapping. No-op on this platform.
func (b *SecretBlock) Free() error { return nil }
