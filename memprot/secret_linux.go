//go:build linux

package memprot

import (
	"sync"

	"golang.org/x/sys/unix"
)

// SecretBlock is a mapping backed by memfd_secret(2). The kernel
// removes these pages from its own direct map: they cannot be read by
// other processes, swapped, or included in kernel crash dumps.
type SecretBlock struct {
	Data []byte
	fd   int
}

var secretSupported = sync.OnceValue(func() bool {
	fd, err := unix.MemfdSecret(0)
	if err != nil {
		// ENOSYS on old kernels, EINVAL when booted with
		// secretmem disabled. Either way: unsupported.
		return false
	}
	unix.Close(fd)
	return true
})

// SecretSupported reports whether the running kernel provides
// memfd_secret. The probe runs at most once; failure is not an error,
// callers fall back to the ordinary allocation path.
func SecretSupported() bool { return secretSupported() }

// SecretAlloc maps size bytes of secret-backed memory. size must be a
// page multiple. The mapping starts zero-filled and readable/writable.
func SecretAlloc(size int) (*SecretBlock, error) {
	fd, err := unix.MemfdSecret(0)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	b, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &SecretBlock{Data: b, fd: fd}, nil
}

// Free unmaps the secret mapping and closes its file descriptor. The
// caller wipes the contents first. Safe to call twice.
func (b *SecretBlock) Free() error {
	if b.Data == nil {
		return nil
	}
	err := unix.Munmap(b.Data)
	if cerr := unix.Close(b.fd); err == nil {
		err = cerr
	}
	b.Data = nil
	b.fd = -1
	return err
}
