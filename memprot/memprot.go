// Package memprot wraps the operating system primitives used to keep
// secret material out of swap and unreadable between uses: page-aligned
// allocation, page protection toggling, locking against swap, and the
// optional platform facilities (secret-backed anonymous memory on
// Linux, at-rest memory encryption on Windows).
package memprot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	"github.com/awnumar/memcall"
)

// Protection selects the page protection applied to a region.
type Protection int

const (
	// NoAccess marks the pages unreadable and unwritable. Any access
	// triggers a hardware fault.
	NoAccess Protection = iota

	// ReadWrite marks the pages readable and writable.
	ReadWrite
)

// Interface is the platform surface consumed by the allocator and the
// guarded regions. Default supplies the real implementation; tests may
// substitute their own.
type Interface interface {
	// Alloc maps size bytes of page-aligned anonymous memory,
	// zero-filled.
	Alloc(size int) ([]byte, error)

	// Free unmaps a region returned by Alloc.
	Free(b []byte) error

	// Protect applies the given page protection to the region.
	Protect(b []byte, p Protection) error

	// Lock pins the region's pages so they are never written to swap.
	Lock(b []byte) error

	// Unlock releases a Lock.
	Unlock(b []byte) error
}

// Default is the memcall-backed implementation of Interface.
var Default Interface = wrapper{}

type wrapper struct{}

func (wrapper) Alloc(size int) ([]byte, error) { return memcall.Alloc(size) }
func (wrapper) Free(b []byte) error            { return memcall.Free(b) }
func (wrapper) Lock(b []byte) error            { return memcall.Lock(b) }
func (wrapper) Unlock(b []byte) error          { return memcall.Unlock(b) }

func (wrapper) Protect(b []byte, p Protection) error {
	switch p {
	case NoAccess:
		return memcall.Protect(b, memcall.NoAccess())
	case ReadWrite:
		return memcall.Protect(b, memcall.ReadWrite())
	}
	return fmt.Errorf("memprot: unknown protection %d", p)
}

var pageSize = sync.OnceValue(os.Getpagesize)

// PageSize returns the system page size. Probed once per process.
func PageSize() int { return pageSize() }

// RoundToPageSize rounds n up to the next multiple of the page size.
// Any page multiple also satisfies the at-rest encryption block size.
func RoundToPageSize(n int) int {
	ps := PageSize()
	return (n + ps - 1) / ps * ps
}

// Wipe overwrites b with zero bytes.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// EncryptBlockSize is the block granularity required by the at-rest
// encryption facility.
const EncryptBlockSize = 16

// ErrSecretUnsupported is returned by SecretAlloc on platforms without
// a secret-backed memory facility.
var ErrSecretUnsupported = errors.New("memprot: secret-backed memory not supported")

// ErrEncryptSize is returned when a region cannot be encrypted at
// rest: the length must be a nonzero multiple of EncryptBlockSize and
// fit in 32 bits.
var ErrEncryptSize = errors.New("memprot: region size unsupported by at-rest encryption")

func checkEncryptSize(n int) error {
	if n == 0 || n%EncryptBlockSize != 0 || int64(n) > math.MaxUint32 {
		return ErrEncryptSize
	}
	return nil
}
