package secmem

import "errors"

var (
	// ErrAllocationFailed indicates the platform could not provide a
	// secure memory region.
	ErrAllocationFailed = errors.New("secmem: failed to allocate secure memory")

	// ErrNullAllocation indicates the platform reported success but
	// returned an empty mapping.
	ErrNullAllocation = errors.New("secmem: allocator returned an empty mapping")

	// ErrLengthCannotBeZero rejects zero-capacity construction.
	ErrLengthCannotBeZero = errors.New("secmem: length cannot be zero")

	// ErrLockFailed indicates a protection or swap-lock step failed
	// while sealing a region.
	ErrLockFailed = errors.New("secmem: failed to lock memory")

	// ErrUnlockFailed indicates a protection or decryption step failed
	// while opening a region.
	ErrUnlockFailed = errors.New("secmem: failed to unlock memory")

	// ErrLengthMismatch rejects a fixed-size conversion whose source
	// length does not equal the fixed size.
	ErrLengthMismatch = errors.New("secmem: source length does not match fixed buffer size")

	// ErrDestroyed reports use of a container after Destroy.
	ErrDestroyed = errors.New("secmem: container already destroyed")

	// ErrInvalidUTF8 rejects text construction from bytes that are not
	// valid UTF-8.
	ErrInvalidUTF8 = errors.New("secmem: bytes are not valid UTF-8")
)
