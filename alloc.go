package secmem

import (
	"fmt"
	"sync"

	"github.com/veilkit/secmem/memprot"
)

// origin records which platform facility produced a block so that
// release can dispatch to the matching free call.
type origin uint32

const (
	originMapped origin = 0x6d617070 // ordinary secure mapping
	originSecret origin = 0x73637274 // memfd_secret backing
)

// block is one raw allocation. data spans the full page-rounded size.
type block struct {
	data   []byte
	secret *memprot.SecretBlock // set only when tag == originSecret
	tag    origin
}

var preferSecret = sync.OnceValue(memprot.SecretSupported)

// allocate returns a page-rounded, zero-filled, swap-pinned block of
// at least size bytes. The secret-backed facility is preferred where
// the kernel provides it; failure there falls back silently to the
// ordinary secure mapping.
func allocate(size int) (*block, error) {
	if size <= 0 {
		return nil, ErrLengthCannotBeZero
	}
	rounded := memprot.RoundToPageSize(size)

	if preferSecret() {
		sb, err := memprot.SecretAlloc(rounded)
		if err == nil {
			if len(sb.Data) == 0 {
				sb.Free()
				return nil, ErrNullAllocation
			}
			// Secret pages are unswappable by construction; no
			// separate pinning step.
			return &block{data: sb.Data, secret: sb, tag: originSecret}, nil
		}
	}

	data, err := memprot.Default.Alloc(rounded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if len(data) == 0 {
		return nil, ErrNullAllocation
	}
	if err := memprot.Default.Lock(data); err != nil {
		memprot.Default.Free(data)
		return nil, fmt.Errorf("%w: %v", ErrLockFailed, err)
	}
	return &block{data: data, tag: originMapped}, nil
}

// release returns a block to the facility that produced it. The caller
// wipes the contents first. A tag matching neither origin means the
// allocator's bookkeeping was overwritten or the block was already
// freed; that is memory corruption, and guessing a release path would
// risk a double free, so it is fatal.
func release(b *block) error {
	switch b.tag {
	case originSecret:
		sb := b.secret
		b.data, b.secret, b.tag = nil, nil, 0
		return sb.Free()
	case originMapped:
		data := b.data
		b.data, b.tag = nil, 0
		if err := memprot.Default.Unlock(data); err != nil {
			return err
		}
		return memprot.Default.Free(data)
	}
	panic(fmt.Sprintf("secmem: corrupt allocation tag %#x", uint32(b.tag)))
}
