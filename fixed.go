package secmem

import (
	"crypto/rand"

	"github.com/veilkit/secmem/memprot"
)

// Fixed is a secret container whose size is set at construction and
// never changes. It shares the Buffer's guard contract but has no
// growth path; length and capacity are always equal.
type Fixed struct {
	reg  *region
	size int
}

// NewFixed returns a zero-filled fixed buffer of size bytes. Zero or
// negative sizes are rejected with ErrLengthCannotBeZero.
func NewFixed(size int) (*Fixed, error) {
	reg, err := newRegion(size)
	if err != nil {
		return nil, err
	}
	return &Fixed{reg: reg, size: size}, nil
}

// FixedFromBytes copies src into a new fixed buffer of exactly
// len(src) bytes, then wipes src.
func FixedFromBytes(src []byte) (*Fixed, error) {
	f, err := NewFixed(len(src))
	if err != nil {
		return nil, err
	}
	if err := f.reg.scope(f.size, func(dst []byte) { copy(dst, src) }); err != nil {
		f.Destroy()
		return nil, err
	}
	memprot.Wipe(src)
	return f, nil
}

// NewFixedRandom fills a new fixed buffer with cryptographically
// secure random bytes. The randomness never leaves guarded memory.
func NewFixedRandom(size int) (*Fixed, error) {
	f, err := NewFixed(size)
	if err != nil {
		return nil, err
	}
	var rerr error
	err = f.reg.scope(f.size, func(dst []byte) {
		_, rerr = rand.Read(dst)
	})
	if err == nil {
		err = rerr
	}
	if err != nil {
		f.Destroy()
		return nil, err
	}
	return f, nil
}

// Size returns the fixed size in bytes.
func (f *Fixed) Size() int { return f.size }

// Bytes runs fn over the contents with protection dropped. The view is
// valid only inside fn.
func (f *Fixed) Bytes(fn func(view []byte)) error {
	if f.reg == nil {
		return ErrDestroyed
	}
	return f.reg.scope(f.size, fn)
}

// MutBytes is Bytes with a view intended for mutation.
func (f *Fixed) MutBytes(fn func(view []byte)) error {
	return f.Bytes(fn)
}

// Erase wipes the contents. The container stays usable; its size does
// not change.
func (f *Fixed) Erase() error {
	return f.Bytes(func(view []byte) { memprot.Wipe(view) })
}

// Clone copies the contents into an independent allocation.
func (f *Fixed) Clone() (*Fixed, error) {
	if f.reg == nil {
		return nil, ErrDestroyed
	}
	dup, err := NewFixed(f.size)
	if err != nil {
		return nil, err
	}
	var inner error
	err = f.reg.scope(f.size, func(src []byte) {
		inner = dup.reg.scope(dup.size, func(dst []byte) { copy(dst, src) })
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		dup.Destroy()
		return nil, err
	}
	return dup, nil
}

// IntoBuffer moves the contents into a growable buffer of equal
// length and capacity. On success the fixed buffer is destroyed; no
// residual copy remains.
func (f *Fixed) IntoBuffer() (*Buffer, error) {
	if f.reg == nil {
		return nil, ErrDestroyed
	}
	b, err := NewBufferCap(f.size)
	if err != nil {
		return nil, err
	}
	b.len = f.size
	var inner error
	err = f.reg.scope(f.size, func(src []byte) {
		inner = b.reg.scope(b.len, func(dst []byte) { copy(dst, src) })
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		b.Destroy()
		return nil, err
	}
	if err := f.Destroy(); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Peek reads the byte at index i without opening a scope. On a locked
// container this faults at the OS level and terminates the process;
// see Buffer.Peek.
func (f *Fixed) Peek(i int) byte {
	if f.reg == nil {
		panic(ErrDestroyed)
	}
	if i < 0 || i >= f.size {
		panic("secmem: index out of range")
	}
	return f.reg.blk.data[i]
}

// Destroy wipes the region and releases it. Safe to call twice.
func (f *Fixed) Destroy() error {
	if f.reg == nil {
		return nil
	}
	err := f.reg.destroy()
	f.reg = nil
	f.size = 0
	return err
}
