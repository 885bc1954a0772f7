package secmem

import (
	"io"

	"github.com/veilkit/secmem/memprot"
)

// Buffer is a growable byte container held in guarded memory. The
// backing pages are no-access except inside a scope call, pinned
// against swap, and wiped before any release or reallocation.
//
// A Buffer is not internally synchronized.
type Buffer struct {
	reg *region
	len int
}

// NewBuffer returns an empty buffer. A minimum capacity of one byte is
// always allocated so protection and at-rest encryption have a region
// to act on.
func NewBuffer() (*Buffer, error) {
	return NewBufferCap(1)
}

// NewBufferCap returns an empty buffer with room for capacity bytes.
// A capacity below one is raised to one.
func NewBufferCap(capacity int) (*Buffer, error) {
	if capacity < 1 {
		capacity = 1
	}
	reg, err := newRegion(capacity)
	if err != nil {
		return nil, err
	}
	return &Buffer{reg: reg}, nil
}

// BufferFromBytes copies src into a new buffer, then wipes src. The
// caller keeps no readable copy.
func BufferFromBytes(src []byte) (*Buffer, error) {
	b, err := NewBufferCap(len(src))
	if err != nil {
		return nil, err
	}
	b.len = len(src)
	if err := b.reg.scope(b.len, func(dst []byte) { copy(dst, src) }); err != nil {
		b.Destroy()
		return nil, err
	}
	memprot.Wipe(src)
	return b, nil
}

// BufferFromReader drains r into a new buffer. Each chunk is wiped
// after it is copied in, so no plaintext larger than one chunk ever
// sits outside guarded memory.
func BufferFromReader(r io.Reader) (*Buffer, error) {
	b, err := NewBuffer()
	if err != nil {
		return nil, err
	}
	chunk := make([]byte, 4096)
	defer memprot.Wipe(chunk)
	for {
		n, rerr := r.Read(chunk)
		if n > 0 {
			if err := b.Append(chunk[:n]); err != nil {
				b.Destroy()
				return nil, err
			}
			memprot.Wipe(chunk[:n])
		}
		if rerr == io.EOF {
			return b, nil
		}
		if rerr != nil {
			b.Destroy()
			return nil, rerr
		}
	}
}

// Len returns the logical length in bytes.
func (b *Buffer) Len() int { return b.len }

// Cap returns the current capacity in bytes.
func (b *Buffer) Cap() int {
	if b.reg == nil {
		return 0
	}
	return b.reg.cap
}

// Bytes runs f over the live contents with protection dropped. The
// view is valid only inside f and must not escape it.
func (b *Buffer) Bytes(f func(view []byte)) error {
	if b.reg == nil {
		return ErrDestroyed
	}
	return b.reg.scope(b.len, f)
}

// MutBytes is Bytes with a view intended for mutation. Writing past
// the view does not change the logical length; use Push or Append to
// grow.
func (b *Buffer) MutBytes(f func(view []byte)) error {
	return b.Bytes(f)
}

// Uninit runs f over the full capacity, including bytes beyond Len
// that may hold stale data. For fill-then-SetLen flows such as reading
// from a socket or a random source.
func (b *Buffer) Uninit(f func(view []byte)) error {
	if b.reg == nil {
		return ErrDestroyed
	}
	return b.reg.scope(b.reg.cap, f)
}

// SetLen sets the logical length after an Uninit fill. n must be
// within capacity.
func (b *Buffer) SetLen(n int) {
	if n < 0 || b.reg == nil || n > b.reg.cap {
		panic("secmem: SetLen out of range")
	}
	b.len = n
}

// Push appends one byte, growing the buffer if it is full.
func (b *Buffer) Push(v byte) error {
	if err := b.Reserve(1); err != nil {
		return err
	}
	return b.reg.scope(b.reg.cap, func(view []byte) {
		view[b.len] = v
		b.len++
	})
}

// Append appends src, growing the buffer as needed. src is not wiped;
// use BufferFromBytes when the source itself is the secret.
func (b *Buffer) Append(src []byte) error {
	if len(src) == 0 {
		if b.reg == nil {
			return ErrDestroyed
		}
		return nil
	}
	if err := b.Reserve(len(src)); err != nil {
		return err
	}
	return b.reg.scope(b.reg.cap, func(view []byte) {
		copy(view[b.len:], src)
		b.len += len(src)
	})
}

// Reserve ensures capacity for at least additional more bytes. Growth
// is amortized doubling: the new capacity is the larger of twice the
// current capacity and the exact requirement. When the buffer moves,
// the live bytes are copied across and the old region is wiped in full
// before its block is released.
func (b *Buffer) Reserve(additional int) error {
	if b.reg == nil {
		return ErrDestroyed
	}
	if additional <= 0 || b.len+additional <= b.reg.cap {
		return nil
	}
	required := b.len + additional
	newCap := b.reg.cap * 2
	if newCap < required {
		newCap = required
	}

	newReg, err := newRegion(newCap)
	if err != nil {
		return err
	}
	if err := newReg.unlock(); err != nil {
		newReg.destroy()
		return err
	}
	if err := b.reg.unlock(); err != nil {
		memprot.Wipe(newReg.view())
		newReg.destroy()
		return err
	}

	copy(newReg.view(), b.reg.view()[:b.len])
	memprot.Wipe(b.reg.blk.data)

	old := b.reg.blk
	b.reg.blk = nil
	b.reg = newReg

	freeErr := release(old)
	// A region that cannot be re-locked leaves the secret readable with
	// the process still running; there is no safe way to continue.
	if err := newReg.lock(); err != nil {
		panic(err)
	}
	return freeErr
}

// Erase wipes the live contents and resets the length to zero. The
// capacity is preserved for reuse; no reallocation happens.
func (b *Buffer) Erase() error {
	if b.reg == nil {
		return ErrDestroyed
	}
	if err := b.reg.scope(b.len, func(view []byte) { memprot.Wipe(view) }); err != nil {
		return err
	}
	b.len = 0
	return nil
}

// Clear resets the length to zero without wiping. The bytes stay in
// the region until overwritten or erased.
func (b *Buffer) Clear() { b.len = 0 }

// Clone copies the live contents into an independent allocation of
// equal capacity. The two buffers never share backing memory.
func (b *Buffer) Clone() (*Buffer, error) {
	if b.reg == nil {
		return nil, ErrDestroyed
	}
	dup, err := NewBufferCap(b.reg.cap)
	if err != nil {
		return nil, err
	}
	dup.len = b.len
	var inner error
	err = b.reg.scope(b.len, func(src []byte) {
		inner = dup.reg.scope(len(src), func(dst []byte) { copy(dst, src) })
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

// IntoFixed moves the contents into a fixed buffer of exactly size
// bytes. Fails with ErrLengthMismatch unless Len equals size. On
// success the source buffer is destroyed; no residual copy remains.
func (b *Buffer) IntoFixed(size int) (*Fixed, error) {
	if b.reg == nil {
		return nil, ErrDestroyed
	}
	if b.len != size {
		return nil, ErrLengthMismatch
	}
	f, err := NewFixed(size)
	if err != nil {
		return nil, err
	}
	var inner error
	err = b.reg.scope(b.len, func(src []byte) {
		inner = f.reg.scope(f.size, func(dst []byte) { copy(dst, src) })
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		f.Destroy()
		return nil, err
	}
	if err := b.Destroy(); err != nil {
		f.Destroy()
		return nil, err
	}
	return f, nil
}

// Peek reads the byte at index i without opening a scope. Outside a
// scope the backing pages are no-access, so Peek on a locked buffer
// terminates the process with an OS access fault instead of returning
// anything. Prefer the scoped views; Peek exists so that misuse is
// loud.
func (b *Buffer) Peek(i int) byte {
	if b.reg == nil {
		panic(ErrDestroyed)
	}
	if i < 0 || i >= b.len {
		panic("secmem: index out of range")
	}
	return b.reg.blk.data[i]
}

// Destroy wipes the region and releases it. Further operations return
// ErrDestroyed. Safe to call twice.
func (b *Buffer) Destroy() error {
	if b.reg == nil {
		return nil
	}
	err := b.reg.destroy()
	b.reg = nil
	b.len = 0
	return err
}
