package secmem

import (
	"unicode/utf8"
	"unsafe"

	"github.com/veilkit/secmem/memprot"
)

// Text is a secret UTF-8 string in guarded memory. It wraps a Buffer
// and keeps the contents valid UTF-8 at every observable boundary.
// Character positions are translated to byte offsets by scanning from
// the start on every call; nothing is cached.
type Text struct {
	buf *Buffer
}

// NewText returns an empty text.
func NewText() (*Text, error) {
	buf, err := NewBuffer()
	if err != nil {
		return nil, err
	}
	return &Text{buf: buf}, nil
}

// TextFromString copies s into guarded memory. Go strings are
// immutable, so the source cannot be wiped; prefer TextFromBytes when
// the secret arrives as a byte slice.
func TextFromString(s string) (*Text, error) {
	t, err := NewText()
	if err != nil {
		return nil, err
	}
	if err := t.PushString(s); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// TextFromBytes copies src into guarded memory and wipes src. src must
// be valid UTF-8.
func TextFromBytes(src []byte) (*Text, error) {
	if !utf8.Valid(src) {
		return nil, ErrInvalidUTF8
	}
	buf, err := BufferFromBytes(src)
	if err != nil {
		return nil, err
	}
	return &Text{buf: buf}, nil
}

// Len returns the length in bytes.
func (t *Text) Len() int { return t.buf.Len() }

// CharLen counts the characters by scanning the contents. O(n).
func (t *Text) CharLen() (int, error) {
	n := 0
	err := t.buf.Bytes(func(view []byte) { n = utf8.RuneCount(view) })
	return n, err
}

// PushString appends s. Go strings carry no encoding guarantee, so s
// is validated before it touches guarded memory. The transient byte
// copy of s is wiped after the append.
func (t *Text) PushString(s string) error {
	if s == "" {
		if t.buf.reg == nil {
			return ErrDestroyed
		}
		return nil
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	tmp := []byte(s)
	err := t.buf.Append(tmp)
	memprot.Wipe(tmp)
	return err
}

// Str runs f over the contents as a string. The string header aliases
// guarded memory directly, so it is valid only inside f and must not
// escape; building an ordinary string from it would copy the secret
// onto the unprotected heap.
func (t *Text) Str(f func(s string)) error {
	if t.buf == nil {
		return ErrDestroyed
	}
	return t.buf.Bytes(func(view []byte) {
		f(unsafe.String(unsafe.SliceData(view), len(view)))
	})
}

// Bytes runs f over the raw UTF-8 bytes.
func (t *Text) Bytes(f func(view []byte)) error {
	if t.buf == nil {
		return ErrDestroyed
	}
	return t.buf.Bytes(f)
}

// InsertAt inserts s before the character at charIdx. An index past
// the end appends, a negative index prepends. Within capacity the tail shifts in place; past
// capacity the buffer takes the usual grow-copy-wipe-release path
// first. Returns the number of characters inserted.
func (t *Text) InsertAt(charIdx int, s string) (int, error) {
	if s == "" {
		if t.buf.reg == nil {
			return 0, ErrDestroyed
		}
		return 0, nil
	}
	if !utf8.ValidString(s) {
		return 0, ErrInvalidUTF8
	}
	ins := []byte(s)
	defer memprot.Wipe(ins)

	b := t.buf
	if b.reg == nil {
		return 0, ErrDestroyed
	}
	oldLen := b.len
	newLen := oldLen + len(ins)
	if err := b.Reserve(len(ins)); err != nil {
		return 0, err
	}
	err := b.reg.scope(b.reg.cap, func(view []byte) {
		byteIdx := charToByte(view[:oldLen], charIdx)
		copy(view[byteIdx+len(ins):newLen], view[byteIdx:oldLen])
		copy(view[byteIdx:], ins)
		b.len = newLen
	})
	if err != nil {
		return 0, err
	}
	return utf8.RuneCountInString(s), nil
}

// DeleteChars removes the characters in [startChar, endChar). The tail
// shifts left and the vacated bytes are wiped. An empty or inverted
// range is a no-op.
func (t *Text) DeleteChars(startChar, endChar int) error {
	if startChar >= endChar {
		if t.buf.reg == nil {
			return ErrDestroyed
		}
		return nil
	}
	b := t.buf
	if b.reg == nil {
		return ErrDestroyed
	}
	return b.reg.scope(b.len, func(view []byte) {
		bs := charToByte(view, startChar)
		be := charToByte(view, endChar)
		if bs >= be {
			return
		}
		copy(view[bs:], view[be:])
		newLen := len(view) - (be - bs)
		memprot.Wipe(view[newLen:])
		b.len = newLen
	})
}

// DrainBytes removes the byte range [start, end), discarding the
// removed bytes. The range must fall on character boundaries to keep
// the contents valid UTF-8; DeleteChars is the safe variant.
func (t *Text) DrainBytes(start, end int) {
	for range t.buf.Drain(start, end) {
	}
}

// Erase wipes the contents and resets the length. Capacity is kept.
func (t *Text) Erase() error { return t.buf.Erase() }

// Clone copies the text into an independent allocation.
func (t *Text) Clone() (*Text, error) {
	buf, err := t.buf.Clone()
	if err != nil {
		return nil, err
	}
	return &Text{buf: buf}, nil
}

// Destroy wipes and releases the backing memory. Safe to call twice.
func (t *Text) Destroy() error {
	if t.buf == nil {
		return nil
	}
	return t.buf.Destroy()
}

// charToByte translates a character index to a byte offset by scanning
// from the start. A negative index clamps to 0, an index past the end
// clamps to the byte length.
func charToByte(view []byte, charIdx int) int {
	if charIdx <= 0 {
		return 0
	}
	off, count := 0, 0
	for off < len(view) {
		if count == charIdx {
			return off
		}
		_, size := utf8.DecodeRune(view[off:])
		off += size
		count++
	}
	return len(view)
}
