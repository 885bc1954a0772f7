package secmem

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/veilkit/secmem/memprot"
)

// Serialization adapters. Buffer and Fixed marshal to the identical
// cbor byte string for identical contents, so the two container shapes
// are interchangeable on the wire. Text marshals as a cbor text
// string.
//
// Marshaling necessarily produces plaintext output; the encoded bytes
// are the caller's to protect. Decoded input is wiped once it has been
// copied into guarded memory.

var (
	_ cbor.Marshaler   = (*Buffer)(nil)
	_ cbor.Unmarshaler = (*Buffer)(nil)
	_ cbor.Marshaler   = (*Fixed)(nil)
	_ cbor.Unmarshaler = (*Fixed)(nil)
	_ cbor.Marshaler   = (*Text)(nil)
	_ cbor.Unmarshaler = (*Text)(nil)
)

// MarshalCBOR encodes the live contents as a cbor byte string.
func (b *Buffer) MarshalCBOR() ([]byte, error) {
	var out []byte
	var merr error
	err := b.Bytes(func(view []byte) {
		out, merr = cbor.Marshal(view)
	})
	if err == nil {
		err = merr
	}
	return out, err
}

// UnmarshalCBOR replaces the buffer's contents with the decoded byte
// string. Any previous contents are destroyed first.
func (b *Buffer) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	nb, err := BufferFromBytes(raw)
	if err != nil {
		memprot.Wipe(raw)
		return err
	}
	if b.reg != nil {
		if err := b.Destroy(); err != nil {
			nb.Destroy()
			return err
		}
	}
	*b = *nb
	return nil
}

// MarshalCBOR encodes the contents as a cbor byte string. The output
// is byte-identical to a Buffer holding the same bytes.
func (f *Fixed) MarshalCBOR() ([]byte, error) {
	var out []byte
	var merr error
	err := f.Bytes(func(view []byte) {
		out, merr = cbor.Marshal(view)
	})
	if err == nil {
		err = merr
	}
	return out, err
}

// UnmarshalCBOR replaces the contents with the decoded byte string.
// When the target already has a size, input of any other length is
// rejected with ErrLengthMismatch; a zero-value target adopts the
// decoded length.
func (f *Fixed) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	if f.size != 0 && len(raw) != f.size {
		memprot.Wipe(raw)
		return ErrLengthMismatch
	}
	nf, err := FixedFromBytes(raw)
	if err != nil {
		memprot.Wipe(raw)
		return err
	}
	if f.reg != nil {
		if err := f.Destroy(); err != nil {
			nf.Destroy()
			return err
		}
	}
	*f = *nf
	return nil
}

// MarshalCBOR encodes the contents as a cbor text string.
func (t *Text) MarshalCBOR() ([]byte, error) {
	var out []byte
	var merr error
	err := t.Str(func(s string) {
		out, merr = cbor.Marshal(s)
	})
	if err == nil {
		err = merr
	}
	return out, err
}

// UnmarshalCBOR replaces the contents with the decoded text string.
func (t *Text) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	nt, err := TextFromString(s)
	if err != nil {
		return err
	}
	if t.buf != nil && t.buf.reg != nil {
		if err := t.Destroy(); err != nil {
			nt.Destroy()
			return err
		}
	}
	*t = *nt
	return nil
}
