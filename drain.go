package secmem

import (
	"fmt"
	"iter"

	"github.com/veilkit/secmem/memprot"
)

// Drain removes the bytes in [start, end), yielding each removed byte
// in order. Each yielded byte is zeroed in place as ownership passes
// to the caller.
//
// The region stays unlocked while the iteration runs. The cleanup —
// shifting the tail left over the gap, wiping the vacated bytes,
// updating the length, and re-locking — runs in a defer inside the
// iterator, so it happens however the range loop ends: exhaustion,
// break, or panic. An early break skips the remaining yields but never
// the cleanup. A Seq that is never ranged over touches nothing.
//
// The Seq is single use. The first range over it consumes the drained
// bytes and compacts the buffer; ranging it again panics before the
// region is touched.
//
// Panics if the range is inverted or out of bounds, or if the buffer
// is destroyed.
func (b *Buffer) Drain(start, end int) iter.Seq[byte] {
	if b.reg == nil {
		panic(ErrDestroyed)
	}
	if start < 0 || start > end || end > b.len {
		panic(fmt.Sprintf("secmem: drain range [%d, %d) out of bounds for length %d", start, end, b.len))
	}
	consumed := false
	return func(yield func(byte) bool) {
		if consumed {
			panic("secmem: drain sequence ranged over more than once")
		}
		consumed = true
		if b.reg == nil {
			panic(ErrDestroyed)
		}
		if end > b.len {
			panic(fmt.Sprintf("secmem: drain range [%d, %d) out of bounds for length %d", start, end, b.len))
		}
		if err := b.reg.unlock(); err != nil {
			panic(err)
		}
		oldLen := b.len
		tail := oldLen - end
		// Force the post-removal length up front so nothing observes
		// drained bytes through Len mid-iteration.
		b.len = start

		defer func() {
			view := b.reg.blk.data
			copy(view[start:], view[end:oldLen])
			newLen := start + tail
			memprot.Wipe(view[newLen:oldLen])
			b.len = newLen
			if err := b.reg.lock(); err != nil {
				panic(err)
			}
		}()

		for i := start; i < end; i++ {
			v := b.reg.blk.data[i]
			b.reg.blk.data[i] = 0
			if !yield(v) {
				return
			}
		}
	}
}
