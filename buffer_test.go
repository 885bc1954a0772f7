package secmem

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/veilkit/secmem/memprot"
)

// contents snapshots the live bytes of a buffer.
func contents(t *testing.T, b *Buffer) []byte {
	t.Helper()
	var out []byte
	if err := b.Bytes(func(view []byte) {
		out = append([]byte(nil), view...)
	}); err != nil {
		t.Fatalf("read buffer: %v", err)
	}
	return out
}

func TestBufferFromBytesRoundTrip(t *testing.T) {
	src := []byte{0xAB, 0xCD, 0xEF}
	want := append([]byte(nil), src...)

	b, err := BufferFromBytes(src)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	// The source is consumed.
	for i, v := range src {
		if v != 0 {
			t.Errorf("source byte %d = %d after construction, want 0", i, v)
		}
	}
	if got := contents(t, b); !bytes.Equal(got, want) {
		t.Errorf("contents = %v, want %v", got, want)
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}
}

func TestBufferFromReader(t *testing.T) {
	want := bytes.Repeat([]byte{1, 2, 3, 4, 5}, 2000) // spans chunks
	b, err := BufferFromReader(bytes.NewReader(want))
	if err != nil {
		t.Fatalf("from reader: %v", err)
	}
	defer b.Destroy()

	if got := contents(t, b); !bytes.Equal(got, want) {
		t.Errorf("contents differ after reader construction (%d vs %d bytes)", len(got), len(want))
	}
}

func TestPushAndAppend(t *testing.T) {
	b, err := NewBuffer()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	for i := range 5 {
		if err := b.Push(byte(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := b.Append([]byte{5, 6, 7}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := contents(t, b); !bytes.Equal(got, []byte{0, 1, 2, 3, 4, 5, 6, 7}) {
		t.Errorf("contents = %v", got)
	}
}

func TestGrowthIsAmortizedDoubling(t *testing.T) {
	b, err := NewBuffer()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	var caps []int
	last := -1
	for i := range 33 {
		if err := b.Push(byte(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if c := b.Cap(); c != last {
			caps = append(caps, c)
			last = c
		}
	}
	want := []int{1, 2, 4, 8, 16, 32, 64}
	if !slices.Equal(caps, want) {
		t.Errorf("capacity sequence = %v, want %v", caps, want)
	}
	for i := 1; i < len(caps); i++ {
		if caps[i]-caps[i-1] == 1 && caps[i] != 2 {
			t.Errorf("capacity grew by one: %v", caps)
		}
	}
}

func TestReserve(t *testing.T) {
	b, err := NewBuffer()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	if err := b.Reserve(10); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if b.Cap() != 10 {
		t.Fatalf("Cap = %d after Reserve(10), want 10", b.Cap())
	}

	for i := range 10 {
		if err := b.Push(byte(i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if b.Cap() != 10 || b.Len() != 10 {
		t.Fatalf("Len/Cap = %d/%d, want 10/10", b.Len(), b.Cap())
	}

	if err := b.Push(10); err != nil {
		t.Fatalf("push past capacity: %v", err)
	}
	if b.Cap() != 20 || b.Len() != 11 {
		t.Fatalf("Len/Cap = %d/%d after doubling, want 11/20", b.Len(), b.Cap())
	}
}

func TestReserveSufficientIsNoop(t *testing.T) {
	b, err := NewBufferCap(8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	if err := b.Reserve(8); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if b.Cap() != 8 {
		t.Errorf("Cap = %d, want 8 (no growth needed)", b.Cap())
	}
}

func TestErasePreservesCapacity(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	if err := b.Erase(); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after erase, want 0", b.Len())
	}
	if b.Cap() != 3 {
		t.Errorf("Cap = %d after erase, want 3", b.Cap())
	}
	if got := contents(t, b); len(got) != 0 {
		t.Errorf("scope observed %v after erase, want empty", got)
	}

	// Re-pushing reuses the retained capacity without reallocating.
	for i := range 3 {
		if err := b.Push(byte(i + 1)); err != nil {
			t.Fatalf("push after erase: %v", err)
		}
	}
	if b.Cap() != 3 {
		t.Errorf("Cap = %d after refilling, want 3", b.Cap())
	}
	if got := contents(t, b); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("contents = %v after refill", got)
	}
}

func TestDrain(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	var got []byte
	for v := range b.Drain(0, 3) {
		got = append(got, v)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("drained %v, want [1 2 3]", got)
	}
	if b.Len() != 7 {
		t.Errorf("Len = %d after drain, want 7", b.Len())
	}
	if rest := contents(t, b); !bytes.Equal(rest, []byte{4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("remainder = %v", rest)
	}
}

func TestDrainMiddle(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	var got []byte
	for v := range b.Drain(2, 4) {
		got = append(got, v)
	}
	if !bytes.Equal(got, []byte{3, 4}) {
		t.Errorf("drained %v, want [3 4]", got)
	}
	if rest := contents(t, b); !bytes.Equal(rest, []byte{1, 2, 5, 6}) {
		t.Errorf("remainder = %v, want [1 2 5 6]", rest)
	}
}

func TestDrainAbandonedStillCleansUp(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	// Break after the first yield. The whole range is still removed,
	// the tail compacted, and the region re-locked.
	for v := range b.Drain(0, 3) {
		if v != 1 {
			t.Errorf("first drained byte = %d, want 1", v)
		}
		break
	}
	if b.Len() != 7 {
		t.Errorf("Len = %d after abandoned drain, want 7", b.Len())
	}
	if rest := contents(t, b); !bytes.Equal(rest, []byte{4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("remainder = %v", rest)
	}

	// The buffer is locked and fully usable again.
	if err := b.Push(11); err != nil {
		t.Fatalf("push after abandoned drain: %v", err)
	}
}

func TestDrainOutOfRangePanics(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	for _, r := range [][2]int{{-1, 2}, {2, 1}, {0, 4}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Drain(%d, %d) did not panic", r[0], r[1])
				}
			}()
			b.Drain(r[0], r[1])
		}()
	}
}

func TestDrainSequenceIsSingleUse(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	seq := b.Drain(5, 10)
	for range seq {
	}
	if b.Len() != 5 {
		t.Fatalf("Len = %d after drain, want 5", b.Len())
	}

	// Ranging the same sequence again panics before the region is
	// touched, so the buffer stays locked and intact.
	func() {
		defer func() {
			if recover() == nil {
				t.Error("second range over a drain sequence did not panic")
			}
		}()
		for range seq {
		}
	}()
	if got := contents(t, b); !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("contents = %v after reused sequence, want [1 2 3 4 5]", got)
	}
	if err := b.Push(6); err != nil {
		t.Fatalf("push after reused sequence: %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer orig.Destroy()

	dup, err := orig.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	defer dup.Destroy()

	if got := contents(t, dup); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("clone contents = %v", got)
	}
	if dup.Cap() != orig.Cap() {
		t.Errorf("clone Cap = %d, want %d", dup.Cap(), orig.Cap())
	}

	if err := dup.MutBytes(func(view []byte) { view[0] = 99 }); err != nil {
		t.Fatalf("mutate clone: %v", err)
	}
	if got := contents(t, orig); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("mutating the clone changed the original: %v", got)
	}
}

func TestUninitFill(t *testing.T) {
	b, err := NewBufferCap(8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	if err := b.Uninit(func(view []byte) {
		if len(view) != 8 {
			t.Errorf("uninit view is %d bytes, want 8", len(view))
		}
		for i := range view[:4] {
			view[i] = byte(i + 1)
		}
	}); err != nil {
		t.Fatalf("uninit: %v", err)
	}
	b.SetLen(4)
	if got := contents(t, b); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("contents = %v", got)
	}
}

func TestSetLenOutOfRangePanics(t *testing.T) {
	b, err := NewBufferCap(4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer b.Destroy()

	defer func() {
		if recover() == nil {
			t.Fatal("SetLen(5) on capacity 4 did not panic")
		}
	}()
	b.SetLen(5)
}

func TestScopeRelocksOnPanic(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	defer b.Destroy()

	func() {
		defer func() { recover() }()
		b.Bytes(func(view []byte) {
			panic("closure failure")
		})
	}()

	// The region was re-locked on the panic path; a fresh scope still
	// works and sees the original contents.
	if got := contents(t, b); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("contents = %v after panicking scope", got)
	}
}

// flakyProt delegates to the real implementation but fails the Nth
// NoAccess protect, simulating a re-lock failure mid-operation.
type flakyProt struct {
	memprot.Interface
	noAccessCalls int
	failOn        int
}

func (p *flakyProt) Protect(b []byte, prot memprot.Protection) error {
	if prot == memprot.NoAccess {
		p.noAccessCalls++
		if p.noAccessCalls == p.failOn {
			return errors.New("protect refused")
		}
	}
	return p.Interface.Protect(b, prot)
}

func TestReserveRelockFailurePanics(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}

	// The grow path protects NoAccess twice: once constructing the new
	// region, once re-locking it at the end. Fail the second. A region
	// that cannot be re-locked must not be reported as a mere error.
	orig := memprot.Default
	defer func() {
		memprot.Default = orig
		b.Destroy()
	}()
	memprot.Default = &flakyProt{Interface: orig, failOn: 2}

	defer func() {
		if recover() == nil {
			t.Error("re-lock failure during grow did not panic")
		}
	}()
	b.Reserve(8)
}

func TestDestroyedBufferErrors(t *testing.T) {
	b, err := BufferFromBytes([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	if err := b.Bytes(func([]byte) {}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Bytes after destroy = %v, want ErrDestroyed", err)
	}
	if err := b.Push(1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Push after destroy = %v, want ErrDestroyed", err)
	}
	if err := b.Erase(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Erase after destroy = %v, want ErrDestroyed", err)
	}
	if _, err := b.Clone(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Clone after destroy = %v, want ErrDestroyed", err)
	}
	if b.Cap() != 0 || b.Len() != 0 {
		t.Errorf("Len/Cap = %d/%d after destroy", b.Len(), b.Cap())
	}
}

func TestZeroCapacityConstructionRejected(t *testing.T) {
	if _, err := NewFixed(0); !errors.Is(err, ErrLengthCannotBeZero) {
		t.Errorf("NewFixed(0) = %v, want ErrLengthCannotBeZero", err)
	}
	// The growable buffer raises the floor to one instead.
	b, err := NewBufferCap(0)
	if err != nil {
		t.Fatalf("NewBufferCap(0): %v", err)
	}
	defer b.Destroy()
	if b.Cap() != 1 {
		t.Errorf("Cap = %d, want floor of 1", b.Cap())
	}
}
