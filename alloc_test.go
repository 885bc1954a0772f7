package secmem

import (
	"testing"

	"github.com/veilkit/secmem/memprot"
)

func TestAllocateRejectsZeroSize(t *testing.T) {
	for _, size := range []int{0, -1, -4096} {
		if _, err := allocate(size); err != ErrLengthCannotBeZero {
			t.Errorf("allocate(%d) error = %v, want ErrLengthCannotBeZero", size, err)
		}
	}
}

func TestAllocateRoundsToPageSize(t *testing.T) {
	ps := memprot.PageSize()
	for _, size := range []int{1, ps - 1, ps, ps + 1} {
		blk, err := allocate(size)
		if err != nil {
			t.Fatalf("allocate(%d): %v", size, err)
		}
		if len(blk.data) < size {
			t.Errorf("allocate(%d) returned %d bytes", size, len(blk.data))
		}
		if len(blk.data)%ps != 0 {
			t.Errorf("allocate(%d) returned %d bytes, not a page multiple", size, len(blk.data))
		}
		if err := release(blk); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
}

func TestAllocateZeroFilled(t *testing.T) {
	blk, err := allocate(64)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	defer release(blk)

	for i, v := range blk.data {
		if v != 0 {
			t.Fatalf("byte %d = %d in fresh block", i, v)
		}
	}
}

func TestAllocateTagged(t *testing.T) {
	blk, err := allocate(16)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	defer release(blk)

	switch blk.tag {
	case originMapped:
		if blk.secret != nil {
			t.Error("mapped block carries a secret backing")
		}
	case originSecret:
		if blk.secret == nil {
			t.Error("secret block missing its backing record")
		}
		if !memprot.SecretSupported() {
			t.Error("secret block allocated without kernel support")
		}
	default:
		t.Errorf("block has unknown origin tag %#x", uint32(blk.tag))
	}
}

func TestReleaseCorruptTagIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("release of a corrupt-tagged block did not panic")
		}
	}()
	release(&block{data: make([]byte, 16), tag: 0xdead})
}

func TestDoubleReleaseIsFatal(t *testing.T) {
	blk, err := allocate(16)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := release(blk); err != nil {
		t.Fatalf("first release: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("second release did not panic")
		}
	}()
	release(blk)
}
