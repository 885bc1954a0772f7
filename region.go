package secmem

import (
	"fmt"

	"github.com/veilkit/secmem/memprot"
)

// region is the guarded allocation shared by every container type. It
// owns exactly one block and keeps it protected no-access except
// during the extent of a scope call.
type region struct {
	blk *block
	cap int // usable bytes requested by the container
}

func newRegion(capacity int) (*region, error) {
	if capacity <= 0 {
		return nil, ErrLengthCannotBeZero
	}
	blk, err := allocate(capacity)
	if err != nil {
		return nil, err
	}
	r := &region{blk: blk, cap: capacity}
	if err := r.lock(); err != nil {
		release(blk)
		return nil, err
	}
	return r, nil
}

// lock encrypts the region in place where the platform supports it,
// then revokes all page access. Protection covers the whole rounded
// block, not just the requested capacity.
func (r *region) lock() error {
	if err := memprot.EncryptInPlace(r.blk.data); err != nil {
		return fmt.Errorf("%w: %v", ErrLockFailed, err)
	}
	if err := memprot.Default.Protect(r.blk.data, memprot.NoAccess); err != nil {
		return fmt.Errorf("%w: %v", ErrLockFailed, err)
	}
	return nil
}

// unlock restores read/write access, then decrypts where the platform
// encrypts at rest.
func (r *region) unlock() error {
	if err := memprot.Default.Protect(r.blk.data, memprot.ReadWrite); err != nil {
		return fmt.Errorf("%w: %v", ErrUnlockFailed, err)
	}
	if err := memprot.DecryptInPlace(r.blk.data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnlockFailed, err)
	}
	return nil
}

// scope runs f over the first n bytes with protection dropped and
// re-applies protection on every exit path, early return and panic
// included. A failed unlock is returned without running f. A failed
// re-lock panics: the process must not keep running with the secret
// left readable.
func (r *region) scope(n int, f func(view []byte)) error {
	if r.blk == nil {
		return ErrDestroyed
	}
	if err := r.unlock(); err != nil {
		return err
	}
	defer func() {
		if err := r.lock(); err != nil {
			panic(err)
		}
	}()
	f(r.blk.data[:n])
	return nil
}

// view returns the full capacity slice. Valid only while unlocked;
// touching it while locked faults at the OS level.
func (r *region) view() []byte { return r.blk.data[:r.cap] }

// destroy wipes every byte of the block and returns it to the
// allocator. Safe to call twice.
func (r *region) destroy() error {
	if r.blk == nil {
		return nil
	}
	if err := r.unlock(); err != nil {
		return err
	}
	memprot.Wipe(r.blk.data)
	err := release(r.blk)
	r.blk = nil
	r.cap = 0
	return err
}
