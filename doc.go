// Package secmem provides in-memory containers for secret data (keys,
// passwords, tokens) that minimize how long a secret is readable,
// swappable to disk, or recoverable from freed memory.
//
// Containers allocate page-aligned regions outside the Go heap, pin
// them against swap, and keep the pages marked no-access except inside
// an explicit scope:
//
//	buf, err := secmem.BufferFromBytes(key) // key is wiped
//	if err != nil {
//		return err
//	}
//	defer buf.Destroy()
//
//	err = buf.Bytes(func(view []byte) {
//		// view is readable only inside this call
//	})
//
// On Linux kernels providing memfd_secret the backing pages are
// invisible even to the kernel itself; on Windows the contents are
// additionally encrypted at rest with CryptProtectMemory. Accessing a
// container outside a scope (see Peek) triggers an OS access fault
// that terminates the process: misuse is made impossible to ignore
// rather than silently detected.
//
// Containers are not internally synchronized. Handing a container to
// another goroutine is fine; concurrent use of one container requires
// external locking.
//
// The protections hold against swap, cross-process inspection, and
// post-use memory scraping. They do not defend against code executing
// inside this process while a scope is open.
package secmem
