// Command secmem-dump holds a secret in guarded memory so the process
// image can be inspected for leaks. Point a debugger or a core dump at
// the printed pid while it waits: the plaintext should not appear
// anywhere in the process image, because the pages are no-access (and,
// where supported, secret-backed or encrypted at rest) outside scopes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/veilkit/secmem"
)

func main() {
	wait := flag.Duration("wait", time.Minute, "how long to hold the secret before exiting")
	flag.Parse()

	fmt.Fprint(os.Stderr, "secret: ")
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("read secret: %v", err)
	}
	if len(line) == 0 {
		log.Fatal("empty secret")
	}

	// The prompt buffer is wiped by the copy-in.
	buf, err := secmem.BufferFromBytes(line)
	if err != nil {
		log.Fatalf("guard secret: %v", err)
	}
	defer buf.Destroy()

	log.Printf("holding %d bytes in guarded memory, pid %d", buf.Len(), os.Getpid())
	log.Printf("dump the process now; the plaintext should be absent for %v", *wait)
	time.Sleep(*wait)

	// Open one scope to prove the secret is still intact.
	var sum uint32
	err = buf.Bytes(func(view []byte) {
		for _, b := range view {
			sum += uint32(b)
		}
	})
	if err != nil {
		log.Fatalf("open scope: %v", err)
	}
	log.Printf("scope closed, checksum %d", sum)
}
