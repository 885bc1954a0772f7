//go:build windows

package memprot

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// CryptProtectMemory with CRYPTPROTECTMEMORY_SAME_PROCESS: the
// ciphertext is only recoverable within this process lifetime.
const cryptProtectSameProcess = 0

var (
	crypt32                  = windows.NewLazySystemDLL("crypt32.dll")
	procCryptProtectMemory   = crypt32.NewProc("CryptProtectMemory")
	procCryptUnprotectMemory = crypt32.NewProc("CryptUnprotectMemory")
)

// AtRestEncryption reports whether locked regions are encrypted in
// place on this platform.
func AtRestEncryption() bool { return true }

// EncryptInPlace encrypts b in place. len(b) must be a nonzero
// multiple of EncryptBlockSize and fit in 32 bits.
func EncryptInPlace(b []byte) error {
	if err := checkEncryptSize(len(b)); err != nil {
		return err
	}
	r, _, err := procCryptProtectMemory.Call(
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(uint32(len(b))),
		cryptProtectSameProcess,
	)
	if r == 0 {
		return err
	}
	return nil
}

// DecryptInPlace reverses EncryptInPlace.
func DecryptInPlace(b []byte) error {
	if err := checkEncryptSize(len(b)); err != nil {
		return err
	}
	r, _, err := procCryptUnprotectMemory.Call(
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(uint32(len(b))),
		cryptProtectSameProcess,
	)
	if r == 0 {
		return err
	}
	return nil
}
