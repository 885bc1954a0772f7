package secmem

import (
	"testing"
)

func BenchmarkPush(b *testing.B) {
	buf, err := NewBufferCap(b.N + 1)
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	defer buf.Destroy()

	for i := 0; b.Loop(); i++ {
		if err := buf.Push(byte(i)); err != nil {
			b.Fatalf("push: %v", err)
		}
	}
}

func BenchmarkScopeToggle(b *testing.B) {
	buf, err := BufferFromBytes(make([]byte, 4096))
	if err != nil {
		b.Fatalf("from bytes: %v", err)
	}
	defer buf.Destroy()

	for b.Loop() {
		if err := buf.Bytes(func(view []byte) {}); err != nil {
			b.Fatalf("scope: %v", err)
		}
	}
}

func BenchmarkAppend(b *testing.B) {
	chunk := make([]byte, 64)
	buf, err := NewBuffer()
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	defer buf.Destroy()

	b.SetBytes(int64(len(chunk)))
	for b.Loop() {
		if err := buf.Append(chunk); err != nil {
			b.Fatalf("append: %v", err)
		}
	}
}
