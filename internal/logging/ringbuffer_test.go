package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRingBufferBasicWrite(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte("hello"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}
	if rb.Len() != 5 {
		t.Errorf("Len() = %d, want 5", rb.Len())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abcdef"))
	rb.Write([]byte("ghij"))
	// Ten bytes written into eight: the oldest two fall off.
	if got := rb.Bytes(); !bytes.Equal(got, []byte("cdefghij")) {
		t.Errorf("Bytes() = %q, want %q", got, "cdefghij")
	}
	if rb.Len() != 8 {
		t.Errorf("Len() = %d, want 8", rb.Len())
	}
}

func TestRingBufferOversizeWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("0123456789"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("6789")) {
		t.Errorf("Bytes() = %q, want %q", got, "6789")
	}
}

func TestRingBufferExactFill(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("abcd"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("Bytes() = %q, want %q", got, "abcd")
	}
	rb.Write([]byte("e"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("bcde")) {
		t.Errorf("Bytes() = %q, want %q", got, "bcde")
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(32)
	rb.Write([]byte("crash context"))

	path := filepath.Join(t.TempDir(), "dump.log")
	if err := rb.DumpToFile(path); err != nil {
		t.Fatalf("DumpToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, []byte("crash context")) {
		t.Errorf("file contents = %q", data)
	}
}
