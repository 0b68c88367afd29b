package main

import "testing"

func TestByteReaderReads(t *testing.T) {
	r := newByteReader([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0xaa, 0xbb})
	if r.remaining() != 8 {
		t.Fatalf("remaining = %d, want 8", r.remaining())
	}
	if v, ok := r.peekUint32BE(); !ok || v != 0x00010000 {
		t.Fatalf("peek = %#x ok=%v", v, ok)
	}
	if r.position() != 0 {
		t.Fatalf("peek advanced the cursor to %d", r.position())
	}
	v16, err := r.readUint16BE()
	if err != nil || v16 != 1 {
		t.Fatalf("readUint16BE = %d err=%v", v16, err)
	}
	v32, err := r.readUint32BE()
	if err != nil || v32 != 2 {
		t.Fatalf("readUint32BE = %d err=%v", v32, err)
	}
	b, err := r.readBytes(2)
	if err != nil || b[0] != 0xaa || b[1] != 0xbb {
		t.Fatalf("readBytes = % x err=%v", b, err)
	}
	if r.remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", r.remaining())
	}
}

func TestByteReaderBounds(t *testing.T) {
	r := newByteReader([]byte{0x01, 0x02, 0x03})
	if _, err := r.readUint32BE(); err != errShortRead {
		t.Fatalf("expected short read, got %v", err)
	}
	if r.position() != 0 {
		t.Fatalf("failed read moved cursor to %d", r.position())
	}
	if _, ok := r.peekUint32BE(); ok {
		t.Fatalf("peek succeeded past end")
	}
	if err := r.skip(4); err != errShortRead {
		t.Fatalf("expected short read on skip, got %v", err)
	}
	if _, err := r.readBytes(-1); err != errShortRead {
		t.Fatalf("expected short read on negative count, got %v", err)
	}
	if err := r.skip(3); err != nil {
		t.Fatalf("skip to end: %v", err)
	}
	if _, err := r.readUint64BE(); err != errShortRead {
		t.Fatalf("expected short read at end, got %v", err)
	}
}

func TestByteReaderReadRemaining(t *testing.T) {
	r := newByteReader([]byte{1, 2, 3, 4})
	if err := r.skip(1); err != nil {
		t.Fatalf("skip: %v", err)
	}
	rest := r.readRemaining()
	if len(rest) != 3 || rest[0] != 2 {
		t.Fatalf("readRemaining = % x", rest)
	}
	if r.remaining() != 0 {
		t.Fatalf("remaining = %d after readRemaining", r.remaining())
	}
	if len(r.readRemaining()) != 0 {
		t.Fatalf("second readRemaining not empty")
	}
}
