package main

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// wireReader walks the tag/value encoding used by the game's message
// payloads. Servers ship unknown builds all the time, so every entry point is
// lenient: a malformed tag or truncated value reads as end-of-stream instead
// of an error, and safeSkipLastField can always consume whatever the last
// readTag returned without failing.
type wireReader struct {
	data []byte
	pos  int

	lastNum protowire.Number
	lastTyp protowire.Type
}

func newWireReader(b []byte) *wireReader {
	return &wireReader{data: b}
}

func (w *wireReader) eof() bool {
	return w.pos >= len(w.data)
}

// readTag returns the next field number and wire type. A field number of 0
// means the stream ended or the tag was malformed; callers stop there.
func (w *wireReader) readTag() (protowire.Number, protowire.Type) {
	if w.eof() {
		return 0, 0
	}
	num, typ, n := protowire.ConsumeTag(w.data[w.pos:])
	if n < 0 || num <= 0 {
		w.pos = len(w.data)
		return 0, 0
	}
	w.pos += n
	w.lastNum, w.lastTyp = num, typ
	return num, typ
}

func (w *wireReader) readVarint() (uint64, bool) {
	v, n := protowire.ConsumeVarint(w.data[w.pos:])
	if n < 0 {
		w.pos = len(w.data)
		return 0, false
	}
	w.pos += n
	return v, true
}

// readBytes consumes a length-delimited value and returns its contents.
func (w *wireReader) readBytes() ([]byte, bool) {
	v, n := protowire.ConsumeBytes(w.data[w.pos:])
	if n < 0 {
		w.pos = len(w.data)
		return nil, false
	}
	w.pos += n
	return v, true
}

// safeSkipLastField skips the value belonging to the most recent readTag.
// Unknown groups, bad lengths and truncated values all collapse to "consume
// the rest of the buffer", never an error.
func (w *wireReader) safeSkipLastField() {
	if w.eof() || w.lastNum <= 0 {
		w.pos = len(w.data)
		return
	}
	n := protowire.ConsumeFieldValue(w.lastNum, w.lastTyp, w.data[w.pos:])
	if n < 0 {
		w.pos = len(w.data)
		return
	}
	w.pos += n
}
