package main

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Envelope types. Everything else on the stream is dropped.
const (
	envNotify    = 1
	envFrameDown = 6
)

// Opcodes the pipeline acts on. opServerChange never appears on the wire; it
// is a synthetic sentinel enqueued when the active server flow switches.
const (
	opServerChange      uint32 = 0xFFFFFFFF
	opSyncNearEntities  uint32 = 0x06
	opSyncContainerData uint32 = 0x15
	opSyncServerTime    uint32 = 0x2b
	opSyncNearDeltaInfo uint32 = 0x2d
	opSyncToMeDeltaInfo uint32 = 0x2e
)

// serviceUUID identifies the game's application service inside Notify
// envelopes. Frames for any other service are not ours.
const serviceUUID uint64 = 0x0000000063335342

const (
	maxFrameLoops = 4096
	maxFrameDepth = 8
)

// opcodeMsg is one decoded application message awaiting the engine.
type opcodeMsg struct {
	op      uint32
	payload []byte
}

// frameDecoder extracts length-prefixed frames from the reassembled stream
// and turns Notify envelopes into opcode messages.
type frameDecoder struct {
	out *queue[opcodeMsg]
}

func newFrameDecoder(out *queue[opcodeMsg]) *frameDecoder {
	return &frameDecoder{out: out}
}

func knownOpcode(op uint32) bool {
	switch op {
	case opSyncNearEntities, opSyncContainerData, opSyncServerTime,
		opSyncNearDeltaInfo, opSyncToMeDeltaInfo:
		return true
	}
	return false
}

// drainStream pulls every complete frame out of the reassembler. An
// incomplete frame (or a header too small to be real) leaves the stream
// untouched for the next segment.
func (fd *frameDecoder) drainStream(ra *reassembler) {
	for i := 0; ; i++ {
		if i >= maxFrameLoops {
			logWarn("frame extraction exceeded %d iterations, breaking", maxFrameLoops)
			return
		}
		if len(ra.stream) < 4 {
			return
		}
		r := newByteReader(ra.stream)
		size, _ := r.peekUint32BE()
		if size < 6 || int(size) > len(ra.stream) {
			return
		}
		frame := make([]byte, size)
		copy(frame, ra.stream[:size])
		ra.consume(int(size))
		fd.handleFrame(frame, 0)
	}
}

// decodeBuffer runs the frame loop over a detached byte buffer (the body of
// a FrameDown envelope). Frames are processed in order; a malformed frame
// terminates only itself.
func (fd *frameDecoder) decodeBuffer(buf []byte, depth int) {
	for i := 0; ; i++ {
		if i >= maxFrameLoops {
			logWarn("nested frame extraction exceeded %d iterations, breaking", maxFrameLoops)
			return
		}
		if len(buf) < 4 {
			return
		}
		r := newByteReader(buf)
		size, _ := r.peekUint32BE()
		if size < 6 || int(size) > len(buf) {
			return
		}
		fd.handleFrame(buf[:size], depth)
		buf = buf[size:]
	}
}

// handleFrame decodes one complete frame: size, envelope type, optional zstd
// compression, and the envelope-specific body.
func (fd *frameDecoder) handleFrame(frame []byte, depth int) {
	if depth > maxFrameDepth {
		logWarn("frame nesting exceeded depth %d, dropping", maxFrameDepth)
		return
	}
	r := newByteReader(frame)
	if err := r.skip(4); err != nil {
		return
	}
	packetType, err := r.readUint16BE()
	if err != nil {
		return
	}
	isZstd := packetType&0x8000 != 0
	msgType := packetType & 0x7FFF

	switch msgType {
	case envNotify:
		fd.handleNotify(r, isZstd)
	case envFrameDown:
		if err := r.skip(4); err != nil { // sequence id
			return
		}
		nested := r.readRemaining()
		if isZstd {
			nested, err = decompressZstd(nested)
			if err != nil {
				logWarnLimited("frame decompression failed: %v", err)
				return
			}
		}
		fd.decodeBuffer(nested, depth+1)
	default:
		// Other envelope kinds carry nothing we aggregate.
	}
}

func (fd *frameDecoder) handleNotify(r *byteReader, isZstd bool) {
	svc, err := r.readUint64BE()
	if err != nil {
		return
	}
	if err := r.skip(4); err != nil { // stub id
		return
	}
	methodID, err := r.readUint32BE()
	if err != nil {
		return
	}
	if svc != serviceUUID {
		return
	}
	payload := r.readRemaining()
	if isZstd {
		payload, err = decompressZstd(payload)
		if err != nil {
			logWarnLimited("notify decompression failed: %v", err)
			return
		}
	}
	if !knownOpcode(methodID) {
		return
	}
	fd.out.enqueue(opcodeMsg{op: methodID, payload: payload})
}

// emitServerChange pushes the synthetic server-change sentinel.
func (fd *frameDecoder) emitServerChange() {
	fd.out.enqueue(opcodeMsg{op: opServerChange})
}

// decompressZstd inflates a streaming zstd payload of unknown decompressed
// size.
func decompressZstd(buf []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
