package main

// flowKey identifies one direction of a TCP flow.
type flowKey struct {
	srcIP   [4]byte
	srcPort uint16
	dstIP   [4]byte
	dstPort uint16
}

// maxAppendLoops bounds the cache drain so a poisoned cache cannot spin the
// capture thread.
const maxAppendLoops = 4096

// reassembler rebuilds the application byte stream for the active flow.
// Segments arrive in any order and are cached by sequence number; whenever
// the segment at the anchor shows up, it and any contiguous successors are
// appended to stream and the anchor advances. There is no ack tracking: a
// retransmit with the same sequence simply overwrites the cached copy, and a
// persistent gap stalls the stream until the flow is re-anchored.
type reassembler struct {
	anchor    uint32
	anchorSet bool
	cache     map[uint32][]byte
	stream    []byte
}

func newReassembler() *reassembler {
	return &reassembler{cache: make(map[uint32][]byte)}
}

// clear drops all buffered state and re-anchors at seq.
func (ra *reassembler) clear(seq uint32) {
	ra.cache = make(map[uint32][]byte)
	ra.stream = ra.stream[:0]
	ra.anchor = seq
	ra.anchorSet = true
}

// setNext moves the anchor without discarding the contiguous stream.
func (ra *reassembler) setNext(seq uint32) {
	ra.anchor = seq
	ra.anchorSet = true
}

// appendSegment caches one TCP segment and drains everything contiguous from
// the anchor into stream. Sequence arithmetic wraps, as TCP's does.
func (ra *reassembler) appendSegment(seq uint32, payload []byte) {
	if len(payload) == 0 {
		return
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	ra.cache[seq] = buf
	if !ra.anchorSet {
		ra.anchor = seq
		ra.anchorSet = true
	}
	for i := 0; ; i++ {
		if i >= maxAppendLoops {
			logWarn("reassembler drain exceeded %d iterations, breaking", maxAppendLoops)
			break
		}
		seg, ok := ra.cache[ra.anchor]
		if !ok {
			break
		}
		delete(ra.cache, ra.anchor)
		ra.stream = append(ra.stream, seg...)
		ra.anchor += uint32(len(seg))
	}
}

// consume removes n leading bytes of the contiguous stream.
func (ra *reassembler) consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(ra.stream) {
		ra.stream = ra.stream[:0]
		return
	}
	ra.stream = append(ra.stream[:0], ra.stream[n:]...)
}
