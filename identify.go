package main

import (
	"bytes"
	"encoding/binary"
)

// The game server announces itself two ways: small fragment packets carrying
// the service signature, and the fixed-size login return packet. Nothing else
// on the wire is trusted; if neither ever matches, the pipeline simply stays
// dormant.
var (
	fragmentSignature = []byte{0x00, 0x63, 0x33, 0x53, 0x42, 0x00}

	loginReturnPrefix = []byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01}
	loginReturnMiddle = []byte{0x00, 0x00, 0x00, 0x00, 0x0a, 0x4e}
)

const maxFragmentLoops = 1000

// serverTracker remembers every flow that has ever looked like the game
// server and which one is currently active. The capture driver re-anchors the
// reassembler and surfaces a server-change signal through the opcode queue
// after each promotion.
type serverTracker struct {
	known     map[flowKey]struct{}
	active    flowKey
	hasActive bool
}

func newServerTracker() *serverTracker {
	return &serverTracker{known: make(map[flowKey]struct{})}
}

func (st *serverTracker) isActive(key flowKey) bool {
	return st.hasActive && st.active == key
}

func (st *serverTracker) isKnown(key flowKey) bool {
	_, ok := st.known[key]
	return ok
}

func (st *serverTracker) promote(key flowKey) {
	st.known[key] = struct{}{}
	st.active = key
	st.hasActive = true
}

// matchesFragmentSignature walks the fragment list inside a candidate packet
// and reports whether any fragment carries the service signature.
func matchesFragmentSignature(payload []byte) bool {
	if len(payload) < 10 || payload[4] != 0 {
		return false
	}
	data := payload[10:]
	pos := 0
	for i := 0; i < maxFragmentLoops; i++ {
		if pos+4 > len(data) {
			return false
		}
		fragLen := binary.BigEndian.Uint32(data[pos:])
		pos += 4
		if fragLen < 4 || int(fragLen-4) > len(data)-pos {
			return false
		}
		frag := data[pos : pos+int(fragLen-4)]
		pos += int(fragLen - 4)
		if len(frag) < 5+len(fragmentSignature) {
			return false
		}
		if bytes.Equal(frag[5:5+len(fragmentSignature)], fragmentSignature) {
			return true
		}
	}
	logWarn("fragment signature scan exceeded %d iterations, breaking", maxFragmentLoops)
	return false
}

// matchesLoginSignature checks for the fixed 98-byte login return packet.
func matchesLoginSignature(payload []byte) bool {
	if len(payload) != 0x62 {
		return false
	}
	return bytes.Equal(payload[0:10], loginReturnPrefix) &&
		bytes.Equal(payload[14:20], loginReturnMiddle)
}

// identifyServer inspects one segment from a flow that is not the active
// server. It reports whether the payload carries either server signature; on
// a match the caller promotes the flow and must not forward the triggering
// segment to reassembly.
func identifyServer(payload []byte) bool {
	return matchesFragmentSignature(payload) || matchesLoginSignature(payload)
}
