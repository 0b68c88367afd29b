package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/remeh/sizedwaitgroup"
)

// errNoCaptureDevice is the only capture error that escapes Start: nothing
// usable could be opened, so the service cannot observe anything.
var errNoCaptureDevice = errors.New("no usable capture device")

const (
	captureSnapLen = 65535
	captureBPF     = "tcp"
	// maxParallelOpens bounds simultaneous device opens; some drivers
	// misbehave when dozens of handles open at once.
	maxParallelOpens = 4
)

// captureDriver owns the flow-to-reassembler binding: it opens every
// suitable interface in promiscuous mode, identifies the game-server flow and
// feeds the reassembled stream through the frame decoder. All per-packet
// state is touched only under mu, so any capture goroutine may deliver.
type captureDriver struct {
	mu      sync.Mutex
	ra      *reassembler
	servers *serverTracker
	decoder *frameDecoder

	handles   []*pcap.Handle
	handlesMu sync.Mutex
	wg        sync.WaitGroup
}

func newCaptureDriver(decoder *frameDecoder) *captureDriver {
	return &captureDriver{
		ra:      newReassembler(),
		servers: newServerTracker(),
		decoder: decoder,
	}
}

// suitableDevice filters out interfaces that can never carry game traffic.
func suitableDevice(dev pcap.Interface) bool {
	desc := strings.ToLower(dev.Description)
	if strings.Contains(desc, "loopback") || strings.Contains(desc, "bluetooth") {
		return false
	}
	return true
}

// start opens every suitable interface and begins capture. Individual open
// failures are logged and skipped; only a total failure is returned.
func (cd *captureDriver) start(ctx context.Context, only string) error {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return err
	}

	var opened int
	var openedMu sync.Mutex
	swg := sizedwaitgroup.New(maxParallelOpens)
	for _, dev := range devs {
		if !suitableDevice(dev) {
			continue
		}
		if only != "" && dev.Name != only {
			continue
		}
		dev := dev
		swg.Add()
		go func() {
			defer swg.Done()
			handle, err := pcap.OpenLive(dev.Name, captureSnapLen, true, time.Second)
			if err != nil {
				logWarn("open %s: %v", dev.Name, err)
				return
			}
			if err := handle.SetBPFFilter(captureBPF); err != nil {
				logWarn("bpf filter on %s: %v", dev.Name, err)
				handle.Close()
				return
			}
			cd.handlesMu.Lock()
			cd.handles = append(cd.handles, handle)
			cd.handlesMu.Unlock()
			openedMu.Lock()
			opened++
			openedMu.Unlock()
			logDebug("capturing on %s", dev.Name)

			cd.wg.Add(1)
			go cd.captureLoop(ctx, handle)
		}()
	}
	swg.Wait()

	if opened == 0 {
		return errNoCaptureDevice
	}
	return nil
}

func (cd *captureDriver) captureLoop(ctx context.Context, handle *pcap.Handle) {
	defer cd.wg.Done()
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.NoCopy = true
	src.Lazy = true
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			cd.handlePacket(pkt)
		}
	}
}

// stop closes every open handle, which unblocks the capture loops, and waits
// for them to exit.
func (cd *captureDriver) stop() {
	cd.handlesMu.Lock()
	handles := cd.handles
	cd.handles = nil
	cd.handlesMu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	cd.wg.Wait()
}

// handlePacket routes one captured packet: IPv4+TCP with payload only, then
// server identification or reassembly depending on the flow.
func (cd *captureDriver) handlePacket(pkt gopacket.Packet) {
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if ipLayer == nil || tcpLayer == nil {
		return
	}
	ip, ok := ipLayer.(*layers.IPv4)
	if !ok {
		return
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok {
		return
	}
	if len(tcp.Payload) == 0 {
		return
	}
	logDebugPacket("tcp", tcp.Payload)
	var key flowKey
	copy(key.srcIP[:], ip.SrcIP.To4())
	copy(key.dstIP[:], ip.DstIP.To4())
	key.srcPort = uint16(tcp.SrcPort)
	key.dstPort = uint16(tcp.DstPort)

	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.deliverLocked(key, tcp.Seq, tcp.Payload)
}

// deliverLocked is the per-segment pipeline step shared by live capture and
// file replay.
func (cd *captureDriver) deliverLocked(key flowKey, seq uint32, payload []byte) {
	switch {
	case cd.servers.isActive(key):
		cd.ra.appendSegment(seq, payload)
		cd.decoder.drainStream(cd.ra)

	case cd.servers.isKnown(key):
		// A known server flow woke up again; make it the active one.
		cd.servers.promote(key)
		cd.ra.clear(seq)
		cd.decoder.emitServerChange()
		logDebug("switched active server flow")
		cd.ra.appendSegment(seq, payload)
		cd.decoder.drainStream(cd.ra)

	case identifyServer(payload):
		cd.servers.promote(key)
		cd.ra.clear(seq + uint32(len(payload)))
		cd.decoder.emitServerChange()
		logDebug("identified game server flow")
		// The triggering segment itself is not part of the stream.

	default:
		// Unknown flow: nothing to do, whether or not a server is active.
	}
}
