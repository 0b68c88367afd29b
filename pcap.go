package main

import (
	"context"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// replayPCAP feeds a capture file through the identical identify, reassemble
// and decode path used for live traffic. Useful for analysis after the fact
// and for running without capture privileges.
func replayPCAP(ctx context.Context, path string, cd *captureDriver) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var source *gopacket.PacketSource
	if ng, err := pcapgo.NewNgReader(f, pcapgo.NgReaderOptions{}); err == nil {
		source = gopacket.NewPacketSource(ng, ng.LinkType())
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		r, err := pcapgo.NewReader(f)
		if err != nil {
			return err
		}
		source = gopacket.NewPacketSource(r, r.LinkType())
	}

	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		pkt, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if pkt.Layer(layers.LayerTypeTCP) == nil {
			continue
		}
		cd.handlePacket(pkt)
		n++
	}
	logDebug("replayed %d tcp packets from %s", n, path)
	return nil
}
