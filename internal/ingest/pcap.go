package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/dataq/internal/monitoring"
)

// ReplayOptions configures a PCAP replay.
type ReplayOptions struct {
	// Port selects UDP packets by destination port. Zero accepts all.
	Port int
	// Realtime paces packets by their capture timestamps.
	Realtime bool
}

// ReplayPCAP feeds the UDP payloads of a capture file. Frames without their
// own timestamp are stamped with the packet capture time. Replay is
// lossless: it waits for pipeline queue space.
func (f *Feed) ReplayPCAP(ctx context.Context, r io.Reader, opts ReplayOptions) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header: %w", err)
	}

	var (
		packets  int
		first    time.Time
		started  = time.Now()
		linkType = reader.LinkType()
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("ingest: PCAP replay complete: %d packets in %v", packets, time.Since(started))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet %d: %w", packets+1, err)
		}
		packets++

		packet := gopacket.NewPacket(data, linkType, gopacket.Default)
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if opts.Port != 0 && int(udp.DstPort) != opts.Port {
			continue
		}

		if opts.Realtime {
			if first.IsZero() {
				first = ci.Timestamp
			}
			if wait := ci.Timestamp.Sub(first) - time.Since(started); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		if err := f.Lines(ctx, udp.Payload, ci.Timestamp, true); err != nil {
			return err
		}
	}
}
