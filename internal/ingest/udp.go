package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/dataq/internal/monitoring"
)

// UDPConfig configures the UDP detection listener.
type UDPConfig struct {
	Address string
	RcvBuf  int
	// Conn, when set, is used instead of listening on Address.
	Conn net.PacketConn
}

// maxDatagram is large enough for any frame the detectors send.
const maxDatagram = 64 * 1024

// ListenUDP reads frames from UDP datagrams until ctx is done. A datagram
// may carry several newline-separated frames.
func (f *Feed) ListenUDP(ctx context.Context, cfg UDPConfig) error {
	conn := cfg.Conn
	if conn == nil {
		addr, err := net.ResolveUDPAddr("udp", cfg.Address)
		if err != nil {
			return fmt.Errorf("failed to resolve UDP address: %w", err)
		}
		udp, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on UDP address: %w", err)
		}
		if cfg.RcvBuf > 0 {
			if err := udp.SetReadBuffer(cfg.RcvBuf); err != nil {
				monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", cfg.RcvBuf, err)
			}
		}
		conn = udp
	}
	defer conn.Close()
	monitoring.Logf("ingest: UDP listener started on %s", conn.LocalAddr())

	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("ingest: UDP listener stopping")
			return err
		}
		// short deadline so cancellation is noticed
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("ingest: UDP read error: %v", err)
			continue
		}
		if err := f.Lines(ctx, buffer[:n], time.Time{}, false); err != nil {
			return fmt.Errorf("frame from %v: %w", addr, err)
		}
	}
}
