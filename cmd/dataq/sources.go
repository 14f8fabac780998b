package main

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/dataq/internal/ingest"
	"github.com/banshee-data/dataq/internal/serialmux"
)

// startSources runs every configured detection source until ctx is done.
// A finished PCAP replay leaves the service running so results stay
// browsable.
func startSources(ctx context.Context, wg *sync.WaitGroup, o *options, feed *ingest.Feed, lines *serialmux.SerialMux[serial.Port]) {
	if lines != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := lines.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()
		go func() {
			defer wg.Done()
			if err := feed.Serial(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial feed stopped: %v", err)
			}
		}()
	}

	if o.udpAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := feed.ListenUDP(ctx, ingest.UDPConfig{Address: o.udpAddr, RcvBuf: o.udpRcvBuf})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener stopped: %v", err)
			}
		}()
	}

	if o.pcapFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := os.Open(o.pcapFile)
			if err != nil {
				log.Printf("failed to open PCAP file %s: %v", o.pcapFile, err)
				return
			}
			defer f.Close()
			err = feed.ReplayPCAP(ctx, f, ingest.ReplayOptions{Port: o.pcapPort, Realtime: o.realtime})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("PCAP replay stopped: %v", err)
			}
		}()
	}

	if lines == nil && o.udpAddr == "" && o.pcapFile == "" {
		log.Print("Warning: no detection source configured (--serial, --udp or --pcap)")
	}
}
