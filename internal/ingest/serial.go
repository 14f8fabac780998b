package ingest

import (
	"context"
	"time"

	"github.com/banshee-data/dataq/internal/monitoring"
)

// LineSource is a subscribable stream of lines, such as a serialmux.SerialMux.
type LineSource interface {
	Subscribe() (string, <-chan string)
	Unsubscribe(id string)
}

// Serial feeds lines from src until the stream closes or ctx is done.
func (f *Feed) Serial(ctx context.Context, src LineSource) error {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)
	monitoring.Logf("ingest: reading serial detection feed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				monitoring.Logf("ingest: serial feed closed")
				return nil
			}
			if err := f.Line(ctx, []byte(line), time.Time{}, false); err != nil {
				return err
			}
		}
	}
}
