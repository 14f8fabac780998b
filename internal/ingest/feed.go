package ingest

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/dataq/internal/monitoring"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/timeutil"
)

// Sink accepts decoded batches. *pipeline.Pipeline implements it.
type Sink interface {
	Submit(ctx context.Context, b pipeline.Batch) error
	TrySubmit(b pipeline.Batch) error
}

// Stats counts the frames seen by a Feed.
type Stats struct {
	Lines     uint64 `json:"lines"`
	Batches   uint64 `json:"batches"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
}

// Feed decodes frame lines from any source and hands them to a sink.
type Feed struct {
	dec   *Decoder
	sink  Sink
	clock timeutil.Clock

	lines     atomic.Uint64
	batches   atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
}

// NewFeed creates a feed. A nil clock uses the real clock.
func NewFeed(dec *Decoder, sink Sink, clock timeutil.Clock) *Feed {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Feed{dec: dec, sink: sink, clock: clock}
}

// Decoder returns the feed's decoder.
func (f *Feed) Decoder() *Decoder {
	return f.dec
}

// Stats returns the current counters.
func (f *Feed) Stats() Stats {
	return Stats{
		Lines:     f.lines.Load(),
		Batches:   f.batches.Load(),
		Malformed: f.malformed.Load(),
		Dropped:   f.dropped.Load(),
	}
}

// Line decodes one frame line received at at. Live sources pass
// lossless=false so that a full pipeline queue drops the frame instead of
// stalling the reader. Undecodable lines are logged and counted, not
// returned.
func (f *Feed) Line(ctx context.Context, line []byte, at time.Time, lossless bool) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	n := f.lines.Add(1)

	if at.IsZero() {
		at = f.clock.Now()
	}
	b, err := f.dec.Decode(line, at)
	if err != nil {
		if m := f.malformed.Add(1); m == 1 || m%100 == 0 {
			monitoring.Logf("ingest: line %d: %v (%d malformed so far)", n, err, m)
		}
		return nil
	}
	if len(b.Detections) == 0 {
		return nil
	}

	if lossless {
		err = f.sink.Submit(ctx, b)
	} else {
		err = f.sink.TrySubmit(b)
	}
	switch {
	case err == nil:
		f.batches.Add(1)
		return nil
	case errors.Is(err, pipeline.ErrQueueFull):
		f.dropped.Add(1)
		return nil
	default:
		return err
	}
}

// Lines feeds every newline-separated frame in data.
func (f *Feed) Lines(ctx context.Context, data []byte, at time.Time, lossless bool) error {
	for len(data) > 0 {
		var line []byte
		line, data, _ = bytes.Cut(data, []byte{'\n'})
		if err := f.Line(ctx, line, at, lossless); err != nil {
			return err
		}
	}
	return nil
}
