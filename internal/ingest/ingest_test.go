package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/dataq/internal/pipeline"
)

var t0 = time.UnixMilli(1_700_000_000_000)

// sink records submitted batches. When full is set TrySubmit rejects.
type sink struct {
	mu      sync.Mutex
	batches []pipeline.Batch
	full    bool
}

func (s *sink) Submit(_ context.Context, b pipeline.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *sink) TrySubmit(b pipeline.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return pipeline.ErrQueueFull
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *sink) all() []pipeline.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.Batch(nil), s.batches...)
}
