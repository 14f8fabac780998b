package db

import (
	"context"
	"fmt"

	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
)

// Store persists path, anomaly and occupancy events. Other kinds are
// ignored.
type Store struct {
	db *DB
}

// NewStore returns a pipeline publisher writing to db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Publish implements pipeline.Publisher.
func (s *Store) Publish(_ context.Context, ev pipeline.Event) error {
	switch payload := ev.Payload.(type) {
	case scene.Path:
		_, err := s.db.RecordPath(payload)
		return err
	case pipeline.AnomalySignal:
		return s.db.RecordAnomaly(payload)
	case occupancy.Snapshot:
		return s.db.RecordOccupancy(payload)
	case nil:
		return fmt.Errorf("db: %s event without payload", ev.Kind)
	}
	return nil
}
