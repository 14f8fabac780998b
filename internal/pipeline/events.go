package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/dataq/internal/scene"
)

// Kind names an event stream. Topics are "<kind>/<serial>".
type Kind string

const (
	KindDetections Kind = "detections"
	KindTracker    Kind = "tracker"
	KindPath       Kind = "path"
	KindOccupancy  Kind = "occupancy"
	KindAnomaly    Kind = "anomaly"
	KindStatus     Kind = "status"
)

// Batch is one frame of detections from a source. Deletes are detections
// with Active unset. A zero Time means the batch is stamped on arrival.
type Batch struct {
	Time       time.Time
	Detections []scene.Detection
}

// Event is one outbound message. Payload is one of []scene.Detection,
// scene.Track, scene.Path, occupancy.Snapshot, AnomalySignal or Status.
type Event struct {
	Kind    Kind      `json:"kind"`
	Topic   string    `json:"topic"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// AnomalySignal is a transition of the debounced anomaly signal.
type AnomalySignal struct {
	Name      string `json:"name"`
	State     bool   `json:"state"`
	Reason    string `json:"reason,omitempty"`
	TrackID   string `json:"track,omitempty"`
	Class     string `json:"class,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Status is the periodic health report.
type Status struct {
	UptimeHours float64 `json:"uptime_hours"`
	QueueDepth  int     `json:"queue_depth"`
	Dropped     uint64  `json:"dropped"`
	Tracks      int     `json:"tracks"`
	Held        int     `json:"held"`
	Timestamp   int64   `json:"timestamp"`
}

// Publisher delivers events downstream. Publish is called from a single
// dispatcher goroutine in event order.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
