package pipeline

import (
	"time"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/stitch"
	"github.com/banshee-data/dataq/internal/timeutil"
)

// Toggles gate each event kind.
type Toggles struct {
	Detections bool `json:"detections"`
	Tracker    bool `json:"tracker"`
	Path       bool `json:"path"`
	Occupancy  bool `json:"occupancy"`
	Anomaly    bool `json:"anomaly"`
	Status     bool `json:"status"`
}

// Enabled reports whether events of kind k are published.
func (t Toggles) Enabled(k Kind) bool {
	switch k {
	case KindDetections:
		return t.Detections
	case KindTracker:
		return t.Tracker
	case KindPath:
		return t.Path
	case KindOccupancy:
		return t.Occupancy
	case KindAnomaly:
		return t.Anomaly
	case KindStatus:
		return t.Status
	}
	return false
}

// Settings is the runtime-adjustable configuration of every stage.
type Settings struct {
	Tracker   scene.TrackerConfig
	Filter    scene.Filter
	Stitch    stitch.Config
	Anomaly   anomaly.Config
	Occupancy occupancy.Config
	Publish   Toggles
}

// DefaultSettings publishes everything with default stage tuning.
func DefaultSettings() Settings {
	return Settings{
		Tracker:   scene.DefaultTrackerConfig(),
		Filter:    scene.DefaultFilter(),
		Stitch:    stitch.DefaultConfig(),
		Anomaly:   anomaly.DefaultConfig(),
		Occupancy: occupancy.DefaultConfig(),
		Publish: Toggles{
			Detections: false,
			Tracker:    true,
			Path:       true,
			Occupancy:  true,
			Anomaly:    true,
			Status:     true,
		},
	}
}

// Options are fixed for the lifetime of a pipeline.
type Options struct {
	Clock          timeutil.Clock
	Serial         string        // topic suffix identifying the device
	QueueSize      int           // batch queue capacity
	EventQueueSize int           // dispatcher queue capacity
	Tick           time.Duration // deadline check interval
	Heartbeat      time.Duration // republish quiet tracks after this long
	StatusInterval time.Duration // 0 disables status reports
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.EventQueueSize <= 0 {
		o.EventQueueSize = 256
	}
	if o.Tick <= 0 {
		o.Tick = 100 * time.Millisecond
	}
	if o.Heartbeat < 0 {
		o.Heartbeat = 0
	}
	return o
}
