package config

import (
	"time"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/stitch"
)

// GetRotation returns the sensor rotation or 0.
func (c *Config) GetRotation() scene.Rotation {
	if c.Scene == nil || c.Scene.Rotation == nil {
		return scene.Rotate0
	}
	return scene.Rotation(*c.Scene.Rotation)
}

// GetCOG returns the center-of-gravity selector or COGCenter.
func (c *Config) GetCOG() scene.COG {
	if c.Scene == nil || c.Scene.COG == nil {
		return scene.COGCenter
	}
	if *c.Scene.COG == "bottom" {
		return scene.COGBottom
	}
	return scene.COGCenter
}

// GetTrackerConfig returns the tracker tuning with defaults for unset fields.
func (c *Config) GetTrackerConfig() scene.TrackerConfig {
	tc := scene.DefaultTrackerConfig()
	s := c.Scene
	if s == nil {
		return tc
	}
	if s.EmitPolicy != nil {
		tc.Policy = scene.EmitPolicy(*s.EmitPolicy)
	}
	if s.EmitDistance != nil {
		tc.EmitDistance = *s.EmitDistance
	}
	if s.MoveThreshold != nil {
		tc.MoveThreshold = *s.MoveThreshold
	}
	tc.EmitInterval = durationOr(s.EmitInterval, tc.EmitInterval)
	tc.StaleAfter = durationOr(s.StaleAfter, tc.StaleAfter)
	tc.MaxIdle = durationOr(s.MaxIdle, tc.MaxIdle)
	return tc
}

// GetFilter returns the detection filter or the default one.
func (c *Config) GetFilter() scene.Filter {
	if c.Filter == nil {
		return scene.DefaultFilter()
	}
	return *c.Filter
}

// GetStitch returns the stitch configuration or the default one.
func (c *Config) GetStitch() stitch.Config {
	if c.Stitch == nil {
		return stitch.DefaultConfig()
	}
	return *c.Stitch
}

// GetAnomaly returns the anomaly rules or an empty rule set.
func (c *Config) GetAnomaly() anomaly.Config {
	if c.Anomaly == nil {
		return anomaly.DefaultConfig()
	}
	return *c.Anomaly
}

// GetOccupancy returns the occupancy configuration or the default one.
func (c *Config) GetOccupancy() occupancy.Config {
	if c.Occupancy == nil {
		return occupancy.DefaultConfig()
	}
	return *c.Occupancy
}

// GetPublish returns the publish toggles or the defaults.
func (c *Config) GetPublish() pipeline.Toggles {
	if c.Publish == nil {
		return pipeline.DefaultSettings().Publish
	}
	return *c.Publish
}

// GetQueueSize returns the batch queue capacity.
func (c *Config) GetQueueSize() int {
	if c.Pipeline == nil || c.Pipeline.QueueSize == nil {
		return 64
	}
	return *c.Pipeline.QueueSize
}

// GetTick returns the deadline check interval.
func (c *Config) GetTick() time.Duration {
	if c.Pipeline == nil {
		return 100 * time.Millisecond
	}
	return durationOr(c.Pipeline.Tick, 100*time.Millisecond)
}

// GetHeartbeat returns the quiet period after which live tracks are
// republished.
func (c *Config) GetHeartbeat() time.Duration {
	if c.Pipeline == nil {
		return 2 * time.Second
	}
	return durationOr(c.Pipeline.Heartbeat, 2*time.Second)
}

// GetStatusInterval returns the status report interval.
func (c *Config) GetStatusInterval() time.Duration {
	if c.Pipeline == nil {
		return 15 * time.Minute
	}
	return durationOr(c.Pipeline.StatusInterval, 15*time.Minute)
}

// Settings assembles the runtime-adjustable pipeline settings.
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		Tracker:   c.GetTrackerConfig(),
		Filter:    c.GetFilter(),
		Stitch:    c.GetStitch(),
		Anomaly:   c.GetAnomaly(),
		Occupancy: c.GetOccupancy(),
		Publish:   c.GetPublish(),
	}
}

// Options assembles the fixed pipeline options. Clock and Serial are left
// for the caller.
func (c *Config) Options() pipeline.Options {
	return pipeline.Options{
		QueueSize:      c.GetQueueSize(),
		Tick:           c.GetTick(),
		Heartbeat:      c.GetHeartbeat(),
		StatusInterval: c.GetStatusInterval(),
	}
}
