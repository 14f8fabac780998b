// Package config loads the dataq runtime configuration. The JSON schema is
// shared by the startup defaults file, the /api/config endpoint and the
// persisted settings row, so a partial document can be layered over any of
// them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/dataq/internal/anomaly"
	"github.com/banshee-data/dataq/internal/occupancy"
	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/stitch"
)

// DefaultConfigPath is the canonical defaults file.
const DefaultConfigPath = "config/dataq.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Nil sections fall back to the stage
// defaults through the Get* methods.
type Config struct {
	Scene     *SceneConfig      `json:"scene,omitempty"`
	Filter    *scene.Filter     `json:"filter,omitempty"`
	Stitch    *stitch.Config    `json:"stitch,omitempty"`
	Anomaly   *anomaly.Config   `json:"anomaly,omitempty"`
	Occupancy *occupancy.Config `json:"occupancy,omitempty"`
	Publish   *pipeline.Toggles `json:"publish,omitempty"`
	Pipeline  *PipelineConfig   `json:"pipeline,omitempty"`
	// Geospace is a row-major 3x3 homography. Empty means uncalibrated.
	Geospace []float64 `json:"geospace,omitempty"`
}

// SceneConfig covers normalization and tracking.
type SceneConfig struct {
	Rotation      *int     `json:"rotation,omitempty"`
	COG           *string  `json:"cog,omitempty"`         // "center" or "bottom"
	EmitPolicy    *string  `json:"emit_policy,omitempty"` // "distance" or "interval"
	EmitDistance  *float64 `json:"emit_distance,omitempty"`
	EmitInterval  *string  `json:"emit_interval,omitempty"` // duration string like "1s"
	MoveThreshold *float64 `json:"move_threshold,omitempty"`
	StaleAfter    *string  `json:"stale_after,omitempty"`
	MaxIdle       *string  `json:"max_idle,omitempty"`
}

// PipelineConfig covers queueing and periodic work.
type PipelineConfig struct {
	QueueSize      *int    `json:"queue_size,omitempty"`
	Tick           *string `json:"tick,omitempty"`
	Heartbeat      *string `json:"heartbeat,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"`
}

// EmptyConfig returns a Config with every section unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads and validates a JSON config file. The file must have a
// .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return EmptyConfig().Merge(data)
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for
// tests and startup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/dataq/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("config: marshal: %v", err))
	}
	out := EmptyConfig()
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("config: unmarshal: %v", err))
	}
	return out
}

// Merge layers a partial JSON document over a copy of c and validates the
// result. c is not modified.
func (c *Config) Merge(data []byte) (*Config, error) {
	out := c.Clone()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return out, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if s := c.Scene; s != nil {
		if s.Rotation != nil {
			switch *s.Rotation {
			case 0, 90, 180, 270:
			default:
				return fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", *s.Rotation)
			}
		}
		if s.COG != nil && *s.COG != "center" && *s.COG != "bottom" {
			return fmt.Errorf("cog must be \"center\" or \"bottom\", got %q", *s.COG)
		}
		if s.EmitPolicy != nil {
			switch scene.EmitPolicy(*s.EmitPolicy) {
			case scene.EmitDistance, scene.EmitInterval:
			default:
				return fmt.Errorf("emit_policy must be %q or %q, got %q", scene.EmitDistance, scene.EmitInterval, *s.EmitPolicy)
			}
		}
		if s.MoveThreshold != nil && *s.MoveThreshold <= 0 {
			return fmt.Errorf("move_threshold must be positive, got %f", *s.MoveThreshold)
		}
		for name, v := range map[string]*string{
			"emit_interval": s.EmitInterval,
			"stale_after":   s.StaleAfter,
			"max_idle":      s.MaxIdle,
		} {
			if err := validateDuration(name, v); err != nil {
				return err
			}
		}
	}

	if f := c.Filter; f != nil {
		if f.MinWidth > f.MaxWidth || f.MinHeight > f.MaxHeight {
			return fmt.Errorf("filter minimum size exceeds maximum")
		}
		if f.MinConfidence < 0 || f.MinConfidence > 100 {
			return fmt.Errorf("filter confidence must be between 0 and 100, got %f", f.MinConfidence)
		}
	}

	if s := c.Stitch; s != nil {
		if s.Duration < 0 {
			return fmt.Errorf("stitch duration must be non-negative, got %f", s.Duration)
		}
		if s.AngleThreshold < 0 || s.AngleThreshold > 180 {
			return fmt.Errorf("stitch angle_threshold must be between 0 and 180, got %f", s.AngleThreshold)
		}
	}

	if a := c.Anomaly; a != nil {
		if a.ClearAfter < 0 {
			return fmt.Errorf("anomaly clear_after must be non-negative, got %f", a.ClearAfter)
		}
		for group, g := range a.Groups {
			switch g.Settings.Horizontal {
			case "", "Left", "Right":
			default:
				return fmt.Errorf("anomaly %s horizontal must be Left or Right, got %q", group, g.Settings.Horizontal)
			}
			switch g.Settings.Vertical {
			case "", "Up", "Down":
			default:
				return fmt.Errorf("anomaly %s vertical must be Up or Down, got %q", group, g.Settings.Vertical)
			}
		}
	}

	if o := c.Occupancy; o != nil && o.IntegrationTime <= 0 {
		return fmt.Errorf("occupancy integrationTime must be positive, got %f", o.IntegrationTime)
	}

	if p := c.Pipeline; p != nil {
		if p.QueueSize != nil && *p.QueueSize < 1 {
			return fmt.Errorf("queue_size must be at least 1, got %d", *p.QueueSize)
		}
		for name, v := range map[string]*string{
			"tick":            p.Tick,
			"heartbeat":       p.Heartbeat,
			"status_interval": p.StatusInterval,
		} {
			if err := validateDuration(name, v); err != nil {
				return err
			}
		}
	}

	if n := len(c.Geospace); n != 0 && n != 9 {
		return fmt.Errorf("geospace must have 9 elements, got %d", n)
	}
	return nil
}

func validateDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must be non-negative, got %s", name, *v)
	}
	return nil
}

// durationOr parses v, falling back to def when unset or invalid.
func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
