package anomaly

import (
	"time"

	"github.com/banshee-data/dataq/internal/scene"
)

// Class groups used to select rule sets and statistics.
const (
	GroupHuman   = "human"
	GroupVehicle = "vehicle"
	GroupOther   = "other"
)

// GroupOf returns the rule group for a display class name.
func GroupOf(class string) string {
	switch class {
	case "Human", "Head":
		return GroupHuman
	case "Vehicle", "Car", "Truck", "Bus", "Bike", "LicensePlate":
		return GroupVehicle
	default:
		return GroupOther
	}
}

// Thresholds are numeric and directional limits for one class group. A zero
// limit or an empty direction disables that check.
type Thresholds struct {
	Directions int     `json:"directions"`
	Age        float64 `json:"age"`
	Idle       float64 `json:"idle"`
	MaxSpeed   float64 `json:"maxSpeed"`
	Horizontal string  `json:"horizontal"` // "Left" or "Right"
	Vertical   string  `json:"vertical"`   // "Up" or "Down"
}

// GroupConfig is the rule set for one class group.
type GroupConfig struct {
	Common     []scene.Zone `json:"common"`
	Restricted []scene.Zone `json:"restricted"`
	Settings   Thresholds   `json:"settings"`
}

// Config holds the anomaly rules. Enabled gates the anomaly signal only;
// evaluation and statistics always run.
type Config struct {
	Enabled    bool                   `json:"enabled"`
	ClearAfter float64                `json:"clear_after"` // seconds
	Groups     map[string]GroupConfig `json:"groups"`
}

// DefaultConfig returns a configuration with no rules.
func DefaultConfig() Config {
	return Config{
		ClearAfter: 5,
		Groups:     map[string]GroupConfig{},
	}
}

// ClearDelay returns the quiet period after which the signal clears.
func (c Config) ClearDelay() time.Duration {
	return time.Duration(c.ClearAfter * float64(time.Second))
}
