// Package config loads the robot profile: physical constants, device
// paths and motion tuning, from a YAML file with sane defaults for our
// competition chassis.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

type HeadingSource string

const (
	HeadingBNO085  HeadingSource = "bno085"
	HeadingMPU9250 HeadingSource = "mpu9250"
)

type Config struct {
	// Chassis geometry.  Axle track is the effective distance between
	// the wheel contact patches; turn calibration suggests corrections
	// to it as a multiplier.
	WheelDiameterMM float64 `yaml:"wheel_diameter_mm"`
	AxleTrackMM     float64 `yaml:"axle_track_mm"`

	HeadingSource HeadingSource `yaml:"heading_source"`
	SerialPort    string        `yaml:"serial_port"` // bno085 only
	SPIPort       string        `yaml:"spi_port"`    // mpu9250 only
	I2CDevice     string        `yaml:"i2c_device"`

	MissionsDir string `yaml:"missions_dir"`

	Motion MotionConfig `yaml:"motion"`
}

type MotionConfig struct {
	TickMs      int     `yaml:"tick_ms"`
	MarginDeg   float64 `yaml:"margin_deg"`
	MinNudgeDeg float64 `yaml:"min_nudge_deg"`

	// Bands overrides the built-in turn speed bands per mode (slow,
	// medium, fast); modes left out keep the defaults.
	Bands map[string]BandConfig `yaml:"bands"`
}

type BandConfig struct {
	LowDps  float64 `yaml:"low_dps"`
	HighDps float64 `yaml:"high_dps"`
}

var bandModes = map[string]motion.SpeedMode{
	"slow":   motion.SpeedSlow,
	"medium": motion.SpeedMedium,
	"fast":   motion.SpeedFast,
}

// SpeedBands converts the configured overrides to the motion package's
// form.  Returns nil when nothing is overridden.
func (c Config) SpeedBands() map[motion.SpeedMode]motion.Band {
	if len(c.Motion.Bands) == 0 {
		return nil
	}
	bands := make(map[motion.SpeedMode]motion.Band)
	for name, b := range c.Motion.Bands {
		bands[bandModes[name]] = motion.Band{LowDps: b.LowDps, HighDps: b.HighDps}
	}
	return bands
}

// Default returns the profile for the robot as built; a config file
// only needs to list the fields it changes.
func Default() Config {
	return Config{
		WheelDiameterMM: 63.5,
		AxleTrackMM:     140,
		HeadingSource:   HeadingBNO085,
		SerialPort:      "/dev/ttyAMA0",
		SPIPort:         "/dev/spidev0.1",
		I2CDevice:       "/dev/i2c-1",
		MissionsDir:     "/missions",
		Motion: MotionConfig{
			TickMs:      20,
			MarginDeg:   3,
			MinNudgeDeg: 0.5,
		},
	}
}

// Load reads path over the defaults.  A missing file is not an error:
// the defaults describe the real robot.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.WheelDiameterMM <= 0 {
		return fmt.Errorf("wheel_diameter_mm must be > 0")
	}
	if c.AxleTrackMM <= 0 {
		return fmt.Errorf("axle_track_mm must be > 0")
	}
	switch c.HeadingSource {
	case HeadingBNO085, HeadingMPU9250:
	default:
		return fmt.Errorf("unknown heading_source %q", c.HeadingSource)
	}
	if c.Motion.TickMs <= 0 {
		return fmt.Errorf("motion.tick_ms must be > 0")
	}
	if c.Motion.MarginDeg < 0 {
		return fmt.Errorf("motion.margin_deg must be >= 0")
	}
	if c.Motion.MinNudgeDeg <= 0 {
		return fmt.Errorf("motion.min_nudge_deg must be > 0")
	}
	for name, b := range c.Motion.Bands {
		if _, ok := bandModes[name]; !ok {
			return fmt.Errorf("unknown speed band %q", name)
		}
		if b.LowDps <= 0 || b.HighDps < b.LowDps {
			return fmt.Errorf("speed band %q needs 0 < low_dps <= high_dps", name)
		}
	}
	return nil
}

func (c Config) Tick() time.Duration {
	return time.Duration(c.Motion.TickMs) * time.Millisecond
}
