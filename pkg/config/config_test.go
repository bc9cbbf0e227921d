package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.Tick() != 20*time.Millisecond {
		t.Errorf("tick = %v, want 20ms", cfg.Tick())
	}
	if cfg.SpeedBands() != nil {
		t.Errorf("default config should not override speed bands: %v", cfg.SpeedBands())
	}
}

func TestSpeedBandOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	body := `
motion:
  bands:
    slow: {low_dps: 60, high_dps: 100}
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	bands := cfg.SpeedBands()
	want := motion.Band{LowDps: 60, HighDps: 100}
	if bands[motion.SpeedSlow] != want {
		t.Errorf("slow band = %+v, want %+v", bands[motion.SpeedSlow], want)
	}
	if _, ok := bands[motion.SpeedFast]; ok {
		t.Error("fast band should not be overridden")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	body := `
heading_source: mpu9250
axle_track_mm: 142.5
motion:
  tick_ms: 10
  margin_deg: 2
  min_nudge_deg: 0.25
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HeadingSource != HeadingMPU9250 {
		t.Errorf("heading_source = %q", cfg.HeadingSource)
	}
	if cfg.AxleTrackMM != 142.5 {
		t.Errorf("axle_track_mm = %v", cfg.AxleTrackMM)
	}
	if cfg.Motion.MinNudgeDeg != 0.25 || cfg.Tick() != 10*time.Millisecond {
		t.Errorf("motion = %+v", cfg.Motion)
	}
	// Unset fields keep their defaults.
	if cfg.WheelDiameterMM != 63.5 {
		t.Errorf("wheel_diameter_mm = %v, want default", cfg.WheelDiameterMM)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []string{
		"heading_source: ouija",
		"axle_track_mm: -1",
		"motion: {tick_ms: 0}",
		"motion: {bands: {ludicrous: {low_dps: 1, high_dps: 2}}}",
		"motion: {bands: {slow: {low_dps: 100, high_dps: 50}}}",
		"motion: {bands: {slow: {low_dps: 0, high_dps: 50}}}",
		"wibble: true",
	}
	for _, body := range cases {
		path := filepath.Join(t.TempDir(), "robot.yaml")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("config %q loaded without error", body)
		}
	}
}
