// Package mission loads scripted routines from YAML and runs them
// through the motion primitives, strictly in step order.
package mission

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

type Script struct {
	Name  string `yaml:"name"`
	Light string `yaml:"light"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one of the step kinds; Validate enforces that.
type Step struct {
	Drive *DriveStep `yaml:"drive"`
	Turn  *TurnStep  `yaml:"turn"`
	Motor *MotorStep `yaml:"motor"`
	Light *LightStep `yaml:"light"`
	Pause *PauseStep `yaml:"pause"`
}

type DriveStep struct {
	Cm      float64 `yaml:"cm"`
	Speed   float64 `yaml:"speed"` // cm/s
	Accel   float64 `yaml:"accel"` // cm/s^2
	Stop    string  `yaml:"stop"`  // hold (default), brake, coast
	StallOK bool    `yaml:"stall_ok"`
}

type TurnStep struct {
	Deg       float64 `yaml:"deg"`
	Mode      string  `yaml:"mode"`      // slow (default), medium, fast
	Tolerance float64 `yaml:"tolerance"` // degrees; default 1
	TimeoutMs int     `yaml:"timeout_ms"`
	// Aggressive selects the no-margin variant: the bulk phase drives
	// the full angle and the settle loop only mops up.
	Aggressive bool `yaml:"aggressive"`
}

// MotorStep runs an attachment motor (sidearm, lift, grabber) by a
// number of degrees.  The robot doesn't move.
type MotorStep struct {
	Port  string  `yaml:"port"` // a or b
	Deg   float64 `yaml:"deg"`
	Speed float64 `yaml:"speed"` // deg/s
}

// LightStep changes the status light mid-mission.
type LightStep struct {
	Color string `yaml:"color"`
}

type PauseStep struct {
	Ms int `yaml:"ms"`
}

func Load(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Script, error) {
	var s Script
	if err := yaml.UnmarshalStrict(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse mission: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadDir loads every *.yaml mission in dir, sorted by filename so the
// menu order is stable.
func LoadDir(dir string) ([]*Script, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var scripts []*Script
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		scripts = append(scripts, s)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no mission files in %s", dir)
	}
	return scripts, nil
}

func (s *Script) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("mission has no name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("mission %q has no steps", s.Name)
	}
	if _, err := ParseLight(s.Light); err != nil {
		return fmt.Errorf("mission %q: %w", s.Name, err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("mission %q step %d: %w", s.Name, i+1, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	n := 0
	if st.Drive != nil {
		n++
	}
	if st.Turn != nil {
		n++
	}
	if st.Motor != nil {
		n++
	}
	if st.Light != nil {
		n++
	}
	if st.Pause != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("step must have exactly one of drive/turn/motor/light/pause")
	}
	switch {
	case st.Drive != nil:
		if st.Drive.Cm != 0 && st.Drive.Speed <= 0 {
			return fmt.Errorf("drive speed must be > 0")
		}
		if st.Drive.Cm != 0 && st.Drive.Accel <= 0 {
			return fmt.Errorf("drive accel must be > 0")
		}
		if _, err := parseStop(st.Drive.Stop); err != nil {
			return err
		}
	case st.Turn != nil:
		if _, err := parseMode(st.Turn.Mode); err != nil {
			return err
		}
		if st.Turn.Tolerance < 0 {
			return fmt.Errorf("turn tolerance must be >= 0")
		}
		if st.Turn.TimeoutMs < 0 {
			return fmt.Errorf("turn timeout must be >= 0")
		}
	case st.Motor != nil:
		if _, err := parsePort(st.Motor.Port); err != nil {
			return err
		}
		if st.Motor.Deg != 0 && st.Motor.Speed <= 0 {
			return fmt.Errorf("motor speed must be > 0")
		}
	case st.Light != nil:
		if st.Light.Color == "" {
			return fmt.Errorf("light step needs a color")
		}
		if _, err := ParseLight(st.Light.Color); err != nil {
			return err
		}
	case st.Pause != nil:
		if st.Pause.Ms <= 0 {
			return fmt.Errorf("pause must be > 0 ms")
		}
	}
	return nil
}

func parsePort(s string) (hub.MotorPort, error) {
	switch s {
	case "", "a", "A":
		return hub.MotorPortA, nil
	case "b", "B":
		return hub.MotorPortB, nil
	default:
		return 0, fmt.Errorf("unknown motor port %q", s)
	}
}

func parseStop(s string) (hub.StopMode, error) {
	switch s {
	case "", "hold":
		return hub.StopHold, nil
	case "brake":
		return hub.StopBrake, nil
	case "coast":
		return hub.StopCoast, nil
	default:
		return 0, fmt.Errorf("unknown stop mode %q", s)
	}
}

func parseMode(s string) (motion.SpeedMode, error) {
	switch s {
	case "", "slow":
		return motion.SpeedSlow, nil
	case "medium":
		return motion.SpeedMedium, nil
	case "fast":
		return motion.SpeedFast, nil
	default:
		return 0, fmt.Errorf("unknown speed mode %q", s)
	}
}

// ParseLight maps the script's light name to a hub color.  Empty means
// the selector assigns one.
func ParseLight(s string) (hub.LightColor, error) {
	switch s {
	case "":
		return hub.LightOff, nil
	case "red":
		return hub.LightRed, nil
	case "orange":
		return hub.LightOrange, nil
	case "yellow":
		return hub.LightYellow, nil
	case "green":
		return hub.LightGreen, nil
	case "blue":
		return hub.LightBlue, nil
	case "white":
		return hub.LightWhite, nil
	default:
		return 0, fmt.Errorf("unknown light color %q", s)
	}
}

const (
	defaultToleranceDeg = 1.0
	defaultTimeout      = 1500 * time.Millisecond
)

// turnRequest converts a validated TurnStep into a motion request,
// filling in the defaults.
func (ts *TurnStep) turnRequest() motion.TurnRequest {
	mode, _ := parseMode(ts.Mode)
	req := motion.TurnRequest{
		TargetAngleDeg:     ts.Deg,
		Mode:               mode,
		SettleToleranceDeg: ts.Tolerance,
		SettleTimeout:      time.Duration(ts.TimeoutMs) * time.Millisecond,
	}
	if ts.Aggressive {
		req.Margin = motion.NoMargin
	}
	if req.SettleToleranceDeg == 0 {
		req.SettleToleranceDeg = defaultToleranceDeg
	}
	if req.SettleTimeout == 0 {
		req.SettleTimeout = defaultTimeout
	}
	return req
}

func (ms *MotorStep) motorRequest() motion.MotorRequest {
	port, _ := parsePort(ms.Port)
	return motion.MotorRequest{
		Port:         port,
		AngleDeg:     ms.Deg,
		SpeedDegPerS: ms.Speed,
	}
}

func (ds *DriveStep) driveRequest() motion.DriveRequest {
	stop, _ := parseStop(ds.Stop)
	return motion.DriveRequest{
		DistanceCm:       ds.Cm,
		VelocityCmS:      ds.Speed,
		AccelerationCmS2: ds.Accel,
		Stop:             stop,
	}
}
