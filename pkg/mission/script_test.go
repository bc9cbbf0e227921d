package mission

import (
	"strings"
	"testing"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

const sampleScript = `
name: Crate run
light: green
steps:
  - drive: {cm: 37, speed: 30, accel: 50}
  - turn: {deg: 90, mode: fast, tolerance: 0.5, timeout_ms: 2000}
  - drive: {cm: 19.5, speed: 15, accel: 40, stall_ok: true, stop: brake}
  - motor: {port: b, deg: -120, speed: 400}
  - light: {color: yellow}
  - pause: {ms: 200}
  - turn: {deg: -45, aggressive: true}
`

func TestParseScript(t *testing.T) {
	s, err := Parse([]byte(sampleScript))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "Crate run" {
		t.Errorf("name = %q", s.Name)
	}
	if len(s.Steps) != 7 {
		t.Fatalf("steps = %d, want 7", len(s.Steps))
	}
	if c, _ := ParseLight(s.Light); c != hub.LightGreen {
		t.Errorf("light = %v, want green", c)
	}

	turn := s.Steps[1].Turn.turnRequest()
	if turn.TargetAngleDeg != 90 || turn.Mode != motion.SpeedFast {
		t.Errorf("turn request = %+v", turn)
	}
	if turn.SettleToleranceDeg != 0.5 || turn.SettleTimeout != 2*time.Second {
		t.Errorf("turn settle params = %v / %v", turn.SettleToleranceDeg, turn.SettleTimeout)
	}

	drive := s.Steps[2].Drive.driveRequest()
	if drive.DistanceCm != 19.5 || drive.Stop != hub.StopBrake {
		t.Errorf("drive request = %+v", drive)
	}
	if !s.Steps[2].Drive.StallOK {
		t.Error("stall_ok not parsed")
	}

	mot := s.Steps[3].Motor.motorRequest()
	if mot.Port != hub.MotorPortB || mot.AngleDeg != -120 || mot.SpeedDegPerS != 400 {
		t.Errorf("motor request = %+v", mot)
	}
	if c, _ := ParseLight(s.Steps[4].Light.Color); c != hub.LightYellow {
		t.Errorf("light step color = %q", s.Steps[4].Light.Color)
	}

	agg := s.Steps[6].Turn.turnRequest()
	if agg.Margin != motion.NoMargin {
		t.Error("aggressive turn should use NoMargin")
	}
	if agg.SettleToleranceDeg != defaultToleranceDeg || agg.SettleTimeout != defaultTimeout {
		t.Errorf("defaults not applied: %v / %v", agg.SettleToleranceDeg, agg.SettleTimeout)
	}
}

func TestParseRejectsBadScripts(t *testing.T) {
	cases := []struct {
		name, yaml, wantErr string
	}{
		{"no name", "steps: [{pause: {ms: 10}}]", "no name"},
		{"no steps", "name: x", "no steps"},
		{"two kinds in one step",
			"name: x\nsteps: [{drive: {cm: 1, speed: 1, accel: 1}, pause: {ms: 5}}]",
			"exactly one"},
		{"empty step", "name: x\nsteps: [{}]", "exactly one"},
		{"bad mode", "name: x\nsteps: [{turn: {deg: 90, mode: ludicrous}}]", "unknown speed mode"},
		{"bad stop", "name: x\nsteps: [{drive: {cm: 5, speed: 1, accel: 1, stop: yank}}]", "unknown stop mode"},
		{"bad light", "name: x\nlight: mauve\nsteps: [{pause: {ms: 5}}]", "unknown light color"},
		{"zero speed", "name: x\nsteps: [{drive: {cm: 5, accel: 1}}]", "speed must be"},
		{"zero pause", "name: x\nsteps: [{pause: {ms: 0}}]", "pause must be"},
		{"bad motor port", "name: x\nsteps: [{motor: {port: q, deg: 90, speed: 100}}]", "unknown motor port"},
		{"zero motor speed", "name: x\nsteps: [{motor: {deg: 90}}]", "motor speed must be"},
		{"bad light step", "name: x\nsteps: [{light: {color: mauve}}]", "unknown light color"},
		{"empty light step", "name: x\nsteps: [{light: {}}]", "needs a color"},
		{"unknown field", "name: x\nsteps: [{turn: {deg: 90, wibble: 1}}]", "wibble"},
	}
	for _, c := range cases {
		_, err := Parse([]byte(c.yaml))
		if err == nil {
			t.Errorf("%s: parse succeeded, want error containing %q", c.name, c.wantErr)
			continue
		}
		if !strings.Contains(err.Error(), c.wantErr) {
			t.Errorf("%s: err = %v, want it to mention %q", c.name, err, c.wantErr)
		}
	}
}
