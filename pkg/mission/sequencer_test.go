package mission

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

type fakeMotion struct {
	calls       []string
	turnReqs    []motion.TurnRequest
	turnErr     error
	turnResult  motion.TurnResult
	driveErr    error
	motorErr    error
	stallResult motion.DriveResult
}

func (f *fakeMotion) TurnToHeading(ctx context.Context, req motion.TurnRequest) (motion.TurnResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("turn %.1f", req.TargetAngleDeg))
	f.turnReqs = append(f.turnReqs, req)
	return f.turnResult, f.turnErr
}

func (f *fakeMotion) DriveDistance(ctx context.Context, req motion.DriveRequest) error {
	f.calls = append(f.calls, fmt.Sprintf("drive %.1f", req.DistanceCm))
	return f.driveErr
}

func (f *fakeMotion) DriveDistanceStallAware(ctx context.Context, req motion.DriveRequest) (motion.DriveResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("drive-stallok %.1f", req.DistanceCm))
	return f.stallResult, f.driveErr
}

func (f *fakeMotion) RunMotorForDegrees(ctx context.Context, req motion.MotorRequest) error {
	f.calls = append(f.calls, fmt.Sprintf("motor %s %.1f", req.Port, req.AngleDeg))
	return f.motorErr
}

type fakeLights struct {
	colors []hub.LightColor
}

func (f *fakeLights) SetLight(c hub.LightColor) error {
	f.colors = append(f.colors, c)
	return nil
}

func TestSequencerRunsStepsInOrder(t *testing.T) {
	script, err := Parse([]byte(`
name: Order check
steps:
  - drive: {cm: 10, speed: 20, accel: 30}
  - turn: {deg: 90}
  - drive: {cm: -5, speed: 20, accel: 30, stall_ok: true}
  - motor: {port: a, deg: 90, speed: 200}
  - pause: {ms: 1}
  - turn: {deg: -90}
`))
	if err != nil {
		t.Fatal(err)
	}
	m := &fakeMotion{stallResult: motion.DriveResult{Completed: false}}
	sq := &Sequencer{Motion: m}
	if err := sq.Run(context.Background(), script); err != nil {
		t.Fatal(err)
	}
	want := []string{"drive 10.0", "turn 90.0", "drive-stallok -5.0", "motor A 90.0", "turn -90.0"}
	if len(m.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", m.calls, want)
	}
	for i := range want {
		if m.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, m.calls[i], want[i])
		}
	}
}

func TestSequencerLightSteps(t *testing.T) {
	script, err := Parse([]byte(`
name: Light check
steps:
  - light: {color: blue}
  - pause: {ms: 1}
  - light: {color: red}
`))
	if err != nil {
		t.Fatal(err)
	}
	lights := &fakeLights{}
	sq := &Sequencer{Motion: &fakeMotion{}, Lights: lights}
	if err := sq.Run(context.Background(), script); err != nil {
		t.Fatal(err)
	}
	want := []hub.LightColor{hub.LightBlue, hub.LightRed}
	if len(lights.colors) != len(want) {
		t.Fatalf("light calls = %v, want %v", lights.colors, want)
	}
	for i := range want {
		if lights.colors[i] != want[i] {
			t.Errorf("light %d = %v, want %v", i, lights.colors[i], want[i])
		}
	}

	// Without a light sink the steps are log-only, not an error.
	sq = &Sequencer{Motion: &fakeMotion{}}
	if err := sq.Run(context.Background(), script); err != nil {
		t.Fatal(err)
	}
}

func TestSequencerAbortStopsMission(t *testing.T) {
	script, err := Parse([]byte(`
name: Abort check
steps:
  - turn: {deg: 90}
  - drive: {cm: 10, speed: 20, accel: 30}
`))
	if err != nil {
		t.Fatal(err)
	}
	m := &fakeMotion{turnErr: motion.ErrEmergencyAbort}
	sq := &Sequencer{Motion: m}
	err = sq.Run(context.Background(), script)
	if !errors.Is(err, motion.ErrEmergencyAbort) {
		t.Fatalf("err = %v, want ErrEmergencyAbort", err)
	}
	if len(m.calls) != 1 {
		t.Errorf("mission kept going after abort: %v", m.calls)
	}
}

func TestSequencerReportsTurnResults(t *testing.T) {
	script, err := Parse([]byte(`
name: Report check
steps:
  - turn: {deg: 87}
`))
	if err != nil {
		t.Fatal(err)
	}
	m := &fakeMotion{turnResult: motion.TurnResult{
		AchievedAngleDeg:      86.8,
		ErrorDeg:              0.2,
		CalibrationSuggested:  true,
		CalibrationSuggestion: 1.05,
	}}
	var seen []motion.TurnResult
	sq := &Sequencer{
		Motion:       m,
		OnTurnResult: func(r motion.TurnResult) { seen = append(seen, r) },
	}
	if err := sq.Run(context.Background(), script); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || !seen[0].CalibrationSuggested {
		t.Errorf("turn results seen = %+v", seen)
	}
}

func TestSequencerTurnDefaultsFillUnsetFields(t *testing.T) {
	script, err := Parse([]byte(`
name: Defaults check
steps:
  - turn: {deg: 90}
  - turn: {deg: 90, tolerance: 0.25, timeout_ms: 900}
`))
	if err != nil {
		t.Fatal(err)
	}
	m := &fakeMotion{}
	sq := &Sequencer{
		Motion: m,
		TurnDefaults: func() (float64, time.Duration) {
			return 1.75, 4 * time.Second
		},
	}
	if err := sq.Run(context.Background(), script); err != nil {
		t.Fatal(err)
	}
	if len(m.turnReqs) != 2 {
		t.Fatalf("turn requests = %d, want 2", len(m.turnReqs))
	}
	if m.turnReqs[0].SettleToleranceDeg != 1.75 || m.turnReqs[0].SettleTimeout != 4*time.Second {
		t.Errorf("defaults not applied: %+v", m.turnReqs[0])
	}
	// Explicit step values win over the live defaults.
	if m.turnReqs[1].SettleToleranceDeg != 0.25 || m.turnReqs[1].SettleTimeout != 900*time.Millisecond {
		t.Errorf("explicit values overridden: %+v", m.turnReqs[1])
	}
}
