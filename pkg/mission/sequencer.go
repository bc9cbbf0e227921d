package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

// Motion is the slice of the motion controller the sequencer drives.
type Motion interface {
	TurnToHeading(ctx context.Context, req motion.TurnRequest) (motion.TurnResult, error)
	DriveDistance(ctx context.Context, req motion.DriveRequest) error
	DriveDistanceStallAware(ctx context.Context, req motion.DriveRequest) (motion.DriveResult, error)
	RunMotorForDegrees(ctx context.Context, req motion.MotorRequest) error
}

// Lights is the slice of the hub that light steps need.
type Lights interface {
	SetLight(color hub.LightColor) error
}

// Sequencer runs a mission script step by step.  Any error from a
// step aborts the rest of the mission; a stall on a stall_ok drive is
// not an error, it is how those steps normally end.
type Sequencer struct {
	Motion Motion

	// Lights handles light steps; nil means they only log.
	Lights Lights

	// OnTurnResult, if set, receives every turn's outcome.  The pilot
	// uses it to surface calibration suggestions on the screen.
	OnTurnResult func(motion.TurnResult)

	// TurnDefaults, if set, supplies the settle tolerance and timeout
	// for turn steps that don't name their own.  The pilot backs this
	// with the live tunables.
	TurnDefaults func() (toleranceDeg float64, timeout time.Duration)
}

func (sq *Sequencer) Run(ctx context.Context, script *Script) error {
	fmt.Printf("MISSION: %s: starting, %d steps\n", script.Name, len(script.Steps))
	start := time.Now()
	for i, step := range script.Steps {
		if err := sq.runStep(ctx, script, i, step); err != nil {
			fmt.Printf("MISSION: %s: aborted at step %d: %v\n", script.Name, i+1, err)
			return err
		}
	}
	fmt.Printf("MISSION: %s: done in %.1fs\n", script.Name, time.Since(start).Seconds())
	return nil
}

func (sq *Sequencer) runStep(ctx context.Context, script *Script, i int, step Step) error {
	switch {
	case step.Turn != nil:
		fmt.Printf("MISSION: %s: step %d: turn %.1f\n", script.Name, i+1, step.Turn.Deg)
		req := step.Turn.turnRequest()
		if sq.TurnDefaults != nil {
			tol, timeout := sq.TurnDefaults()
			if step.Turn.Tolerance == 0 {
				req.SettleToleranceDeg = tol
			}
			if step.Turn.TimeoutMs == 0 {
				req.SettleTimeout = timeout
			}
		}
		result, err := sq.Motion.TurnToHeading(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("MISSION: %s: step %d: %v\n", script.Name, i+1, result)
		if sq.OnTurnResult != nil {
			sq.OnTurnResult(result)
		}
		if result.TimedOut {
			fmt.Printf("MISSION: %s: step %d: settle timed out, carrying on with %.2f residual\n",
				script.Name, i+1, result.ErrorDeg)
		}
		return nil
	case step.Drive != nil:
		fmt.Printf("MISSION: %s: step %d: drive %.1fcm\n", script.Name, i+1, step.Drive.Cm)
		req := step.Drive.driveRequest()
		if step.Drive.StallOK {
			result, err := sq.Motion.DriveDistanceStallAware(ctx, req)
			if err != nil {
				return err
			}
			if !result.Completed {
				fmt.Printf("MISSION: %s: step %d: stalled out as expected\n", script.Name, i+1)
			}
			return nil
		}
		return sq.Motion.DriveDistance(ctx, req)
	case step.Motor != nil:
		fmt.Printf("MISSION: %s: step %d: motor %s %.0f deg\n",
			script.Name, i+1, step.Motor.Port, step.Motor.Deg)
		return sq.Motion.RunMotorForDegrees(ctx, step.Motor.motorRequest())
	case step.Light != nil:
		fmt.Printf("MISSION: %s: step %d: light %s\n", script.Name, i+1, step.Light.Color)
		if sq.Lights == nil {
			return nil
		}
		color, _ := ParseLight(step.Light.Color)
		return sq.Lights.SetLight(color)
	case step.Pause != nil:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(step.Pause.Ms) * time.Millisecond):
			return nil
		}
	}
	// Validate() rules this out.
	return fmt.Errorf("empty step")
}
