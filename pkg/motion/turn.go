package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/angle"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

// Turn state machine: idle -> bulk -> settle -> {settled | timedOut},
// with abort possible from any polling point.  Settled and timedOut both
// produce a TurnResult; abort does not.
type turnPhase int

const (
	phaseIdle turnPhase = iota
	phaseBulk
	phaseSettle
	phaseSettled
	phaseTimedOut
	phaseAborted
)

func (p turnPhase) String() string {
	switch p {
	case phaseIdle:
		return "IDLE"
	case phaseBulk:
		return "PHASE_A_RUNNING"
	case phaseSettle:
		return "PHASE_B_SETTLING"
	case phaseSettled:
		return "SETTLED"
	case phaseTimedOut:
		return "TIMED_OUT"
	case phaseAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// TurnToHeading rotates the robot by req.TargetAngleDeg (relative,
// positive = clockwise) and settles the final heading to within
// req.SettleToleranceDeg using sensor feedback.  Blocks until the turn
// settles, the settle timeout expires (still a TurnResult, with the
// residual error reported) or the emergency stop fires
// (ErrEmergencyAbort, motors held, no result).
func (c *Controller) TurnToHeading(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := req.validate(); err != nil {
		return TurnResult{}, err
	}
	band, err := c.band(req.Mode)
	if err != nil {
		return TurnResult{}, err
	}
	t := &turn{c: c, req: req, band: band}
	return t.run(ctx)
}

type turn struct {
	c    *Controller
	req  TurnRequest
	band Band

	phase turnPhase

	// achievedDeg accumulates rotation since turn start without
	// wrapping, so requests beyond +/-360 work; each per-tick delta is
	// wrap-normalized, which is safe because the robot can't rotate
	// more than ~4.5 degrees in one tick at the fastest band.
	lastSample  heading.Sample
	achievedDeg float64
}

func (t *turn) run(ctx context.Context) (TurnResult, error) {
	// Initial heading fix; everything is measured relative to this.
	t.lastSample = t.c.Sensor.WaitForSampleAfter(time.Time{})

	// Phase A: bulk rotation, leaving whatever margin the strategy
	// calls for.
	t.phase = phaseBulk
	bulkDeg := t.bulkAngle()
	phaseAStart := time.Now()
	if bulkDeg != 0 {
		if err := t.guard(ctx); err != nil {
			return TurnResult{}, err
		}
		if err := t.c.Drive.Rotate(bulkDeg, t.band.HighDps); err != nil {
			t.stopHold()
			return TurnResult{}, err
		}
		if err := t.waitMotionDone(ctx); err != nil {
			return TurnResult{}, err
		}
	}
	t.accumulate(t.c.Sensor.WaitForSampleAfter(t.lastSample.Time))
	phaseATime := time.Since(phaseAStart)
	achievedBulkDeg := t.achievedDeg

	remainingDeg := t.req.TargetAngleDeg - t.achievedDeg
	fmt.Printf("Turn: phase A done in %v: commanded %.2f, achieved %.2f, remaining %.2f\n",
		phaseATime.Round(time.Millisecond), bulkDeg, achievedBulkDeg, remainingDeg)

	// Axle-track diagnostic, from Phase A alone: compare what the bulk
	// phase commanded with what it achieved, so the margin FixedMargin
	// deliberately leaves behind doesn't count as slip.  Advisory output
	// for the operator; never applied automatically.
	var suggestion float64
	var suggested bool
	if bulkDeg != 0 && math.Abs(bulkDeg-achievedBulkDeg) > calibrationResidualDeg {
		suggestion, suggested = TrackWidthSuggestion(bulkDeg, achievedBulkDeg)
	}

	// Phase B: settle loop.  Fixed-duration nudges at the bottom of
	// the speed band, with the step halved (down to a floor) whenever
	// the error flips sign without shrinking.
	t.phase = phaseSettle
	phaseBStart := time.Now()
	nudgeDeg := t.band.LowDps * t.c.tick().Seconds()
	for math.Abs(remainingDeg) > t.req.SettleToleranceDeg {
		if time.Since(phaseBStart) >= t.req.SettleTimeout {
			t.phase = phaseTimedOut
			break
		}
		if err := t.guard(ctx); err != nil {
			return TurnResult{}, err
		}
		nudge := math.Copysign(nudgeDeg, remainingDeg)
		if err := t.c.Drive.Rotate(nudge, t.band.LowDps); err != nil {
			t.stopHold()
			return TurnResult{}, err
		}
		if err := t.waitMotionDone(ctx); err != nil {
			return TurnResult{}, err
		}
		t.accumulate(t.c.Sensor.WaitForSampleAfter(t.lastSample.Time))

		lastRemaining := remainingDeg
		remainingDeg = t.req.TargetAngleDeg - t.achievedDeg
		if remainingDeg*lastRemaining < 0 &&
			math.Abs(remainingDeg) >= math.Abs(lastRemaining) {
			// Oscillating around the target without getting
			// closer; take smaller bites.
			nudgeDeg /= 2
			if nudgeDeg < t.c.minNudgeDeg() {
				nudgeDeg = t.c.minNudgeDeg()
			}
			fmt.Printf("Turn: oscillation, nudge now %.2f deg\n", nudgeDeg)
		}
	}
	if t.phase != phaseTimedOut {
		t.phase = phaseSettled
	}
	phaseBTime := time.Since(phaseBStart)

	if err := t.c.Drive.StopAll(hub.StopHold); err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{
		AchievedAngleDeg:      t.achievedDeg,
		ErrorDeg:              angle.FromFloat(t.req.TargetAngleDeg - t.achievedDeg).Float(),
		TimedOut:              t.phase == phaseTimedOut,
		PhaseATime:            phaseATime,
		PhaseBTime:            phaseBTime,
		CalibrationSuggestion: suggestion,
		CalibrationSuggested:  suggested,
	}
	fmt.Printf("Turn: %v: %v\n", t.phase, res)
	return res, nil
}

// bulkAngle is the Phase A command: the full target minus whatever the
// margin strategy reserves for Phase B.
func (t *turn) bulkAngle() float64 {
	target := t.req.TargetAngleDeg
	if t.req.Margin == NoMargin {
		return target
	}
	margin := t.c.marginDeg()
	if math.Abs(target) <= margin {
		// Too small a turn for a bulk phase; let the settle loop do
		// all the work.
		return 0
	}
	return target - math.Copysign(margin, target)
}

// guard is called at every poll point.  On emergency stop it halts the
// motors and unwinds with ErrEmergencyAbort; context cancellation is
// treated the same way (motors held first).
func (t *turn) guard(ctx context.Context) error {
	if t.c.EStop != nil && t.c.EStop.Triggered() {
		t.phase = phaseAborted
		t.stopHold()
		return ErrEmergencyAbort
	}
	if err := ctx.Err(); err != nil {
		t.phase = phaseAborted
		t.stopHold()
		return err
	}
	return nil
}

// waitMotionDone blocks until the hub finishes the in-flight rotation,
// polling the emergency stop each tick and folding heading progress into
// the unwrapped accumulator as we go.
func (t *turn) waitMotionDone(ctx context.Context) error {
	for {
		if err := t.guard(ctx); err != nil {
			return err
		}
		t.accumulate(t.c.Sensor.CurrentSample())
		busy, err := t.c.Drive.Busy()
		if err != nil {
			t.stopHold()
			return err
		}
		if !busy {
			return nil
		}
		time.Sleep(t.c.tick())
	}
}

func (t *turn) accumulate(s heading.Sample) {
	if !s.Time.After(t.lastSample.Time) {
		return
	}
	t.achievedDeg += s.Yaw.Sub(t.lastSample.Yaw).Float()
	t.lastSample = s
}

func (t *turn) stopHold() {
	if err := t.c.Drive.StopAll(hub.StopHold); err != nil {
		fmt.Println("Turn: failed to stop motors:", err)
	}
}
