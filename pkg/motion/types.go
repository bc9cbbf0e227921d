package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

// ErrEmergencyAbort is the only error that unwinds a motion primitive
// mid-run.  The motors have already been commanded to hold by the time a
// caller sees it; the current mission must terminate.
var ErrEmergencyAbort = errors.New("emergency stop triggered")

// ErrInvalidRequest is returned (wrapped, with detail) for malformed
// requests, before any motor command is issued.
var ErrInvalidRequest = errors.New("invalid request")

// SpeedMode selects the rotation speed band for a turn.  Phase A runs at
// the top of the band; Phase B nudges run at the bottom, whatever the
// Phase A speed was, to avoid overshoot.
type SpeedMode int

const (
	SpeedSlow SpeedMode = iota
	SpeedMedium
	SpeedFast
)

func (m SpeedMode) String() string {
	switch m {
	case SpeedSlow:
		return "slow"
	case SpeedMedium:
		return "medium"
	case SpeedFast:
		return "fast"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Band is a rotation speed band in deg/s.  Phase A runs at High, Phase B
// nudges at Low.
type Band struct {
	LowDps, HighDps float64
}

func (b Band) valid() bool {
	return b.LowDps > 0 && b.HighDps >= b.LowDps
}

var defaultBands = map[SpeedMode]Band{
	SpeedSlow:   {80, 120},
	SpeedMedium: {140, 150},
	SpeedFast:   {200, 220},
}

// MarginStrategy controls how much of the requested angle Phase A leaves
// for the settle loop.  One state machine serves both variants; only the
// margin differs.
type MarginStrategy int

const (
	// FixedMargin reserves a fixed number of degrees for Phase B so the
	// settle loop always has room to work.
	FixedMargin MarginStrategy = iota
	// NoMargin drives the full angle in Phase A and uses Phase B only
	// to mop up residual error.  Shorter Phase A, possibly longer
	// Phase B; used where tighter final tolerance is needed.
	NoMargin
)

// TurnRequest describes one two-phase gyro turn.  TargetAngleDeg is
// relative to the heading at call time, positive = clockwise, and may
// exceed 360.  Immutable once the turn starts.
type TurnRequest struct {
	TargetAngleDeg     float64
	Mode               SpeedMode
	Margin             MarginStrategy
	SettleToleranceDeg float64
	SettleTimeout      time.Duration
}

func (r TurnRequest) validate() error {
	if r.SettleToleranceDeg <= 0 {
		return fmt.Errorf("%w: settle tolerance must be > 0, got %v", ErrInvalidRequest, r.SettleToleranceDeg)
	}
	if r.SettleTimeout <= 0 {
		return fmt.Errorf("%w: settle timeout must be > 0, got %v", ErrInvalidRequest, r.SettleTimeout)
	}
	if _, ok := defaultBands[r.Mode]; !ok {
		return fmt.Errorf("%w: bad speed mode %d", ErrInvalidRequest, int(r.Mode))
	}
	switch r.Margin {
	case FixedMargin, NoMargin:
	default:
		return fmt.Errorf("%w: bad margin strategy %d", ErrInvalidRequest, int(r.Margin))
	}
	return nil
}

// TurnResult is the diagnostic record of a completed (or timed-out) turn.
// A timed-out settle is still a result: the caller sees the residual
// error and decides whether it can live with it.
type TurnResult struct {
	AchievedAngleDeg float64
	ErrorDeg         float64 // target - achieved, wrap-normalized
	TimedOut         bool

	PhaseATime time.Duration
	PhaseBTime time.Duration

	// Suggested multiplier for the axle-track constant, derived from
	// Phase A alone.  Advisory only; never applied automatically.
	CalibrationSuggestion float64
	CalibrationSuggested  bool
}

func (r TurnResult) String() string {
	s := fmt.Sprintf("achieved %.2f deg (error %.2f), phase A %v, phase B %v",
		r.AchievedAngleDeg, r.ErrorDeg, r.PhaseATime.Round(time.Millisecond), r.PhaseBTime.Round(time.Millisecond))
	if r.TimedOut {
		s += " [settle timed out]"
	}
	if r.CalibrationSuggested {
		s += fmt.Sprintf(" [suggest axle-track factor %.3f]", r.CalibrationSuggestion)
	}
	return s
}

// DriveRequest describes one straight-line move.  Distances are accepted
// in centimetres at this boundary and converted to millimetres
// internally.
type DriveRequest struct {
	DistanceCm       float64
	VelocityCmS      float64
	AccelerationCmS2 float64
	Stop             hub.StopMode
}

func (r DriveRequest) validate() error {
	if r.DistanceCm == 0 {
		// Zero distance is a documented no-op; speed fields don't
		// matter.
		return nil
	}
	if r.VelocityCmS <= 0 {
		return fmt.Errorf("%w: velocity must be > 0, got %v", ErrInvalidRequest, r.VelocityCmS)
	}
	if r.AccelerationCmS2 <= 0 {
		return fmt.Errorf("%w: acceleration must be > 0, got %v", ErrInvalidRequest, r.AccelerationCmS2)
	}
	return nil
}

// DriveResult reports the stall-aware drive outcome.  Completed is false
// if a stall cut the move short; that is data, not a failure.
type DriveResult struct {
	Completed bool
}

// MotorRequest describes one attachment motor move: turn the motor on
// Port by AngleDeg (signed) at SpeedDegPerS.
type MotorRequest struct {
	Port         hub.MotorPort
	AngleDeg     float64
	SpeedDegPerS float64
}

func (r MotorRequest) validate() error {
	switch r.Port {
	case hub.MotorPortA, hub.MotorPortB:
	default:
		return fmt.Errorf("%w: bad motor port %d", ErrInvalidRequest, byte(r.Port))
	}
	if r.AngleDeg == 0 {
		// Zero angle is a no-op; speed doesn't matter.
		return nil
	}
	if r.SpeedDegPerS <= 0 {
		return fmt.Errorf("%w: motor speed must be > 0, got %v", ErrInvalidRequest, r.SpeedDegPerS)
	}
	return nil
}
