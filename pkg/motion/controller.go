// Package motion implements the blocking motion primitives that mission
// scripts are built from: a two-phase gyro turn and a straight-line drive
// with an optional stall-aware variant.  One primitive runs at a time and
// owns the drive hub for its duration; every exit path stops the motors
// before returning.
package motion

import (
	"fmt"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/estop"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

const (
	defaultTick        = 20 * time.Millisecond
	defaultMarginDeg   = 3
	defaultMinNudgeDeg = 0.5

	// Phase A slip (commanded minus achieved bulk rotation) above which
	// we bother computing an axle-track calibration suggestion.
	calibrationResidualDeg = 2
)

type Controller struct {
	Drive  hub.Interface
	Sensor heading.Sensor
	EStop  *estop.Latch

	// Optional tuning; zero value means the default.
	Tick        time.Duration // control tick / abort latency bound
	MarginDeg   float64       // degrees FixedMargin reserves for Phase B
	MinNudgeDeg float64       // floor for the oscillation-damped nudge step

	// Bands overrides the built-in speed bands per mode; modes without
	// an entry (or with an invalid one) keep the defaults.
	Bands map[SpeedMode]Band
}

func New(drive hub.Interface, sensor heading.Sensor, stop *estop.Latch) *Controller {
	return &Controller{
		Drive:  drive,
		Sensor: sensor,
		EStop:  stop,
	}
}

func (c *Controller) tick() time.Duration {
	if c.Tick > 0 {
		return c.Tick
	}
	return defaultTick
}

func (c *Controller) marginDeg() float64 {
	if c.MarginDeg > 0 {
		return c.MarginDeg
	}
	return defaultMarginDeg
}

func (c *Controller) minNudgeDeg() float64 {
	if c.MinNudgeDeg > 0 {
		return c.MinNudgeDeg
	}
	return defaultMinNudgeDeg
}

func (c *Controller) band(m SpeedMode) (Band, error) {
	if b, ok := c.Bands[m]; ok && b.valid() {
		return b, nil
	}
	if b, ok := defaultBands[m]; ok {
		return b, nil
	}
	return Band{}, fmt.Errorf("%w: bad speed mode %d", ErrInvalidRequest, int(m))
}
