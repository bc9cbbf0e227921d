package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

// DriveDistance moves the robot req.DistanceCm along its current heading
// and blocks until the move completes.  Stalls are ignored; the hub's
// own velocity loop grinds through whatever it can.  Only the emergency
// stop (or context cancellation) aborts the move.
func (c *Controller) DriveDistance(ctx context.Context, req DriveRequest) error {
	_, err := c.drive(ctx, req, false)
	return err
}

// DriveDistanceStallAware is DriveDistance with stall detection: if the
// motors can't maintain speed against resistance before the distance is
// covered, the move halts with the requested stop behavior and the
// result reports Completed=false.  A stall is data, not an error.
func (c *Controller) DriveDistanceStallAware(ctx context.Context, req DriveRequest) (DriveResult, error) {
	return c.drive(ctx, req, true)
}

func (c *Controller) drive(ctx context.Context, req DriveRequest, stallAware bool) (DriveResult, error) {
	if err := req.validate(); err != nil {
		return DriveResult{}, err
	}
	if req.DistanceCm == 0 {
		// No-op; no motor command at all.
		return DriveResult{Completed: true}, nil
	}

	if err := c.driveGuard(ctx); err != nil {
		return DriveResult{}, err
	}

	// Centimetres at the API boundary, millimetres on the wire.
	err := c.Drive.DriveStraight(req.DistanceCm*10, req.VelocityCmS*10, req.AccelerationCmS2*10, req.Stop)
	if err != nil {
		c.stopHold()
		return DriveResult{}, err
	}

	for {
		if err := c.driveGuard(ctx); err != nil {
			return DriveResult{}, err
		}
		if stallAware {
			stalled, err := c.Drive.Stalled()
			if err != nil {
				c.stopHold()
				return DriveResult{}, err
			}
			if stalled {
				fmt.Println("Drive: stall detected, halting")
				if err := c.Drive.StopAll(req.Stop); err != nil {
					return DriveResult{}, err
				}
				return DriveResult{Completed: false}, nil
			}
		}
		busy, err := c.Drive.Busy()
		if err != nil {
			c.stopHold()
			return DriveResult{}, err
		}
		if !busy {
			return DriveResult{Completed: true}, nil
		}
		time.Sleep(c.tick())
	}
}

func (c *Controller) driveGuard(ctx context.Context) error {
	if c.EStop != nil && c.EStop.Triggered() {
		c.stopHold()
		return ErrEmergencyAbort
	}
	if err := ctx.Err(); err != nil {
		c.stopHold()
		return err
	}
	return nil
}

func (c *Controller) stopHold() {
	if err := c.Drive.StopAll(hub.StopHold); err != nil {
		fmt.Println("Drive: failed to stop motors:", err)
	}
}
