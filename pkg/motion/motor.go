package motion

import (
	"context"
	"time"
)

// RunMotorForDegrees turns the attachment motor on req.Port by
// req.AngleDeg and blocks until the move completes.  The hub's own
// position loop does the work; we poll busy and the emergency stop each
// tick, the same as a drive.
func (c *Controller) RunMotorForDegrees(ctx context.Context, req MotorRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	if req.AngleDeg == 0 {
		// No-op; no motor command at all.
		return nil
	}

	if err := c.driveGuard(ctx); err != nil {
		return err
	}
	if err := c.Drive.RunMotor(req.Port, req.AngleDeg, req.SpeedDegPerS); err != nil {
		c.stopHold()
		return err
	}

	for {
		if err := c.driveGuard(ctx); err != nil {
			return err
		}
		busy, err := c.Drive.Busy()
		if err != nil {
			c.stopHold()
			return err
		}
		if !busy {
			return nil
		}
		time.Sleep(c.tick())
	}
}
