package hub

import (
	"fmt"
	"sync"
	"time"
)

// Dummy returns a hub that logs commands and pretends each motion
// completes after the time it would really take.  Used on the bench when
// the I2C bus is missing.
func Dummy() Interface {
	return &dummyHub{}
}

type dummyHub struct {
	lock     sync.Mutex
	busyTill time.Time
}

func (d *dummyHub) Rotate(angleDeg, speedDegPerS float64) error {
	fmt.Printf("Dummy hub: rotate %.2f deg at %.0f deg/s\n", angleDeg, speedDegPerS)
	if speedDegPerS <= 0 {
		return nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.busyTill = time.Now().Add(time.Duration(abs(angleDeg) / speedDegPerS * float64(time.Second)))
	return nil
}

func (d *dummyHub) DriveStraight(distanceMM, speedMMPerS, accelMMPerS2 float64, stop StopMode) error {
	fmt.Printf("Dummy hub: drive %.0f mm at %.0f mm/s (accel %.0f, stop %v)\n",
		distanceMM, speedMMPerS, accelMMPerS2, stop)
	if speedMMPerS <= 0 {
		return nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.busyTill = time.Now().Add(time.Duration(abs(distanceMM) / speedMMPerS * float64(time.Second)))
	return nil
}

func (d *dummyHub) RunMotor(port MotorPort, angleDeg, speedDegPerS float64) error {
	fmt.Printf("Dummy hub: motor %v %.2f deg at %.0f deg/s\n", port, angleDeg, speedDegPerS)
	if speedDegPerS <= 0 {
		return nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.busyTill = time.Now().Add(time.Duration(abs(angleDeg) / speedDegPerS * float64(time.Second)))
	return nil
}

func (d *dummyHub) Busy() (bool, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return time.Now().Before(d.busyTill), nil
}

func (d *dummyHub) Stalled() (bool, error) {
	return false, nil
}

func (d *dummyHub) StopAll(stop StopMode) error {
	fmt.Printf("Dummy hub: stop all (%v)\n", stop)
	d.lock.Lock()
	defer d.lock.Unlock()
	d.busyTill = time.Time{}
	return nil
}

func (d *dummyHub) Buttons() (ButtonState, error) {
	return 0, nil
}

func (d *dummyHub) SetLight(color LightColor) error {
	return nil
}

func (d *dummyHub) Close() error {
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
