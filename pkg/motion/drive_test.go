package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/estop"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

type driveCall struct {
	distMM, speedMMS, accelMMS2 float64
	stop                        hub.StopMode
}

type motorCall struct {
	port               hub.MotorPort
	angleDeg, speedDps float64
}

// fakeDriveHub stays busy for totalPolls Busy() calls per drive command,
// optionally reporting a stall or firing the emergency stop partway
// through.
type fakeDriveHub struct {
	totalPolls  int
	stallAtPoll int // 0 = never stall

	pollsLeft int
	pollsDone int

	drives []driveCall
	motors []motorCall
	stops  []hub.StopMode

	latch         *estop.Latch
	triggerAtPoll int
}

func (f *fakeDriveHub) Rotate(angleDeg, speedDegPerS float64) error { return nil }

func (f *fakeDriveHub) DriveStraight(distanceMM, speedMMPerS, accelMMPerS2 float64, stop hub.StopMode) error {
	f.drives = append(f.drives, driveCall{distanceMM, speedMMPerS, accelMMPerS2, stop})
	f.pollsLeft = f.totalPolls
	f.pollsDone = 0
	return nil
}

func (f *fakeDriveHub) RunMotor(port hub.MotorPort, angleDeg, speedDegPerS float64) error {
	f.motors = append(f.motors, motorCall{port, angleDeg, speedDegPerS})
	f.pollsLeft = f.totalPolls
	f.pollsDone = 0
	return nil
}

func (f *fakeDriveHub) Busy() (bool, error) {
	if f.pollsLeft > 0 {
		f.pollsLeft--
		f.pollsDone++
		if f.latch != nil && f.pollsDone >= f.triggerAtPoll {
			f.latch.Trigger()
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeDriveHub) Stalled() (bool, error) {
	return f.stallAtPoll > 0 && f.pollsDone >= f.stallAtPoll, nil
}

func (f *fakeDriveHub) StopAll(stop hub.StopMode) error {
	f.stops = append(f.stops, stop)
	return nil
}

func (f *fakeDriveHub) Buttons() (hub.ButtonState, error) { return 0, nil }
func (f *fakeDriveHub) SetLight(c hub.LightColor) error   { return nil }
func (f *fakeDriveHub) Close() error                      { return nil }

func newDriveRig(h *fakeDriveHub) (*Controller, *estop.Latch) {
	latch := estop.New()
	latch.Arm()
	c := New(h, newFakeSensor(), latch)
	c.Tick = time.Millisecond
	return c, latch
}

func TestDriveZeroDistanceIsNoOp(t *testing.T) {
	h := &fakeDriveHub{}
	c, _ := newDriveRig(h)
	res, err := c.DriveDistanceStallAware(context.Background(), DriveRequest{DistanceCm: 0})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed {
		t.Error("zero-distance drive should report completed")
	}
	if len(h.drives) != 0 || len(h.stops) != 0 {
		t.Errorf("zero-distance drive reached the motors: %v %v", h.drives, h.stops)
	}
}

func TestDriveConvertsCmToMm(t *testing.T) {
	h := &fakeDriveHub{}
	c, _ := newDriveRig(h)
	err := c.DriveDistance(context.Background(), DriveRequest{
		DistanceCm:       -15.5,
		VelocityCmS:      30,
		AccelerationCmS2: 50,
		Stop:             hub.StopBrake,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.drives) != 1 {
		t.Fatalf("expected 1 drive command, got %v", h.drives)
	}
	d := h.drives[0]
	if d.distMM != -155 || d.speedMMS != 300 || d.accelMMS2 != 500 || d.stop != hub.StopBrake {
		t.Errorf("drive command = %+v, want -155mm/300mms/500mms2/brake", d)
	}
}

func TestDriveStallAwareStopsEarly(t *testing.T) {
	// Stall fires at 50% of the commanded distance.
	h := &fakeDriveHub{totalPolls: 10, stallAtPoll: 5}
	c, _ := newDriveRig(h)
	res, err := c.DriveDistanceStallAware(context.Background(), DriveRequest{
		DistanceCm:       40,
		VelocityCmS:      20,
		AccelerationCmS2: 30,
		Stop:             hub.StopBrake,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed {
		t.Error("expected completed=false on stall")
	}
	if len(h.stops) == 0 {
		t.Fatal("no stop command issued on stall")
	}
	if h.stops[0] != hub.StopBrake {
		t.Errorf("stall stop mode = %v, want the requested brake", h.stops[0])
	}
	if h.pollsLeft == 0 {
		t.Error("drive ran to full distance despite the stall")
	}
}

func TestDriveIgnoresStallWhenNotStallAware(t *testing.T) {
	h := &fakeDriveHub{totalPolls: 6, stallAtPoll: 3}
	c, _ := newDriveRig(h)
	err := c.DriveDistance(context.Background(), DriveRequest{
		DistanceCm:       10,
		VelocityCmS:      20,
		AccelerationCmS2: 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(h.stops) != 0 {
		t.Errorf("plain drive should not stop on stall: %v", h.stops)
	}
}

func TestDriveEmergencyAbort(t *testing.T) {
	h := &fakeDriveHub{totalPolls: 10, triggerAtPoll: 3}
	c, latch := newDriveRig(h)
	h.latch = latch

	res, err := c.DriveDistanceStallAware(context.Background(), DriveRequest{
		DistanceCm:       100,
		VelocityCmS:      50,
		AccelerationCmS2: 50,
	})
	if !errors.Is(err, ErrEmergencyAbort) {
		t.Fatalf("err = %v, want ErrEmergencyAbort", err)
	}
	if res != (DriveResult{}) {
		t.Errorf("abort must not produce a DriveResult, got %+v", res)
	}
	if len(h.stops) == 0 || h.stops[0] != hub.StopHold {
		t.Errorf("abort must hold the motors, stops = %v", h.stops)
	}
}

func TestDriveInvalidRequests(t *testing.T) {
	h := &fakeDriveHub{}
	c, _ := newDriveRig(h)
	bad := []DriveRequest{
		{DistanceCm: 10, VelocityCmS: 0, AccelerationCmS2: 30},
		{DistanceCm: 10, VelocityCmS: -5, AccelerationCmS2: 30},
		{DistanceCm: 10, VelocityCmS: 20, AccelerationCmS2: 0},
	}
	for i, req := range bad {
		if _, err := c.DriveDistanceStallAware(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("request %d: err = %v, want ErrInvalidRequest", i, err)
		}
	}
	if len(h.drives) != 0 {
		t.Errorf("invalid requests reached the motors: %v", h.drives)
	}
}
