package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/buttons"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/config"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/estop"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading/bno085"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading/mpu9250"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/mission"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/screen"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/sound"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/tunable"
)

// selectColors cycles as the operator scrolls missions that don't name
// their own light color.
var selectColors = []hub.LightColor{
	hub.LightGreen, hub.LightYellow, hub.LightBlue, hub.LightOrange, hub.LightWhite,
}

func main() {
	fmt.Print("---- Tablebot pilot ----\n\n")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()

	cfgPath := os.Getenv("PILOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "/robot.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Bad config: %v", err)
	}

	var drive hub.Interface
	realHub, err := hub.New(cfg.I2CDevice)
	if err != nil {
		fmt.Printf("Failed to open hub: %v.\n", err)
		if os.Getenv("IGNORE_MISSING_HUB") == "true" {
			fmt.Println("Using dummy hub")
			drive = hub.Dummy()
		} else {
			cancel()
			return
		}
	} else {
		drive = realHub
	}
	fmt.Println("Stopping motors")
	if err := drive.StopAll(hub.StopCoast); err != nil {
		panic(err)
	}
	defer func() {
		fmt.Println("Stopping motors")
		_ = drive.StopAll(hub.StopCoast)
		_ = drive.Close()
	}()

	sensor := startHeadingSensor(ctx, cfg)

	latch := estop.New()
	ctl := motion.New(drive, sensor, latch)
	ctl.Tick = cfg.Tick()
	ctl.MarginDeg = cfg.Motion.MarginDeg
	ctl.MinNudgeDeg = cfg.Motion.MinNudgeDeg
	ctl.Bands = cfg.SpeedBands()

	missions, err := mission.LoadDir(cfg.MissionsDir)
	if err != nil {
		fmt.Printf("Failed to load missions: %v\n", err)
		cancel()
		return
	}
	fmt.Printf("Loaded %d missions\n", len(missions))

	status := &screen.Status{}
	go status.LoopUpdatingScreen(ctx)
	go loopUpdatingTelemetry(ctx, drive, sensor, status)

	cues := sound.InitSound()
	defer close(cues)

	poller := buttons.NewPoller(drive)
	go poller.Run(ctx)

	runPilot(ctx, cancel, pilotDeps{
		drive:    drive,
		ctl:      ctl,
		latch:    latch,
		missions: missions,
		status:   status,
		cues:     cues,
		events:   poller.Events,
	})
}

func startHeadingSensor(ctx context.Context, cfg config.Config) heading.Sensor {
	switch cfg.HeadingSource {
	case config.HeadingMPU9250:
		imu, err := mpu9250.New(cfg.SPIPort)
		if err != nil {
			log.Fatalf("Failed to open IMU: %v", err)
		}
		fmt.Println("Calibrating gyro, keep the robot still...")
		if err := imu.Calibrate(); err != nil {
			log.Fatalf("Gyro calibration failed: %v", err)
		}
		go imu.Run(ctx)
		return imu
	default:
		sensor := bno085.New(cfg.SerialPort)
		go sensor.Run(ctx)
		return sensor
	}
}

type pilotDeps struct {
	drive    hub.Interface
	ctl      *motion.Controller
	latch    *estop.Latch
	missions []*mission.Script
	status   *screen.Status
	cues     chan sound.Cue
	events   chan buttons.Event
}

// newTunables builds the table-side adjustable parameters: the default
// settle tolerance (stored in centidegrees) and settle timeout (ms)
// for mission turns that don't name their own.
func newTunables() (*tunable.Set, *tunable.Tunable, *tunable.Tunable) {
	set := &tunable.Set{}
	tol := set.Create("settle tolerance deg", 100, 25, 25, 300, 0.01)
	timeout := set.Create("settle timeout ms", 1500, 250, 500, 5000, 1)
	return set, tol, timeout
}

// runPilot is the operator loop: left/right scroll missions, start runs
// the selected one, center is the emergency stop.  While e-stopped,
// start resets the latch.
func runPilot(ctx context.Context, cancel context.CancelFunc, d pilotDeps) {
	selected := 0
	running := false
	startHeld := false
	comboUsed := false
	missionDone := make(chan error, 1)

	tunables, tolTunable, timeoutTunable := newTunables()

	// Live from the moment the pilot is up; the e-stop must not depend
	// on a mission being started.
	d.latch.Arm()

	showSelection := func() {
		s := d.missions[selected]
		fmt.Printf("----- %s -----\n", s.Name)
		d.status.SetMission(s.Name)
		color, _ := mission.ParseLight(s.Light)
		if color == hub.LightOff {
			color = selectColors[selected%len(selectColors)]
		}
		_ = d.drive.SetLight(color)
	}
	showSelection()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Context done, shutting down")
			time.Sleep(1 * time.Second)
			return

		case err := <-missionDone:
			running = false
			d.status.SetRunning(false)
			switch {
			case err == nil:
				d.cues <- sound.CueDone
				_ = d.drive.SetLight(hub.LightGreen)
			case errors.Is(err, motion.ErrEmergencyAbort):
				d.cues <- sound.CueError
				d.status.SetEStopped(true)
				_ = d.drive.SetLight(hub.LightRed)
			default:
				fmt.Printf("Mission failed: %v\n", err)
				d.cues <- sound.CueError
				_ = d.drive.SetLight(hub.LightRed)
			}

		case ev := <-d.events:
			if !ev.Pressed {
				// A tap of start (held without any left/right combo)
				// launches the selected mission on release.
				if ev.Button == hub.ButtonStart && startHeld {
					startHeld = false
					if !comboUsed && !running && !d.latch.Triggered() {
						running = true
						d.status.SetRunning(true)
						d.cues <- sound.CueReady
						script := d.missions[selected]
						sq := &mission.Sequencer{
							Motion: d.ctl,
							Lights: d.drive,
							OnTurnResult: func(r motion.TurnResult) {
								d.status.SetLastTurn(fmt.Sprintf("err %.2f", r.ErrorDeg))
							},
							TurnDefaults: func() (float64, time.Duration) {
								return tolTunable.GetFloat(),
									time.Duration(timeoutTunable.Get()) * time.Millisecond
							},
						}
						go func() {
							missionDone <- sq.Run(ctx, script)
						}()
					}
				}
				continue
			}
			switch {
			case ev.Button == hub.ButtonCenter:
				// Always honored, even mid-mission; the motion loop
				// sees the latch on its next tick.
				fmt.Println("EMERGENCY STOP")
				d.latch.Trigger()
				_ = d.drive.StopAll(hub.StopHold)
				d.status.SetEStopped(true)
				d.cues <- sound.CueError

			case running:
				// Everything but the e-stop is ignored during a run.

			case ev.Button == hub.ButtonStart && d.latch.Triggered():
				fmt.Println("E-stop reset")
				d.latch.Reset()
				d.latch.Arm()
				d.status.SetEStopped(false)
				d.cues <- sound.CueReady
				showSelection()

			case ev.Button == hub.ButtonStart:
				startHeld = true
				comboUsed = false

			// Hold start + left/right to tune: left picks the next
			// parameter, right bumps the current one.
			case ev.Button == hub.ButtonLeft && startHeld:
				comboUsed = true
				tunables.SelectNext()
				d.cues <- sound.CueSelect

			case ev.Button == hub.ButtonRight && startHeld:
				comboUsed = true
				tunables.Current().Bump(+1)
				d.cues <- sound.CueSelect

			case ev.Button == hub.ButtonLeft:
				selected = (selected + len(d.missions) - 1) % len(d.missions)
				d.cues <- sound.CueSelect
				showSelection()

			case ev.Button == hub.ButtonRight:
				selected = (selected + 1) % len(d.missions)
				d.cues <- sound.CueSelect
				showSelection()
			}
		}
	}
}

// loopUpdatingTelemetry feeds the screen with heading and battery
// readings.  Battery voltage only exists on real hardware.
func loopUpdatingTelemetry(ctx context.Context, drive hub.Interface, sensor heading.Sensor, status *screen.Status) {
	batt, hasBatt := drive.(interface{ BattVolts() (float32, error) })
	for ctx.Err() == nil {
		status.SetHeading(sensor.CurrentSample().Yaw.Float())
		if hasBatt {
			if v, err := batt.BattVolts(); err == nil {
				status.SetBattVolts(float64(v))
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
}
