// turncal runs a sweep of gyro turns and reports the axle-track
// correction each one implies.  Run it with the robot on a clear patch
// of table; it turns in place only.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/config"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/estop"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading/bno085"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading/mpu9250"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/motion"
)

var sweep = []float64{45, -45, 90, -90, 180, -180}

func main() {
	fmt.Println("---- Turn calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := os.Getenv("PILOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "/robot.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Bad config: %v", err)
	}

	drive, err := hub.New(cfg.I2CDevice)
	if err != nil {
		log.Fatalf("Failed to open hub: %v", err)
	}
	defer func() {
		fmt.Println("Stopping motors for shut down")
		_ = drive.StopAll(hub.StopCoast)
		_ = drive.Close()
		time.Sleep(100 * time.Millisecond)
	}()

	var sensor heading.Sensor
	if cfg.HeadingSource == config.HeadingMPU9250 {
		imu, err := mpu9250.New(cfg.SPIPort)
		if err != nil {
			log.Fatalf("Failed to open IMU: %v", err)
		}
		fmt.Println("Calibrating gyro, keep the robot still...")
		if err := imu.Calibrate(); err != nil {
			log.Fatalf("Gyro calibration failed: %v", err)
		}
		go imu.Run(ctx)
		sensor = imu
	} else {
		b := bno085.New(cfg.SerialPort)
		go b.Run(ctx)
		sensor = b
	}

	latch := estop.New()
	latch.Arm()
	ctl := motion.New(drive, sensor, latch)
	ctl.Tick = cfg.Tick()
	ctl.MarginDeg = cfg.Motion.MarginDeg
	ctl.MinNudgeDeg = cfg.Motion.MinNudgeDeg
	ctl.Bands = cfg.SpeedBands()

	fmt.Printf("Axle track currently %.1fmm\n\n", cfg.AxleTrackMM)

	var factors []float64
	for _, deg := range sweep {
		fmt.Printf("Turn %+.0f...\n", deg)
		result, err := ctl.TurnToHeading(ctx, motion.TurnRequest{
			TargetAngleDeg:     deg,
			Mode:               motion.SpeedMedium,
			SettleToleranceDeg: 0.5,
			SettleTimeout:      3 * time.Second,
		})
		if err != nil {
			log.Fatalf("Turn failed: %v", err)
		}
		fmt.Printf("  %v\n", result)
		if result.CalibrationSuggested {
			factors = append(factors, result.CalibrationSuggestion)
		}
		time.Sleep(time.Second)
	}

	if len(factors) == 0 {
		fmt.Println("\nAll turns landed within tolerance; axle track looks right.")
		return
	}
	mean := 0.0
	for _, f := range factors {
		mean += f
	}
	mean /= float64(len(factors))
	fmt.Printf("\nMean correction over %d turns: %.4f\n", len(factors), mean)
	fmt.Printf("Suggested axle_track_mm: %.1f\n", cfg.AxleTrackMM*mean)
}
