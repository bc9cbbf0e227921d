// hubflash reloads the motor hub firmware and checks the hub comes
// back on the bus.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/config"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

func main() {
	fmt.Println("---- Hub firmware flash ----")

	cfgPath := os.Getenv("PILOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "/robot.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Bad config: %v", err)
	}

	h, err := hub.New(cfg.I2CDevice)
	if err != nil {
		log.Fatalf("Failed to open hub: %v", err)
	}
	defer h.Close()

	if err := h.Flash(); err != nil {
		log.Fatalf("Flash failed: %v", err)
	}

	time.Sleep(time.Second)
	v, err := h.BattVolts()
	if err != nil {
		log.Fatalf("Hub not responding after flash: %v", err)
	}
	fmt.Printf("Hub back up, battery %.2fv\n", v)

	if err := h.SetWatchdog(500 * time.Millisecond); err != nil {
		log.Fatalf("Failed to set watchdog: %v", err)
	}
	fmt.Println("Watchdog armed")
}
