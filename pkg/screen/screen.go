// Package screen renders the pilot status page to the little SPI TFT
// on /dev/fb1 (128x128, RGB565).  No screen is not an error; the robot
// runs headless.
package screen

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"
)

const side = 128

// Status is the shared state the render loop paints.  Writers update
// it through the setters; everything is guarded by one mutex because
// updates are rare.
type Status struct {
	mu sync.Mutex

	missionName string
	headingDeg  float64
	lastTurn    string
	battVolts   float64
	estopped    bool
	running     bool
}

func (s *Status) SetMission(name string) {
	s.mu.Lock()
	s.missionName = name
	s.mu.Unlock()
}

func (s *Status) SetRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

func (s *Status) SetHeading(deg float64) {
	s.mu.Lock()
	s.headingDeg = deg
	s.mu.Unlock()
}

func (s *Status) SetLastTurn(summary string) {
	s.mu.Lock()
	s.lastTurn = summary
	s.mu.Unlock()
}

func (s *Status) SetBattVolts(v float64) {
	s.mu.Lock()
	s.battVolts = v
	s.mu.Unlock()
}

func (s *Status) SetEStopped(stopped bool) {
	s.mu.Lock()
	s.estopped = stopped
	s.mu.Unlock()
}

func (s *Status) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		missionName: s.missionName,
		headingDeg:  s.headingDeg,
		lastTurn:    s.lastTurn,
		battVolts:   s.battVolts,
		estopped:    s.estopped,
		running:     s.running,
	}
}

// LoopUpdatingScreen repaints every 500ms until the context ends, then
// blanks the display on the way out.
func (s *Status) LoopUpdatingScreen(ctx context.Context) {
	f, err := os.OpenFile("/dev/fb1", os.O_RDWR, 0666)
	if err != nil {
		fmt.Println("SCREEN: failed to open, ignoring")
		return
	}
	defer f.Close()

	for range time.NewTicker(500 * time.Millisecond).C {
		if ctx.Err() != nil {
			var blank [side * side * 2]byte
			_, _ = f.Seek(0, 0)
			_, _ = f.Write(blank[:])
			return
		}
		if err := blit(f, s.render()); err != nil {
			fmt.Println("SCREEN: write failed:", err)
			return
		}
	}
}

func (s *Status) render() *gg.Context {
	snap := s.snapshot()
	dc := gg.NewContext(side, side)

	if snap.estopped {
		dc.SetRGB(0.6, 0, 0)
		dc.DrawRectangle(0, 0, side, side)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored("E-STOP", side/2, 40, 0.5, 0.5)
		dc.DrawStringAnchored("press start", side/2, 70, 0.5, 0.5)
		dc.DrawStringAnchored("to reset", side/2, 84, 0.5, 0.5)
		return dc
	}

	dc.SetRGBA(1, 0.9, 0, 1)
	name := snap.missionName
	if name == "" {
		name = "(no mission)"
	}
	dc.DrawString(name, 4, 14)
	if snap.running {
		dc.DrawString("RUNNING", 4, 28)
	}
	dc.DrawString(fmt.Sprintf("hdg %6.1f", snap.headingDeg), 4, 46)
	if snap.lastTurn != "" {
		dc.DrawString(snap.lastTurn, 4, 60)
	}
	drawPowerBar(dc, snap.battVolts)
	return dc
}

// blit packs the context into RGB565 and streams it out one row at a
// time; the fbtft driver misses bytes on large single writes.
func blit(f *os.File, dc *gg.Context) error {
	var buf [side * side * 2]byte
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			r, g, b, _ := dc.Image().At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(side-1-y)*2+x*side*2+1] = (rb << 3) | (gb >> 3)
			buf[(side-1-y)*2+x*side*2] = bb | (gb << 5)
		}
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for i := 0; i < side; i++ {
		if _, err := f.Write(buf[i*side*2 : (i+1)*side*2]); err != nil {
			return err
		}
		time.Sleep(10 * time.Microsecond)
	}
	return nil
}

const (
	minCellVoltage = 3
	maxCellVoltage = 4.2
	packCells      = 2
)

func drawPowerBar(dc *gg.Context, voltage float64) {
	cellVoltage := voltage / packCells
	charge := (cellVoltage - minCellVoltage) / (maxCellVoltage - minCellVoltage)

	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.Push()
	dc.Translate(96, 70)
	dc.DrawRectangle(0, 0, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= (float64(n) / 13) {
			dc.DrawRectangle(2, 5-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 23)
	dc.Pop()
}
