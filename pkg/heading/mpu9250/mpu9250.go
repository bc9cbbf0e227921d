// Package mpu9250 serves the heading.Sensor interface from an MPU9250
// rate gyro on SPI.  The chip only gives us yaw rate, so we integrate it
// into a heading estimate; drift is what the settle phase of the turn
// primitive exists to correct.
package mpu9250

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/angle"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
)

const (
	regSampleRateDiv = 25
	regConfig        = 26
	regGyroConf      = 27
	regFIFOEnable    = 35
	regGyroZ         = 71 // 16 bits
	regUserCtl       = 106
	regFIFOCount     = 114 // 16 bits
	regFIFORW        = 116 // n-bytes

	gyroRange = 2 // 1000 dps full scale

	// FIFO sample rate after the divider: 1kHz / (1 + 9).
	sampleHz = 100
)

type MPU9250 struct {
	dev      *spiAdapter
	zeroRate float64

	lock       sync.Mutex
	cond       *sync.Cond
	yaw        float64 // unwrapped, degrees
	lastSample heading.Sample
}

var _ heading.Sensor = (*MPU9250)(nil)

// New opens the SPI port and configures the gyro.  Call Calibrate with
// the robot stationary, then Run from a goroutine.
func New(deviceFile string) (*MPU9250, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(deviceFile)
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(physic.KiloHertz*1000, spi.Mode3, 8)
	if err != nil {
		return nil, err
	}
	m := &MPU9250{dev: &spiAdapter{c: c}}
	m.cond = sync.NewCond(&m.lock)
	if err := m.configure(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MPU9250) configure() error {
	// I2C interface off; we own the chip over SPI.
	if err := m.dev.writeReg(regUserCtl, []byte{0x10}); err != nil {
		return err
	}
	if err := m.dev.writeReg(regGyroConf, []byte{gyroRange << 3}); err != nil {
		return err
	}
	// DLPF on, Fs=1kHz.
	if err := m.dev.writeReg(regConfig, []byte{1}); err != nil {
		return err
	}
	if err := m.dev.writeReg(regSampleRateDiv, []byte{9}); err != nil {
		return err
	}
	// Stream gyro Z into the FIFO.
	return m.dev.writeReg(regFIFOEnable, []byte{1 << 4})
}

func degreesPerLSB() float64 {
	return 1000.0 / math.MaxInt16
}

// Calibrate measures the at-rest rate bias.  The robot must be still.
func (m *MPU9250) Calibrate() error {
	fmt.Println("MPU9250: calibrating gyro, keep the robot still...")
	// Let the signal settle before averaging.
	for i := 0; i < 100; i++ {
		m.readRawRate()
	}
	var sum float64
	const n = 1000
	for i := 0; i < n; i++ {
		sum += float64(m.readRawRate())
	}
	m.zeroRate = sum / n
	fmt.Printf("MPU9250: zero-rate bias %.2f LSB (%.3f dps)\n",
		m.zeroRate, m.zeroRate*degreesPerLSB())
	return nil
}

func (m *MPU9250) CurrentSample() heading.Sample {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lastSample
}

func (m *MPU9250) WaitForSampleAfter(t time.Time) heading.Sample {
	m.lock.Lock()
	defer m.lock.Unlock()
	startTime := time.Now()
	for !m.lastSample.Time.After(t) {
		m.cond.Wait()
		if time.Since(startTime) > time.Second {
			panic("heading sensor hasn't responded for >1s")
		}
	}
	return m.lastSample
}

// Run drains the FIFO and integrates yaw rate until the context is
// cancelled.
func (m *MPU9250) Run(ctx context.Context) {
	defer m.cond.Broadcast()
	m.resetFIFO()
	for ctx.Err() == nil {
		rates := m.readFIFO()
		var lastRate float64
		m.lock.Lock()
		for _, raw := range rates {
			rate := (float64(raw) - m.zeroRate) * degreesPerLSB()
			m.yaw += rate / sampleHz
			lastRate = rate
		}
		if len(rates) > 0 {
			m.lastSample = heading.Sample{
				Time:    time.Now(),
				Yaw:     angle.FromFloat(m.yaw),
				RateDps: lastRate,
			}
			m.cond.Broadcast()
		}
		m.lock.Unlock()
		time.Sleep(heading.ReportInterval)
	}
}

func (m *MPU9250) readRawRate() int16 {
	return m.read16(regGyroZ)
}

func (m *MPU9250) resetFIFO() {
	_ = m.dev.writeReg(regUserCtl, []byte{1<<6 | 1<<2 | 0x10})
}

func (m *MPU9250) readFIFO() []int16 {
	var count int16
	for count == 0 {
		count = m.read16(regFIFOCount) & 0xfff
	}
	var buf [512]byte
	result := make([]int16, count/2)
	_ = m.dev.readReg(regFIFORW, buf[:count])
	for i := range result {
		result[i] = int16(buf[i*2])<<8 | int16(buf[i*2+1])
	}
	return result
}

func (m *MPU9250) read16(reg byte) int16 {
	var buf [2]byte
	_ = m.dev.readReg(reg, buf[:])
	return int16(buf[0])<<8 | int16(buf[1])
}

// spiAdapter gives the register-oriented code above a ReadReg/WriteReg
// view of the raw SPI connection.
type spiAdapter struct {
	c spi.Conn

	r, w []byte
}

const readFlag = 0x80

func (s *spiAdapter) readReg(reg byte, buf []byte) error {
	// Read and write buffers must span the whole transaction; the
	// response starts one byte after the address goes out.
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = readFlag | reg
	if err := s.c.Tx(s.w[:bufLen], s.r[:bufLen]); err != nil {
		return err
	}
	copy(buf, s.r[1:])
	return nil
}

func (s *spiAdapter) writeReg(reg byte, buf []byte) error {
	bufLen := 1 + len(buf)
	s.ensureBuf(bufLen)
	s.w[0] = reg
	copy(s.w[1:], buf)
	return s.c.Tx(s.w[:bufLen], s.r[:bufLen])
}

func (s *spiAdapter) ensureBuf(l int) {
	if len(s.r) < l {
		s.w = make([]byte, l)
		s.r = make([]byte, l)
	} else {
		for i := 0; i < l; i++ {
			s.w[i] = 0
			s.r[i] = 0
		}
	}
}
