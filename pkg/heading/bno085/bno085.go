// Package bno085 reads yaw reports from a BNO085 breakout that streams a
// simple framed protocol over UART (the RVC mode firmware).
package bno085

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/angle"
	"github.com/tablebots-team/tablebot/go-pilot/pkg/heading"
)

const baudRate = 115200

// Frame layout: AA AA <index> <yaw lo> <yaw hi> <rate lo> <rate hi> ...
// <checksum>.  Yaw is centidegrees, rate is centidegrees/s, checksum is
// the byte sum of everything between the preamble and the checksum.
const frameLen = 19

type BNO085 struct {
	port string

	lock       sync.Mutex
	cond       *sync.Cond
	lastSample heading.Sample
}

var _ heading.Sensor = (*BNO085)(nil)

func New(port string) *BNO085 {
	b := &BNO085{port: port}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO085) CurrentSample() heading.Sample {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastSample
}

func (b *BNO085) WaitForSampleAfter(t time.Time) heading.Sample {
	b.lock.Lock()
	defer b.lock.Unlock()
	startTime := time.Now()
	for !b.lastSample.Time.After(t) {
		b.cond.Wait()
		if time.Since(startTime) > time.Second {
			panic("heading sensor hasn't responded for >1s")
		}
	}
	return b.lastSample
}

// Run keeps the serial link open, reopening it after errors, until the
// context is cancelled.  Call it from a goroutine at startup.
func (b *BNO085) Run(ctx context.Context) {
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		fmt.Println("BNO085 loop stopped; will retry:", err)
		time.Sleep(100 * time.Millisecond)
		b.cond.Broadcast()
	}
}

func (b *BNO085) openAndLoop(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: baudRate,
	}
	s, err := serial.Open(b.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.port, err)
	}
	defer s.Close()

	br := bufio.NewReader(s)
resync:
	fmt.Println("BNO085 resync...")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		buf, err := br.Peek(2)
		if err != nil {
			return fmt.Errorf("failed to read from serial: %w", err)
		}
		if bytes.Equal(buf, []byte{0xaa, 0xaa}) {
			break
		}
		_, err = br.Discard(1)
		if err != nil {
			return fmt.Errorf("failed to read from serial: %w", err)
		}
	}
	fmt.Println("BNO085: in sync with packet stream.")

	buf := make([]byte, frameLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := io.ReadAtLeast(br, buf, frameLen)
		if err != nil {
			return fmt.Errorf("failed to read from serial: %w", err)
		}
		if !bytes.Equal(buf[:2], []byte{0xaa, 0xaa}) {
			fmt.Println("BNO085: lost sync?!")
			goto resync
		}
		var checksum uint8
		for _, c := range buf[2 : frameLen-1] {
			checksum += c
		}
		if buf[frameLen-1] != checksum {
			fmt.Printf("BNO085: bad checksum %x != %x\n", buf[frameLen-1], checksum)
			goto resync
		}
		yawCentiDeg := int16(binary.LittleEndian.Uint16(buf[3:5]))
		rateCentiDps := int16(binary.LittleEndian.Uint16(buf[5:7]))
		b.setSample(heading.Sample{
			Time:    time.Now(),
			Yaw:     angle.FromFloat(float64(yawCentiDeg) / 100),
			RateDps: float64(rateCentiDps) / 100,
		})
	}
}

func (b *BNO085) setSample(s heading.Sample) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lastSample = s
	b.cond.Broadcast()
}
