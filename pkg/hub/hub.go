// Package hub drives the tablebot's drive hub: a Pico-based board that
// owns the two wheel motors, the four panel buttons and the status light.
// The board closes its own velocity loops; we talk to it over I2C with a
// small register protocol and poll its status word.
package hub

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/kr/pty"
	"golang.org/x/exp/io/i2c"
)

const HubAddr = 0x3a

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegFirmwareVersion
	RegWatchdogTimeout

	// Rotate command parameters.  Angle is signed centidegrees split
	// across two words, positive = clockwise.
	RegTurnAngleLo
	RegTurnAngleHi
	RegTurnSpeed // deg/s

	// Straight command parameters.  Distance is signed mm split across
	// two words.
	RegDriveDistLo
	RegDriveDistHi
	RegDriveSpeed // mm/s
	RegDriveAccel // mm/s^2

	// Attachment motor command parameters.  Angle is signed centidegrees
	// split across two words; the port rides in the command word.
	RegMotorAngleLo
	RegMotorAngleHi
	RegMotorSpeed // deg/s

	RegCommand

	// Accumulated wheel odometer counts, 256 per rotation.
	RegOdoLeft
	RegOdoRight

	RegButtons
	RegLight

	RegBattV // LSB=4mV
)

const BattVLSB = 0.004

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	StatusFault StatusFlag = 1 << iota
	StatusBusy
	StatusStalled
	StatusWatchdogExpired
)

// Command register values.  The low nibble selects the command; bits 4-5
// carry the stop mode (stop/straight) or the motor port (motor).
const (
	cmdStop uint16 = iota
	cmdRotate
	cmdStraight
	cmdMotor
)

// MotorPort selects one of the hub's attachment motor outputs.
type MotorPort byte

const (
	MotorPortA MotorPort = iota
	MotorPortB
)

func (p MotorPort) String() string {
	switch p {
	case MotorPortA:
		return "A"
	case MotorPortB:
		return "B"
	default:
		return fmt.Sprintf("port(%d)", byte(p))
	}
}

// StopMode selects what the motors do once a command ends.
type StopMode byte

const (
	StopHold StopMode = iota
	StopBrake
	StopCoast
)

func (s StopMode) String() string {
	switch s {
	case StopHold:
		return "hold"
	case StopBrake:
		return "brake"
	case StopCoast:
		return "coast"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// ButtonState is the panel button bitmap as reported by the hub.
type ButtonState uint8

const (
	ButtonLeft ButtonState = 1 << iota
	ButtonCenter
	ButtonRight
	ButtonStart
)

func (b ButtonState) Pressed(button ButtonState) bool {
	return b&button != 0
}

func (b ButtonState) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonCenter:
		return "center"
	case ButtonRight:
		return "right"
	case ButtonStart:
		return "start"
	default:
		return fmt.Sprintf("buttons(0x%x)", uint8(b))
	}
}

type LightColor uint16

const (
	LightOff LightColor = iota
	LightRed
	LightOrange
	LightYellow
	LightGreen
	LightBlue
	LightWhite
)

type Interface interface {
	Rotate(angleDeg, speedDegPerS float64) error
	DriveStraight(distanceMM, speedMMPerS, accelMMPerS2 float64, stop StopMode) error
	RunMotor(port MotorPort, angleDeg, speedDegPerS float64) error
	Busy() (bool, error)
	Stalled() (bool, error)
	StopAll(stop StopMode) error
	Buttons() (ButtonState, error)
	SetLight(color LightColor) error
	Close() error
}

type Hub struct {
	dev *i2c.Device
	bus *i2c.Devfs

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

var _ Interface = (*Hub)(nil)

var ErrNotReady = errors.New("drive hub not ready")

func New(devicePath string) (*Hub, error) {
	bus := &i2c.Devfs{Dev: devicePath}
	dev, err := i2c.Open(bus, HubAddr)
	if err != nil {
		return nil, err
	}
	h := &Hub{dev: dev, bus: bus}
	if err := h.Flash(); err != nil {
		return nil, err
	}
	return h, nil
}

// Flash reloads the hub firmware.  The loader reports success without
// actually booting the board unless it runs on a TTY, so wrap it in a pty.
func (h *Hub) Flash() error {
	fmt.Println("Flashing the drive hub")
	cmd := exec.Command("hubload", "/hub-fw.binary")
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("hubload output:\n")
	go io.Copy(os.Stdout, f)
	if err := cmd.Wait(); err != nil {
		return err
	}
	fmt.Println("Flashed the drive hub")
	if err := h.holdResetPinHigh(); err != nil {
		return err
	}
	// Give the board time to boot...
	time.Sleep(25 * time.Millisecond)
	return nil
}

func (h *Hub) holdResetPinHigh() error {
	// The hub's reset line hangs off a GPIO; reset is active LOW so we
	// drive it HIGH.  Writing "high" to the direction file makes the
	// pin come up already driven, avoiding a reset glitch.
	fmt.Println("Taking control of hub reset pin")
	export, err := os.OpenFile("/sys/class/gpio/export", os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer export.Close()
	_, _ = export.WriteString("22") // ignore error, fails if already exported

	dirn, err := os.OpenFile("/sys/class/gpio/gpio22/direction", os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer dirn.Close()
	if _, err = dirn.WriteString("high"); err != nil {
		fmt.Println("Failed to drive hub reset pin")
		return err
	}
	return nil
}

func (h *Hub) Rotate(angleDeg, speedDegPerS float64) error {
	if err := h.maybeConfigure(false, true); err != nil {
		return err
	}
	centiDeg := clamp32(angleDeg * 100)
	if err := h.writeReg32(RegTurnAngleLo, centiDeg); err != nil {
		return err
	}
	if err := h.writeReg(RegTurnSpeed, uint16(clampU16(speedDegPerS))); err != nil {
		return err
	}
	return h.writeReg(RegCommand, cmdRotate)
}

func (h *Hub) DriveStraight(distanceMM, speedMMPerS, accelMMPerS2 float64, stop StopMode) error {
	if err := h.maybeConfigure(false, true); err != nil {
		return err
	}
	if err := h.writeReg32(RegDriveDistLo, clamp32(distanceMM)); err != nil {
		return err
	}
	if err := h.writeReg(RegDriveSpeed, uint16(clampU16(speedMMPerS))); err != nil {
		return err
	}
	if err := h.writeReg(RegDriveAccel, uint16(clampU16(accelMMPerS2))); err != nil {
		return err
	}
	return h.writeReg(RegCommand, cmdStraight|uint16(stop)<<4)
}

// RunMotor turns the attachment motor on the given port by angleDeg at
// speedDegPerS.  The hub raises its busy flag until the move finishes and
// holds the motor afterwards.
func (h *Hub) RunMotor(port MotorPort, angleDeg, speedDegPerS float64) error {
	if err := h.maybeConfigure(false, true); err != nil {
		return err
	}
	if err := h.writeReg32(RegMotorAngleLo, clamp32(angleDeg*100)); err != nil {
		return err
	}
	if err := h.writeReg(RegMotorSpeed, uint16(clampU16(speedDegPerS))); err != nil {
		return err
	}
	return h.writeReg(RegCommand, cmdMotor|uint16(port)<<4)
}

func (h *Hub) StopAll(stop StopMode) error {
	return h.writeReg(RegCommand, cmdStop|uint16(stop)<<4)
}

func (h *Hub) Busy() (bool, error) {
	s, err := h.Status()
	return s&StatusBusy != 0, err
}

func (h *Hub) Stalled() (bool, error) {
	s, err := h.Status()
	return s&StatusStalled != 0, err
}

func (h *Hub) Status() (StatusFlag, error) {
	raw, err := h.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (h *Hub) Buttons() (ButtonState, error) {
	raw, err := h.readReg(RegButtons)
	if err != nil {
		return 0, err
	}
	return ButtonState(raw), nil
}

func (h *Hub) SetLight(color LightColor) error {
	return h.writeReg(RegLight, uint16(color))
}

// Odometer returns accumulated wheel rotations since power-on.
func (h *Hub) Odometer() (left, right float64, err error) {
	l, err := h.readReg(RegOdoLeft)
	if err != nil {
		return 0, 0, err
	}
	r, err := h.readReg(RegOdoRight)
	if err != nil {
		return 0, 0, err
	}
	return float64(int16(l)) / 256.0, float64(int16(r)) / 256.0, nil
}

func (h *Hub) SetWatchdog(timeout time.Duration) error {
	if timeout == 0 {
		h.watchdogEnabled = false
		return h.maybeConfigure(false, false)
	}
	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	if err := h.writeReg(RegWatchdogTimeout, uint16(ms)); err != nil {
		return err
	}
	h.watchdogEnabled = true
	return h.maybeConfigure(false, false)
}

func (h *Hub) BattVolts() (float32, error) {
	raw, err := h.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float32(raw) * BattVLSB, nil
}

func (h *Hub) Close() error {
	_ = h.maybeConfigure(true, false)
	return h.dev.Close()
}

func (h *Hub) maybeConfigure(resetMotors bool, enableMotors bool) error {
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotors {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if h.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == h.lastConfigWord && time.Since(h.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if err := h.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	h.lastConfigTime = time.Now()
	h.lastConfigWord = configWord & (^RegCtrlReset) /* Reset flag is not persistent */
	return nil
}

func (h *Hub) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = h.dev.Write(data)
		if err == nil {
			if tries > 0 {
				fmt.Println("Successfully programmed drive hub after retries")
			}
			return nil
		}
		fmt.Println("Failed to write to drive hub:", err)
		time.Sleep(1 * time.Millisecond)
		_ = h.dev.Close()
		dev, err := i2c.Open(h.bus, HubAddr)
		if err != nil {
			continue
		}
		h.dev = dev
	}
	panic("Failed to write to drive hub")
}

func (h *Hub) writeReg(reg Register, value uint16) error {
	return h.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

// writeReg32 splits a signed 32-bit value across reg (low word) and
// reg+1 (high word).
func (h *Hub) writeReg32(reg Register, value int32) error {
	if err := h.writeReg(reg, uint16(value)); err != nil {
		return err
	}
	return h.writeReg(reg+1, uint16(uint32(value)>>16))
}

func (h *Hub) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := h.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func clamp32(v float64) int32 {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

func clampU16(v float64) uint16 {
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	if v <= 0 {
		return 0
	}
	return uint16(v)
}
