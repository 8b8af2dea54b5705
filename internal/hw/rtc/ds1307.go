package rtc

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/cjeanneret/DailyTurn/internal/debug"
)

// ErrClockHalted is returned when the DS1307 oscillator is stopped (CH bit
// set), typically after the backup battery went flat.
var ErrClockHalted = errors.New("ds1307: oscillator halted")

// Tx is the register transfer used by DS1307. *i2c.Dev satisfies it.
type Tx interface {
	Tx(w, r []byte) error
}

// DS1307 reads the Maxim DS1307 over I²C.
type DS1307 struct {
	dev Tx
	bus i2c.BusCloser
}

// OpenDS1307 initializes the host drivers and opens the chip on busName
// ("" selects the first bus) at addr.
func OpenDS1307(busName string, addr uint16) (*DS1307, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	debug.Verbose("RTC: DS1307 on %s addr=0x%02x", bus, addr)
	return &DS1307{dev: &i2c.Dev{Addr: addr, Bus: bus}, bus: bus}, nil
}

// NewDS1307 wraps an already opened device.
func NewDS1307(dev Tx) *DS1307 {
	return &DS1307{dev: dev}
}

// ReadDateTime reads the seven time-keeping registers in one burst.
func (d *DS1307) ReadDateTime() (DateTime, error) {
	regs := make([]byte, 7)
	if err := d.dev.Tx([]byte{0x00}, regs); err != nil {
		return DateTime{}, fmt.Errorf("ds1307 read: %w", err)
	}
	if regs[0]&0x80 != 0 {
		return DateTime{}, ErrClockHalted
	}
	return DateTime{
		Second:  bcd(regs[0] & 0x7f),
		Minute:  bcd(regs[1] & 0x7f),
		Hour:    hour24(regs[2]),
		Weekday: bcd(regs[3] & 0x07),
		Day:     bcd(regs[4] & 0x3f),
		Month:   bcd(regs[5] & 0x1f),
		Year:    2000 + bcd(regs[6]),
	}, nil
}

// Close releases the I²C bus when it was opened by OpenDS1307.
func (d *DS1307) Close() error {
	if d.bus == nil {
		return nil
	}
	return d.bus.Close()
}

func bcd(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

// hour24 decodes the hours register in either 12h or 24h mode.
func hour24(b byte) int {
	if b&0x40 == 0 {
		return bcd(b & 0x3f)
	}
	h := bcd(b & 0x1f)
	pm := b&0x20 != 0
	switch {
	case h == 12 && !pm:
		return 0
	case h == 12 && pm:
		return 12
	case pm:
		return h + 12
	default:
		return h
	}
}
