package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	regs []byte
	err  error
	w    []byte
}

func (f *fakeTx) Tx(w, r []byte) error {
	f.w = append([]byte(nil), w...)
	if f.err != nil {
		return f.err
	}
	copy(r, f.regs)
	return nil
}

func TestDateTime_DateKey(t *testing.T) {
	assert.Equal(t, 20240101, DateTime{Year: 2024, Month: 1, Day: 1}.DateKey())
	assert.Equal(t, 20251231, DateTime{Year: 2025, Month: 12, Day: 31}.DateKey())
}

func TestSystem_ReadDateTime(t *testing.T) {
	at := time.Date(2024, time.January, 7, 7, 30, 15, 250*int(time.Millisecond), time.UTC)
	clk := rtcClock(at)

	dt, err := clk.ReadDateTime()
	require.NoError(t, err)
	assert.Equal(t, DateTime{
		Year: 2024, Month: 1, Day: 7, Weekday: 7,
		Hour: 7, Minute: 30, Second: 15, Subsecond: 250,
	}, dt)
}

func rtcClock(at time.Time) *System {
	return NewSystem(clockwork.NewFakeClockAt(at))
}

func TestDS1307_Read24h(t *testing.T) {
	dev := &fakeTx{regs: []byte{0x45, 0x30, 0x07, 0x01, 0x15, 0x03, 0x24}}
	dt, err := NewDS1307(dev).ReadDateTime()
	require.NoError(t, err)

	assert.Equal(t, []byte{0x00}, dev.w, "burst read starts at register 0")
	assert.Equal(t, DateTime{Year: 2024, Month: 3, Day: 15, Weekday: 1, Hour: 7, Minute: 30, Second: 45}, dt)
}

func TestDS1307_Read12h(t *testing.T) {
	cases := []struct {
		reg  byte
		want int
	}{
		{0x40 | 0x12, 0},         // 12 AM
		{0x40 | 0x07, 7},         // 7 AM
		{0x40 | 0x20 | 0x12, 12}, // 12 PM
		{0x40 | 0x20 | 0x09, 21}, // 9 PM
	}
	for _, tc := range cases {
		dev := &fakeTx{regs: []byte{0x00, 0x00, tc.reg, 0x01, 0x01, 0x01, 0x24}}
		dt, err := NewDS1307(dev).ReadDateTime()
		require.NoError(t, err)
		assert.Equal(t, tc.want, dt.Hour, "reg 0x%02x", tc.reg)
	}
}

func TestDS1307_ClockHalted(t *testing.T) {
	dev := &fakeTx{regs: []byte{0x80, 0, 0, 1, 1, 1, 0}}
	_, err := NewDS1307(dev).ReadDateTime()
	assert.ErrorIs(t, err, ErrClockHalted)
}

func TestDS1307_BusError(t *testing.T) {
	boom := errors.New("nack")
	_, err := NewDS1307(&fakeTx{err: boom}).ReadDateTime()
	assert.ErrorIs(t, err, boom)
}

func TestDS1307_CloseWithoutBus(t *testing.T) {
	assert.NoError(t, NewDS1307(&fakeTx{}).Close())
}
