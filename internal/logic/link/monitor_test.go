package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/DailyTurn/internal/events"
	"github.com/cjeanneret/DailyTurn/internal/hw/gpio"
)

const sensePin = 2

// flakyDriver fails reads while failing is set.
type flakyDriver struct {
	*gpio.MockDriver
	mu      sync.Mutex
	failing bool
}

func (d *flakyDriver) ReadPin(pin int) (gpio.Level, error) {
	d.mu.Lock()
	failing := d.failing
	d.mu.Unlock()
	if failing {
		return gpio.Low, errors.New("gpio read failed")
	}
	return d.MockDriver.ReadPin(pin)
}

func TestMonitor_Edges(t *testing.T) {
	drv := gpio.NewMockDriver()
	bus := events.New()
	defer bus.Close()

	changes := make(chan events.LinkChanged, 4)
	defer bus.Subscribe(func(e events.LinkChanged) { changes <- e })()

	m, err := NewMonitor(drv, clockwork.NewFakeClock(), sensePin, 0, bus)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, m.poll)

	m.Sample()
	assert.False(t, m.State().Connected())

	drv.SetInput(sensePin, gpio.High)
	m.Sample()
	assert.True(t, m.State().Connected())
	m.Sample() // steady high: no new edge

	drv.SetInput(sensePin, gpio.Low)
	m.Sample()
	assert.False(t, m.State().Connected())

	var got []bool
	for i := 0; i < 2; i++ {
		select {
		case e := <-changes:
			got = append(got, e.Connected)
		case <-time.After(time.Second):
			t.Fatal("missing LinkChanged event")
		}
	}
	assert.Equal(t, []bool{true, false}, got)
	select {
	case e := <-changes:
		t.Fatalf("unexpected extra event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMonitor_ReadErrorKeepsState(t *testing.T) {
	drv := &flakyDriver{MockDriver: gpio.NewMockDriver()}
	m, err := NewMonitor(drv, clockwork.NewFakeClock(), sensePin, 0, nil)
	require.NoError(t, err)

	drv.SetInput(sensePin, gpio.High)
	m.Sample()
	require.True(t, m.State().Connected())

	drv.mu.Lock()
	drv.failing = true
	drv.mu.Unlock()
	m.Sample()
	assert.True(t, m.State().Connected())
}

func TestMonitor_RunPolls(t *testing.T) {
	drv := gpio.NewMockDriver()
	clock := clockwork.NewFakeClock()
	m, err := NewMonitor(drv, clock, sensePin, 200*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	drv.SetInput(sensePin, gpio.High)
	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, m.State().Connected, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
