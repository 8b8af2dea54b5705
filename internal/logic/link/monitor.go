package link

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/events"
	"github.com/cjeanneret/DailyTurn/internal/hw/gpio"
	"github.com/cjeanneret/DailyTurn/internal/metrics"
)

// State is the process-wide "link connected" flag. Only the Monitor writes it.
type State struct {
	connected atomic.Bool
}

func (s *State) Connected() bool {
	return s.connected.Load()
}

func (s *State) set(v bool) {
	s.connected.Store(v)
}

// Monitor polls the link-sense pin of the serial bridge. High means a peer
// is connected. One sample decides; there is no debounce.
type Monitor struct {
	gpio  gpio.Driver
	pin   int
	clock clockwork.Clock
	poll  time.Duration
	state *State
	bus   *events.Bus
}

// NewMonitor configures pin as an input. poll defaults to 200ms.
func NewMonitor(g gpio.Driver, clock clockwork.Clock, pin int, poll time.Duration, bus *events.Bus) (*Monitor, error) {
	if err := g.SetupPin(pin, gpio.Input); err != nil {
		return nil, fmt.Errorf("link: setup sense pin %d: %w", pin, err)
	}
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	return &Monitor{
		gpio:  g,
		pin:   pin,
		clock: clock,
		poll:  poll,
		state: &State{},
		bus:   bus,
	}, nil
}

// State returns the flag this monitor maintains.
func (m *Monitor) State() *State {
	return m.state
}

// Run samples immediately, then once per poll period until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		m.Sample()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// Sample reads the pin once and applies any edge. A read error leaves the
// state untouched.
func (m *Monitor) Sample() {
	level, err := m.gpio.ReadPin(m.pin)
	if err != nil {
		debug.Error(fmt.Errorf("link: read pin %d: %w", m.pin, err))
		return
	}
	now := level == gpio.High
	if now == m.state.Connected() {
		return
	}
	m.state.set(now)
	metrics.SetLinkConnected(now)
	debug.Link(now)
	m.bus.Publish(events.LinkChanged{Connected: now, At: m.clock.Now()})
}
