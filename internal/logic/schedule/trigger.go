package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/events"
	"github.com/cjeanneret/DailyTurn/internal/hw/rtc"
	"github.com/cjeanneret/DailyTurn/internal/logic/motion"
	"github.com/cjeanneret/DailyTurn/internal/metrics"
)

// Dispatcher queues a rotation without waiting for it.
type Dispatcher interface {
	Dispatch(fraction float64, source string) <-chan error
}

// Trigger checks the RTC once per tick and fires each scheduled entry at most
// once per calendar day.
type Trigger struct {
	clock    clockwork.Clock
	rtc      rtc.Clock
	set      *Set
	motor    Dispatcher
	fraction float64
	tick     time.Duration
	bus      *events.Bus
}

type TriggerConfig struct {
	Fraction float64       // of a full rotation per fire
	Tick     time.Duration // default 1s
}

func NewTrigger(clock clockwork.Clock, r rtc.Clock, set *Set, motor Dispatcher, bus *events.Bus, cfg TriggerConfig) *Trigger {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Trigger{
		clock:    clock,
		rtc:      r,
		set:      set,
		motor:    motor,
		fraction: cfg.Fraction,
		tick:     cfg.Tick,
		bus:      bus,
	}
}

// Run ticks until ctx is done and returns ctx.Err().
func (t *Trigger) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			t.Tick()
		}
	}
}

// Tick runs one check. It reports whether a rotation was dispatched.
func (t *Trigger) Tick() bool {
	now, err := t.rtc.ReadDateTime()
	if err != nil {
		debug.Error(fmt.Errorf("schedule: read rtc: %w", err))
		return false
	}
	e := Entry{Hour: now.Hour, Minute: now.Minute}
	today := now.DateKey()
	if !t.set.claim(e, today) {
		return false
	}

	done := t.motor.Dispatch(t.fraction, motion.SourceSchedule)
	go func() {
		if err := <-done; err != nil {
			debug.Error(fmt.Errorf("schedule %s: %w", e, err))
		}
	}()

	debug.Fire(e.Hour, e.Minute)
	metrics.ScheduleFired()
	t.bus.Publish(events.ScheduleFired{Hour: e.Hour, Minute: e.Minute, Date: today})
	return true
}
