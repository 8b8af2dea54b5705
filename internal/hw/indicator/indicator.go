package indicator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/hw/gpio"
)

// LED is the status line. Steady on means idle and ready, blinking means the
// motor is moving.
type LED struct {
	gpio   gpio.Driver
	clock  clockwork.Clock
	pin    int
	period time.Duration

	mu  sync.Mutex
	lit bool
}

// New configures pin as an output. period is the toggle interval used by
// Blink; if 0, defaults to 400ms.
func New(g gpio.Driver, clock clockwork.Clock, pin int, period time.Duration) (*LED, error) {
	if period <= 0 {
		period = 400 * time.Millisecond
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup status pin %d: %w", pin, err)
	}
	return &LED{gpio: g, clock: clock, pin: pin, period: period}, nil
}

// On drives the line high.
func (l *LED) On() error { return l.set(true) }

// Off drives the line low.
func (l *LED) Off() error { return l.set(false) }

// Lit reports the last level written.
func (l *LED) Lit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

// Blink toggles the line every period until ctx is done, then turns it off
// and returns ctx.Err(). Write failures are logged, not returned.
func (l *LED) Blink(ctx context.Context) error {
	for {
		if err := l.set(!l.Lit()); err != nil {
			debug.Error(err)
		}
		select {
		case <-ctx.Done():
			if err := l.Off(); err != nil {
				debug.Error(err)
			}
			return ctx.Err()
		case <-l.clock.After(l.period):
		}
	}
}

func (l *LED) set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.gpio.WritePin(l.pin, gpio.Level(on)); err != nil {
		return fmt.Errorf("write status pin %d: %w", l.pin, err)
	}
	l.lit = on
	return nil
}
