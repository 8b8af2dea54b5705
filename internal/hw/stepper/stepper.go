package stepper

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/hw/gpio"
)

// Phases is the single-coil full-step sequence: one line asserted at a time.
// One pass over the table is one cycle.
var Phases = [4][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.Low, gpio.High},
}

// Config holds the hardware configuration for a 4-coil unipolar stepper
// (28BYJ-48 behind a ULN2003).
type Config struct {
	Pins  [4]int        // IN1..IN4 (BCM)
	Dwell time.Duration // pause after each phase application
}

// Stepper drives the coil lines through Phases.
// It is not safe for concurrent use; callers serialize access (see motion.Controller).
type Stepper struct {
	gpio  gpio.Driver
	clock clockwork.Clock
	cfg   Config
}

// NewStepper configures the coil pins as outputs, de-energized.
// cfg.Dwell: if 0, defaults to 2ms.
func NewStepper(g gpio.Driver, clock clockwork.Clock, cfg Config) (*Stepper, error) {
	if cfg.Dwell <= 0 {
		cfg.Dwell = 2 * time.Millisecond
	}
	for _, pin := range cfg.Pins {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup coil pin %d: %w", pin, err)
		}
	}
	s := &Stepper{gpio: g, clock: clock, cfg: cfg}
	if err := s.Release(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run applies cycles passes of the phase table, dwelling after each phase.
// ctx is honoured at every dwell. The coils are left in whatever phase was
// last applied; call Release to de-energize.
func (s *Stepper) Run(ctx context.Context, cycles int) error {
	if cycles <= 0 {
		return nil
	}
	debug.Verbose("Stepper: %d cycles (%d phases) on pins %v", cycles, cycles*len(Phases), s.cfg.Pins)

	for c := 0; c < cycles; c++ {
		for _, phase := range Phases {
			if err := s.apply(phase); err != nil {
				return err
			}
			if err := s.dwell(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Release drives every coil line low.
func (s *Stepper) Release() error {
	return s.apply([4]gpio.Level{})
}

func (s *Stepper) apply(phase [4]gpio.Level) error {
	for i, pin := range s.cfg.Pins {
		if err := s.gpio.WritePin(pin, phase[i]); err != nil {
			return fmt.Errorf("write coil pin %d: %w", pin, err)
		}
	}
	return nil
}

func (s *Stepper) dwell(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.cfg.Dwell):
		return nil
	}
}
