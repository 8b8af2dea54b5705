package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/events"
	"github.com/cjeanneret/DailyTurn/internal/hw/indicator"
	"github.com/cjeanneret/DailyTurn/internal/hw/stepper"
	"github.com/cjeanneret/DailyTurn/internal/metrics"
)

// Request sources, used as metric labels and in events.
const (
	SourceMenu     = "menu"
	SourceSchedule = "schedule"
	SourceWeb      = "web"
)

// queueSize bounds queued Dispatch requests; a full queue delays the caller.
const queueSize = 32

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("motion: controller closed")

// Coils is the stepper side of the controller.
type Coils interface {
	Run(ctx context.Context, cycles int) error
	Release() error
}

// Indicator is the status LED driven while moving.
type Indicator interface {
	Blink(ctx context.Context) error
	On() error
}

var (
	_ Coils     = (*stepper.Stepper)(nil)
	_ Indicator = (*indicator.LED)(nil)
)

type request struct {
	fraction float64
	source   string
	done     chan error
}

// Controller owns the motor. Every rotation, whoever asks for it, holds the
// same FIFO semaphore for its whole duration, so phase output from two
// rotations never interleaves.
type Controller struct {
	clock            clockwork.Clock
	coils            Coils
	led              Indicator
	stepsPerRotation int
	bus              *events.Bus

	sem  *semaphore.Weighted
	busy atomic.Bool

	queue     chan request
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex // guards closed against in-flight Dispatch sends
	closed    bool
}

// NewController starts the dispatch worker. stepsPerRotation is the number of
// phase-table cycles per full rotation (512 for a 28BYJ-48).
func NewController(clock clockwork.Clock, coils Coils, led Indicator, stepsPerRotation int, bus *events.Bus) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		clock:            clock,
		coils:            coils,
		led:              led,
		stepsPerRotation: stepsPerRotation,
		bus:              bus,
		sem:              semaphore.NewWeighted(1),
		queue:            make(chan request, queueSize),
		ctx:              ctx,
		cancel:           cancel,
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

// Cycles converts a fraction of a full rotation to phase-table cycles.
func (c *Controller) Cycles(fraction float64) int {
	return int(math.Round(fraction * float64(c.stepsPerRotation)))
}

// Busy reports whether a rotation currently holds the motor.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Rotate turns the motor by fraction of a full rotation and blocks until done.
// It waits for the motor if another rotation holds it.
//
// On success the coils are released and the status LED left steady on.
// If ctx ends mid-rotation the coils are de-energized, the blink task is
// stopped (LED off) and ctx.Err() is returned.
func (c *Controller) Rotate(ctx context.Context, fraction float64, source string) error {
	if fraction < 0 || math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return fmt.Errorf("invalid rotation fraction: %g", fraction)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.busy.Store(true)
	metrics.SetMotorBusy(true)
	defer func() {
		c.busy.Store(false)
		metrics.SetMotorBusy(false)
	}()

	cycles := c.Cycles(fraction)
	debug.Rotation(source, cycles, "start")
	c.bus.Publish(events.RotationStarted{Source: source, Cycles: cycles})

	blinkCtx, stopBlink := context.WithCancel(ctx)
	blinkDone := make(chan struct{})
	go func() {
		defer close(blinkDone)
		_ = c.led.Blink(blinkCtx)
	}()

	start := c.clock.Now()
	runErr := c.coils.Run(ctx, cycles)
	relErr := c.coils.Release()

	stopBlink()
	<-blinkDone

	elapsed := c.clock.Since(start)
	finished := events.RotationFinished{Source: source, Cycles: cycles, Duration: elapsed}
	if err := errors.Join(runErr, relErr); err != nil {
		metrics.RotationAborted(source)
		debug.Rotation(source, cycles, "aborted: "+err.Error())
		finished.Error = err.Error()
		c.bus.Publish(finished)
		return err
	}

	if err := c.led.On(); err != nil {
		debug.Error(err)
	}
	metrics.RotationDone(source, elapsed.Seconds())
	debug.Rotation(source, cycles, "done")
	c.bus.Publish(finished)
	return nil
}

// Dispatch queues a rotation and returns at once. The rotation runs on the
// controller's own lifetime, not the caller's: cancelling whoever asked does
// not stop it. Requests start in the order they were dispatched. The returned
// channel receives the result exactly once.
func (c *Controller) Dispatch(fraction float64, source string) <-chan error {
	done := make(chan error, 1)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		done <- ErrClosed
		return done
	}
	select {
	case c.queue <- request{fraction: fraction, source: source, done: done}:
	case <-c.ctx.Done():
		done <- ErrClosed
	}
	return done
}

func (c *Controller) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case req := <-c.queue:
			req.done <- c.Rotate(c.ctx, req.fraction, req.source)
		}
	}
}

func (c *Controller) drain() {
	for {
		select {
		case req := <-c.queue:
			req.done <- ErrClosed
		default:
			return
		}
	}
}

// Close cancels any in-flight dispatched rotation (coils de-energized),
// rejects queued ones and waits for the worker to stop.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.mu.Lock()
		c.closed = true
		c.drain()
		c.mu.Unlock()
	})
	return nil
}
