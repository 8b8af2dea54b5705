package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/hw/serial"
	"github.com/cjeanneret/DailyTurn/internal/logic/motion"
	"github.com/cjeanneret/DailyTurn/internal/logic/schedule"
	"github.com/cjeanneret/DailyTurn/internal/metrics"
)

// Banner is written when a session starts and after every command but "0".
const Banner = "\n=== MENU ===\n" +
	"1) Run motor now\n" +
	"2) Schedule daily fixed time (hh:mm)\n" +
	"3) List times\n" +
	"4) Delete a time\n" +
	"0) Exit menu\n"

// Link reports whether the remote peer is still there.
type Link interface {
	Connected() bool
}

// Deps is what a session works against. Sessions are short-lived; Deps is
// built once and shared by all of them.
type Deps struct {
	Transport serial.Transport
	Clock     clockwork.Clock
	Set       *schedule.Set
	Motor     schedule.Dispatcher
	Link      Link
	Fraction  float64       // rotation for "1"
	InputPoll time.Duration // default 20ms
}

// Session is one interactive menu over the serial link.
type Session struct {
	out   io.Writer
	lines *serial.LineReader
	deps  Deps
}

func NewSession(d Deps) *Session {
	return &Session{
		out:   d.Transport,
		lines: serial.NewLineReader(d.Transport, d.Clock, d.InputPoll),
		deps:  d,
	}
}

// Run serves commands while the link is up. It returns nil after "0" or a
// dropped link, and ctx.Err() when cancelled. Nothing is written once ctx
// is done.
func (s *Session) Run(ctx context.Context) error {
	metrics.MenuSessionStarted()
	debug.Session("started")
	defer debug.Session("ended")

	if err := s.write(ctx, Banner); err != nil {
		return err
	}
	for s.deps.Link.Connected() {
		opt, err := s.lines.ReadLine(ctx)
		if err != nil {
			return quiet(err)
		}
		metrics.MenuCommand(opt)
		debug.Verbose("menu option %q", opt)

		stop, err := s.handle(ctx, opt)
		if err != nil {
			return quiet(err)
		}
		if stop {
			return nil
		}
		if err := s.write(ctx, Banner); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handle(ctx context.Context, opt string) (stop bool, err error) {
	switch opt {
	case "1":
		return false, s.runMotor(ctx)
	case "2":
		return false, s.addTime(ctx)
	case "3":
		return false, s.listTimes(ctx)
	case "4":
		return false, s.removeTime(ctx)
	case "0":
		return true, s.write(ctx, "Closing menu.\n")
	default:
		return false, s.write(ctx, "Unknown option.\n")
	}
}

func (s *Session) runMotor(ctx context.Context) error {
	if err := s.write(ctx, "Running motor...\n"); err != nil {
		return err
	}
	// The rotation is not owned by the session: leaving early only stops
	// the wait.
	done := s.deps.Motor.Dispatch(s.deps.Fraction, motion.SourceMenu)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			debug.Error(fmt.Errorf("menu rotation: %w", err))
			return s.write(ctx, "Motor failed.\n")
		}
	}
	return s.write(ctx, "Done!\n")
}

func (s *Session) addTime(ctx context.Context) error {
	if err := s.write(ctx, "Format hh:mm? "); err != nil {
		return err
	}
	line, err := s.lines.ReadLine(ctx)
	if err != nil {
		return err
	}
	e, err := schedule.ParseEntry(line)
	if err != nil {
		debug.Verbose("menu: %v", err)
		return s.write(ctx, "Invalid time.\n")
	}
	s.deps.Set.Add(e)
	return s.write(ctx, fmt.Sprintf("Scheduled %s daily.\n", e))
}

func (s *Session) listTimes(ctx context.Context) error {
	entries := s.deps.Set.List()
	if len(entries) == 0 {
		return s.write(ctx, "No times scheduled.\n")
	}
	for _, e := range entries {
		if err := s.write(ctx, fmt.Sprintf("- %s\n", e)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) removeTime(ctx context.Context) error {
	if err := s.write(ctx, "Which time to remove (hh:mm)? "); err != nil {
		return err
	}
	line, err := s.lines.ReadLine(ctx)
	if err != nil {
		return err
	}
	e, err := schedule.ParseEntry(line)
	if err != nil {
		debug.Verbose("menu: %v", err)
		return s.write(ctx, "Invalid format.\n")
	}
	s.deps.Set.Remove(e)
	return s.write(ctx, "Removed (if existed).\n")
}

func (s *Session) write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.WriteString(s.out, text); err != nil {
		return fmt.Errorf("menu: write: %w", err)
	}
	return nil
}

// quiet maps a dropped link onto a normal end of session.
func quiet(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
