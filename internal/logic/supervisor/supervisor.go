package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/DailyTurn/internal/debug"
)

// Task is a process-lifetime loop such as the link monitor or the schedule
// trigger. It must return when ctx is done.
type Task func(ctx context.Context) error

// SessionFunc runs one menu session until it ends or ctx is cancelled.
type SessionFunc func(ctx context.Context) error

// Link is the connection flag the session lifecycle follows.
type Link interface {
	Connected() bool
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor starts the lifetime tasks once, then keeps exactly one menu
// session alive while the link is up and none while it is down.
type Supervisor struct {
	link       Link
	clock      clockwork.Clock
	poll       time.Duration
	newSession SessionFunc
	tasks      []Task

	mu     sync.Mutex
	active *handle
}

// New builds a supervisor polling every poll (default 100ms).
func New(link Link, clock clockwork.Clock, poll time.Duration, session SessionFunc, tasks ...Task) *Supervisor {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Supervisor{
		link:       link,
		clock:      clock,
		poll:       poll,
		newSession: session,
		tasks:      tasks,
	}
}

// Run blocks until ctx is done or a lifetime task fails. The active
// session, if any, is cancelled and awaited before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		defer s.stopSession()
		ticker := s.clock.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			s.Reconcile(gctx)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.Chan():
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Reconcile compares the link with the session handle once and starts or
// stops the session to match. A session that ended on its own keeps its
// handle until the link drops, so a new menu needs a new connection.
func (s *Supervisor) Reconcile(ctx context.Context) {
	connected := s.link.Connected()

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	switch {
	case connected && active == nil:
		if ctx.Err() != nil {
			return
		}
		s.startSession(ctx)
	case !connected && active != nil:
		s.stopSession()
	}
}

// Active reports whether a session handle is held.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Supervisor) startSession(ctx context.Context) {
	sctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active = h
	s.mu.Unlock()

	debug.Verbose("supervisor: starting menu session")
	go func() {
		defer close(h.done)
		if err := s.newSession(sctx); err != nil && !errors.Is(err, context.Canceled) {
			debug.Error(fmt.Errorf("menu session: %w", err))
		}
	}()
}

// stopSession cancels the active session and waits for it to exit.
func (s *Supervisor) stopSession() {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil {
		return
	}
	debug.Verbose("supervisor: stopping menu session")
	h.cancel()
	<-h.done
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}
