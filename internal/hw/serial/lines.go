package serial

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/DailyTurn/internal/debug"
)

// maxLineBytes bounds a single input line. Longer lines are dropped whole.
const maxLineBytes = 256

// LineReader assembles text lines terminated by '\n' or '\r'.
type LineReader struct {
	t       Transport
	clock   clockwork.Clock
	poll    time.Duration
	pending []byte
	// discarding is set while skipping the rest of an oversized line.
	discarding bool
}

// NewLineReader polls t every poll (default 20ms) while waiting for input.
func NewLineReader(t Transport, clock clockwork.Clock, poll time.Duration) *LineReader {
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &LineReader{t: t, clock: clock, poll: poll}
}

// ReadLine returns the next non-empty line with surrounding whitespace
// trimmed. Bytes after the terminator are kept for the next call. Lines
// longer than maxLineBytes are discarded up to their terminator. It returns
// ctx.Err() when ctx is done while waiting.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok := r.take(); ok {
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := r.t.ReadAvailable()
		if len(data) > 0 {
			r.pending = append(r.pending, data...)
			continue
		}
		if err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.clock.After(r.poll):
		}
	}
}

// take pops one complete line from pending, skipping empty and oversized
// ones.
func (r *LineReader) take() (string, bool) {
	for {
		i := bytes.IndexAny(r.pending, "\r\n")
		if i < 0 {
			if len(r.pending) > maxLineBytes {
				r.drop(len(r.pending))
				r.pending = nil
				r.discarding = true
			}
			return "", false
		}
		raw := r.pending[:i]
		r.pending = r.pending[i+1:]
		if r.discarding || len(raw) > maxLineBytes {
			if !r.discarding {
				r.drop(len(raw))
			}
			r.discarding = false
			continue
		}
		if line := strings.TrimSpace(string(raw)); line != "" {
			return line, true
		}
	}
}

func (r *LineReader) drop(n int) {
	debug.Verbose("serial: dropping line over %d bytes (%d buffered)", maxLineBytes, n)
}
