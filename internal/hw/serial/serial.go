// Package serial carries the menu text: a byte transport with a non-blocking
// read side, and a line assembler on top of it.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tarm "github.com/tarm/serial"

	"github.com/cjeanneret/DailyTurn/internal/debug"
)

// Transport is a byte-oriented link. ReadAvailable never blocks: it returns
// whatever arrived since the previous call, possibly nothing.
type Transport interface {
	Write(p []byte) (int, error)
	ReadAvailable() ([]byte, error)
}

// readRetry is the pause after a transient read error before the pump
// reads again.
const readRetry = 100 * time.Millisecond

// Port adapts a blocking reader into a Transport with a background pump.
type Port struct {
	w io.Writer
	c io.Closer

	mu    sync.Mutex
	rx    []byte
	err   error
	fatal bool // err ends the stream and is reported on every read

	// eofIsIdle treats io.EOF as "no data yet" (UART read timeout) rather
	// than end of stream.
	eofIsIdle bool
}

// NewPort starts pumping r in the background. c, if not nil, is closed by Close.
func NewPort(r io.Reader, w io.Writer, c io.Closer) *Port {
	p := &Port{w: w, c: c}
	go p.pump(r)
	return p
}

// OpenUART opens a serial device such as /dev/serial0 (8N1).
func OpenUART(device string, baud int) (*Port, error) {
	sp, err := tarm.OpenPort(&tarm.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	debug.Verbose("Serial: %s opened at %d baud", device, baud)
	p := &Port{w: sp, c: sp, eofIsIdle: true}
	go p.pump(sp)
	return p, nil
}

// Console serves the menu on the process terminal.
func Console() *Port {
	return NewPort(os.Stdin, os.Stdout, nil)
}

func (p *Port) pump(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.rx = append(p.rx, buf[:n]...)
			p.mu.Unlock()
		}
		if err == nil || (p.eofIsIdle && errors.Is(err, io.EOF)) {
			continue
		}
		fatal := endOfStream(err)
		p.mu.Lock()
		p.err = err
		p.fatal = fatal
		p.mu.Unlock()
		if fatal {
			return
		}
		debug.Error(fmt.Errorf("serial read: %w", err))
		time.Sleep(readRetry)
	}
}

func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}

func (p *Port) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// ReadAvailable returns buffered bytes. A pump error is reported once the
// buffer has been drained: end of stream on every later call, a transient
// error only once while the pump keeps reading.
func (p *Port) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) > 0 {
		out := p.rx
		p.rx = nil
		return out, nil
	}
	err := p.err
	if !p.fatal {
		p.err = nil
	}
	return nil, err
}

func (p *Port) Close() error {
	if p.c == nil {
		return nil
	}
	return p.c.Close()
}
