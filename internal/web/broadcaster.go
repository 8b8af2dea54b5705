package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/DailyTurn/internal/events"
)

// StatusEvent is one SSE message.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans status messages out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends {"t":"...","l":level,"msg":msg} to every client.
// Slow clients miss messages rather than block the sender.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Forward relays domain events from bus to the SSE clients at level
// "event". The returned function stops forwarding.
func (b *StatusBroadcaster) Forward(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.LinkChanged) {
			if e.Connected {
				b.Broadcast("event", "link connected")
			} else {
				b.Broadcast("event", "link disconnected")
			}
		}),
		bus.Subscribe(func(e events.ScheduleFired) {
			b.Broadcast("event", fmt.Sprintf("schedule %02d:%02d fired", e.Hour, e.Minute))
		}),
		bus.Subscribe(func(e events.RotationStarted) {
			b.Broadcast("event", fmt.Sprintf("rotation started (%s, %d cycles)", e.Source, e.Cycles))
		}),
		bus.Subscribe(func(e events.RotationFinished) {
			if e.Error != "" {
				b.Broadcast("error", fmt.Sprintf("rotation aborted (%s): %s", e.Source, e.Error))
				return
			}
			b.Broadcast("event", fmt.Sprintf("rotation finished (%s, %s)", e.Source, e.Duration.Round(time.Millisecond)))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// BroadcastWriter returns an io.Writer that broadcasts each write; main
// hands it to debug.SetOutput.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
