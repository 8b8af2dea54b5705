package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/logic/motion"
	"github.com/cjeanneret/DailyTurn/internal/logic/schedule"
)

// maxRunBody caps the POST /run request body.
const maxRunBody = 1 << 20

// MaxFraction is the largest rotation accepted from the web, in full turns.
const MaxFraction = 16.0

// RunRequest is the optional POST /run body. A zero Fraction means the
// configured default.
type RunRequest struct {
	Fraction float64 `json:"fraction"`
}

// ValidateFraction accepts finite fractions in (0, MaxFraction].
func ValidateFraction(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("fraction must be a finite number")
	}
	if f <= 0 || f > MaxFraction {
		return fmt.Errorf("fraction must be in (0, %g]", MaxFraction)
	}
	return nil
}

// Motor is the rotation side used by the handlers.
type Motor interface {
	Dispatch(fraction float64, source string) <-chan error
	Busy() bool
}

// Link reports the serial link state.
type Link interface {
	Connected() bool
}

// Status is the GET /status payload.
type Status struct {
	Connected bool           `json:"connected"`
	MotorBusy bool           `json:"motor_busy"`
	Schedules []string       `json:"schedules"`
	LastRuns  map[string]int `json:"last_runs"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Motor       Motor
	Link        Link
	Schedules   *schedule.Set
	Fraction    float64 // default for POST /run

	runningMu sync.Mutex
	running   bool
	limiter   *rate.Limiter
}

// NewHandlers creates handlers with the given dependencies.
// If motor is nil, POST /run will return 503 Service Unavailable.
// POST /run is limited to one request every 5 seconds.
func NewHandlers(broadcaster *StatusBroadcaster, motor Motor, link Link, set *schedule.Set, fraction float64) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Motor:       motor,
		Link:        link,
		Schedules:   set,
		Fraction:    fraction,
		limiter:     rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// HandleStatus returns link, motor and schedule state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Schedules: []string{}, LastRuns: map[string]int{}}
	if h.Link != nil {
		st.Connected = h.Link.Connected()
	}
	if h.Motor != nil {
		st.MotorBusy = h.Motor.Busy()
	}
	if h.Schedules != nil {
		for _, e := range h.Schedules.List() {
			st.Schedules = append(st.Schedules, e.String())
		}
		for e, d := range h.Schedules.LastRuns() {
			st.LastRuns[e.String()] = d
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// HandleRun handles POST /run to queue a rotation.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := RunRequest{}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRunBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}
	if req.Fraction == 0 {
		req.Fraction = h.Fraction
	}
	if err := ValidateFraction(req.Fraction); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Motor == nil {
		http.Error(w, "motor not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "rotation already requested", http.StatusConflict)
		return
	}
	if !h.limiter.Allow() {
		h.runningMu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	done := h.Motor.Dispatch(req.Fraction, motion.SourceWeb)
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		if err := <-done; err != nil {
			h.Broadcaster.Broadcast("error", "Rotation failed: "+err.Error())
			debug.Error(fmt.Errorf("web rotation: %w", err))
		} else {
			h.Broadcaster.Broadcast("info", "Rotation complete")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "queued", "fraction": req.Fraction})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
