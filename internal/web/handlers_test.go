package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/DailyTurn/internal/logic/schedule"
)

// ---------- ValidateFraction ----------

func TestValidateFraction(t *testing.T) {
	for _, f := range []float64{0.5, 1, 0.001, MaxFraction} {
		if err := ValidateFraction(f); err != nil {
			t.Errorf("ValidateFraction(%g) = %v, want nil", f, err)
		}
	}
	for _, f := range []float64{0, -1, MaxFraction + 1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := ValidateFraction(f); err == nil {
			t.Errorf("ValidateFraction(%g) = nil, want error", f)
		}
	}
}

// ---------- Handler helpers ----------

type fakeMotor struct {
	mu        sync.Mutex
	fractions []float64
	sources   []string
	release   chan struct{} // if set, rotations end when closed
	busy      atomic.Bool
}

func (m *fakeMotor) Dispatch(fraction float64, source string) <-chan error {
	m.mu.Lock()
	m.fractions = append(m.fractions, fraction)
	m.sources = append(m.sources, source)
	m.mu.Unlock()
	done := make(chan error, 1)
	if m.release == nil {
		done <- nil
		return done
	}
	m.busy.Store(true)
	go func() {
		<-m.release
		m.busy.Store(false)
		done <- nil
	}()
	return done
}

func (m *fakeMotor) Busy() bool { return m.busy.Load() }

func (m *fakeMotor) calls() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.fractions...)
}

type fakeLink bool

func (l fakeLink) Connected() bool { return bool(l) }

func newTestHandlers(motor Motor) *Handlers {
	set := schedule.NewSet(schedule.Entry{Hour: 9, Minute: 5}, schedule.Entry{Hour: 7, Minute: 30})
	return NewHandlers(NewStatusBroadcaster(), motor, fakeLink(true), set, 0.5)
}

func postRun(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleRun(w, req)
	return w
}

// ---------- HandleRun ----------

func TestHandleRun_DefaultFraction(t *testing.T) {
	motor := &fakeMotor{}
	h := newTestHandlers(motor)

	w := postRun(h, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "queued" {
		t.Errorf("response status = %v, want \"queued\"", resp["status"])
	}
	if got := motor.calls(); len(got) != 1 || got[0] != 0.5 {
		t.Errorf("dispatched %v, want [0.5]", got)
	}
	if motor.sources[0] != "web" {
		t.Errorf("source = %q, want \"web\"", motor.sources[0])
	}
}

func TestHandleRun_ExplicitFraction(t *testing.T) {
	motor := &fakeMotor{}
	h := newTestHandlers(motor)

	data, _ := json.Marshal(RunRequest{Fraction: 0.25})
	if w := postRun(h, string(data)); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got := motor.calls(); len(got) != 1 || got[0] != 0.25 {
		t.Errorf("dispatched %v, want [0.25]", got)
	}
}

func TestHandleRun_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(&fakeMotor{})
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRun_BadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid_json": "not json",
		"negative":     `{"fraction": -1}`,
		"too_large":    `{"fraction": 100}`,
		"oversized":    strings.Repeat("x", 2<<20),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			motor := &fakeMotor{}
			h := newTestHandlers(motor)
			if w := postRun(h, body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(motor.calls()) != 0 {
				t.Error("no rotation should be dispatched")
			}
		})
	}
}

func TestHandleRun_NilMotor(t *testing.T) {
	h := newTestHandlers(nil)
	if w := postRun(h, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRun_ConcurrentRequest(t *testing.T) {
	motor := &fakeMotor{release: make(chan struct{})}
	h := newTestHandlers(motor)

	if w := postRun(h, ""); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := postRun(h, ""); w.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w.Code, http.StatusConflict)
	}
	close(motor.release)
}

func TestHandleRun_RateLimiting(t *testing.T) {
	motor := &fakeMotor{}
	h := newTestHandlers(motor)

	if w := postRun(h, ""); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}

	// Let the first rotation's completion clear the running flag.
	deadline := time.Now().Add(time.Second)
	for {
		h.runningMu.Lock()
		running := h.running
		h.runningMu.Unlock()
		if !running || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if w := postRun(h, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("rate-limited request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if n := len(motor.calls()); n != 1 {
		t.Errorf("dispatched %d rotations, want 1", n)
	}
}

// ---------- HandleStatus ----------

func TestHandleStatus(t *testing.T) {
	motor := &fakeMotor{}
	motor.busy.Store(true)
	h := newTestHandlers(motor)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var st Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Connected || !st.MotorBusy {
		t.Errorf("got connected=%v busy=%v, want both true", st.Connected, st.MotorBusy)
	}
	if want := []string{"07:30", "09:05"}; strings.Join(st.Schedules, ",") != strings.Join(want, ",") {
		t.Errorf("schedules = %v, want %v", st.Schedules, want)
	}
}

// ---------- Mux ----------

func TestServerMux_Routes(t *testing.T) {
	srv := NewServer(":0", newTestHandlers(&fakeMotor{}))
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/run", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST /run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("/run status = %d", resp.StatusCode)
	}
}

func TestHandleStatusStream_DeliversBroadcast(t *testing.T) {
	h := newTestHandlers(&fakeMotor{})
	ts := httptest.NewServer(http.HandlerFunc(h.HandleStatusStream))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil || !strings.Contains(string(buf[:n]), ": connected") {
		t.Fatalf("expected connected comment, got %q (%v)", buf[:n], err)
	}

	h.Broadcaster.Broadcast("info", "hello stream")
	n, err = resp.Body.Read(buf)
	if err != nil || !strings.Contains(string(buf[:n]), "hello stream") {
		t.Errorf("expected broadcast, got %q (%v)", buf[:n], err)
	}
}
