package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cjeanneret/DailyTurn/internal/metrics"
)

// ErrInvalidTime is wrapped by every ParseEntry failure.
var ErrInvalidTime = errors.New("invalid time")

// Entry is a daily time of day, minute resolution.
type Entry struct {
	Hour   int
	Minute int
}

// ParseEntry reads "hh:mm". Both fields are trimmed and must be decimal
// integers; hour in 0..23, minute in 0..59. "7:5" is accepted as 07:05.
func ParseEntry(s string) (Entry, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Entry{}, fmt.Errorf("%w: %q: want hh:mm", ErrInvalidTime, s)
	}
	h, err := field(parts[0])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: hour: %v", ErrInvalidTime, err)
	}
	m, err := field(parts[1])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: minute: %v", ErrInvalidTime, err)
	}
	e := Entry{Hour: h, Minute: m}
	if !e.Valid() {
		return Entry{}, fmt.Errorf("%w: %s out of range", ErrInvalidTime, e)
	}
	return e, nil
}

func field(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

// Valid reports whether the entry names a real time of day.
func (e Entry) Valid() bool {
	return e.Hour >= 0 && e.Hour <= 23 && e.Minute >= 0 && e.Minute <= 59
}

func (e Entry) String() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

func (e Entry) less(o Entry) bool {
	if e.Hour != o.Hour {
		return e.Hour < o.Hour
	}
	return e.Minute < o.Minute
}

// Set is the shared collection of daily times plus the date each one last
// fired. The menu writes it, the trigger reads it; both go through the lock.
type Set struct {
	mu      sync.RWMutex
	entries map[Entry]struct{}
	lastRun map[Entry]int
}

func NewSet(entries ...Entry) *Set {
	s := &Set{
		entries: make(map[Entry]struct{}),
		lastRun: make(map[Entry]int),
	}
	for _, e := range entries {
		s.entries[e] = struct{}{}
	}
	metrics.SetScheduleEntries(len(s.entries))
	return s
}

// Add inserts e. Adding an existing entry is a no-op; it returns false then.
func (s *Set) Add(e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e]; ok {
		return false
	}
	s.entries[e] = struct{}{}
	metrics.SetScheduleEntries(len(s.entries))
	return true
}

// Remove deletes e if present. The last-run record is kept so a re-added
// entry does not fire twice on the same day.
func (s *Set) Remove(e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e]; !ok {
		return false
	}
	delete(s.entries, e)
	metrics.SetScheduleEntries(len(s.entries))
	return true
}

func (s *Set) Contains(e Entry) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[e]
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// List returns the entries sorted by hour then minute.
func (s *Set) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// LastRun returns the yyyymmdd date e last fired on, or 0 if never.
func (s *Set) LastRun(e Entry) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun[e]
}

// LastRuns returns a copy of the whole last-run registry.
func (s *Set) LastRuns() map[Entry]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Entry]int, len(s.lastRun))
	for e, d := range s.lastRun {
		out[e] = d
	}
	return out
}

// claim marks e as fired on date and reports whether the caller should fire.
// It fails when e is not scheduled or already fired on date. Check and
// record happen under one lock so a concurrent Remove cannot slip between.
func (s *Set) claim(e Entry, date int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e]; !ok {
		return false
	}
	if s.lastRun[e] == date {
		return false
	}
	s.lastRun[e] = date
	return true
}
