// Package rtc reads wall-clock time from the battery-backed clock or, in
// development, from the system clock.
package rtc

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DateTime is a calendar reading. Weekday is 1-7 as stored by the chip
// (1 = Monday for System).
type DateTime struct {
	Year      int
	Month     int
	Day       int
	Weekday   int
	Hour      int
	Minute    int
	Second    int
	Subsecond int
}

// DateKey returns year*10000 + month*100 + day.
func (d DateTime) DateKey() int {
	return d.Year*10000 + d.Month*100 + d.Day
}

// Clock is a source of wall-clock readings.
type Clock interface {
	ReadDateTime() (DateTime, error)
}

// System reads the host clock.
type System struct {
	clock clockwork.Clock
}

// NewSystem returns a Clock backed by clock, in local time.
func NewSystem(clock clockwork.Clock) *System {
	return &System{clock: clock}
}

func (s *System) ReadDateTime() (DateTime, error) {
	return FromTime(s.clock.Now()), nil
}

// FromTime converts t in its own location.
func FromTime(t time.Time) DateTime {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return DateTime{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		Weekday:   wd,
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
		Subsecond: t.Nanosecond() / int(time.Millisecond),
	}
}
