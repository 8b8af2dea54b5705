package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeLinkChanged uint32 = iota + 1
	TypeScheduleFired
	TypeRotationStarted
	TypeRotationFinished
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LinkChanged is published on every observed edge of the link-sense input.
type LinkChanged struct {
	Connected bool      `json:"connected"`
	At        time.Time `json:"at"`
}

// Type returns the event type identifier for LinkChanged.
func (e LinkChanged) Type() uint32 { return TypeLinkChanged }

// ScheduleFired is published when a schedule entry dispatches a rotation.
type ScheduleFired struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Date   int `json:"date"` // yyyymmdd
}

// Type returns the event type identifier for ScheduleFired.
func (e ScheduleFired) Type() uint32 { return TypeScheduleFired }

// RotationStarted is published once a rotation holds the motor.
type RotationStarted struct {
	Source string `json:"source"`
	Cycles int    `json:"cycles"`
}

// Type returns the event type identifier for RotationStarted.
func (e RotationStarted) Type() uint32 { return TypeRotationStarted }

// RotationFinished is published when a rotation releases the motor.
type RotationFinished struct {
	Source   string        `json:"source"`
	Cycles   int           `json:"cycles"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Type returns the event type identifier for RotationFinished.
func (e RotationFinished) Type() uint32 { return TypeRotationFinished }
