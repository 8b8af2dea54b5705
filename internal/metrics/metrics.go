// Package metrics provides Prometheus metrics for the actuator loops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dailyturn",
		Subsystem: "motor",
		Name:      "rotations_total",
		Help:      "Rotations that ran to completion, by request source",
	}, []string{"source"})

	rotationsAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dailyturn",
		Subsystem: "motor",
		Name:      "rotations_aborted_total",
		Help:      "Rotations cancelled or failed before completion, by request source",
	}, []string{"source"})

	rotationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dailyturn",
		Subsystem: "motor",
		Name:      "rotation_duration_seconds",
		Help:      "Time spent stepping, lock wait excluded",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	motorBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dailyturn",
		Subsystem: "motor",
		Name:      "busy",
		Help:      "1 while a rotation holds the motor",
	})

	scheduleFires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dailyturn",
		Subsystem: "schedule",
		Name:      "fires_total",
		Help:      "Scheduled rotations dispatched",
	})

	scheduleEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dailyturn",
		Subsystem: "schedule",
		Name:      "entries",
		Help:      "Daily times currently scheduled",
	})

	linkConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dailyturn",
		Subsystem: "link",
		Name:      "connected",
		Help:      "1 while the serial link reports a peer",
	})

	menuSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dailyturn",
		Subsystem: "menu",
		Name:      "sessions_total",
		Help:      "Menu sessions started",
	})

	menuCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dailyturn",
		Subsystem: "menu",
		Name:      "commands_total",
		Help:      "Menu commands handled, by option",
	}, []string{"option"})
)

// RotationDone records a completed rotation.
func RotationDone(source string, seconds float64) {
	rotations.WithLabelValues(source).Inc()
	rotationSeconds.Observe(seconds)
}

// RotationAborted records a rotation that did not complete.
func RotationAborted(source string) {
	rotationsAborted.WithLabelValues(source).Inc()
}

// SetMotorBusy flags whether the motor is held.
func SetMotorBusy(busy bool) {
	motorBusy.Set(boolToFloat(busy))
}

// ScheduleFired counts one scheduled dispatch.
func ScheduleFired() {
	scheduleFires.Inc()
}

// SetScheduleEntries records the size of the schedule set.
func SetScheduleEntries(n int) {
	scheduleEntries.Set(float64(n))
}

// SetLinkConnected records the link state.
func SetLinkConnected(connected bool) {
	linkConnected.Set(boolToFloat(connected))
}

// MenuSessionStarted counts one session start.
func MenuSessionStarted() {
	menuSessions.Inc()
}

// MenuCommand counts one handled option. Unrecognized input is folded into "other".
func MenuCommand(option string) {
	switch option {
	case "0", "1", "2", "3", "4":
	default:
		option = "other"
	}
	menuCommands.WithLabelValues(option).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
