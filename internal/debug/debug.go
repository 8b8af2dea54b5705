package debug

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, schedule fires, link changes)
	LevelLive    = 2 // Live info (rotations, menu commands)
	LevelVerbose = 3 // Verbose (configuration, loop details)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	out    atomic.Pointer[io.Writer]
	logger atomic.Pointer[zerolog.Logger]
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (startup, schedule fires, link changes)
// 2 = live info (rotations, menu commands)
// 3 = verbose (configuration, loop details)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	rebuild()
}

// SetOutput redirects debug output. Init must still be called to enable it.
func SetOutput(w io.Writer) {
	out.Store(&w)
	rebuild()
}

func rebuild() {
	if Level() <= LevelOff {
		logger.Store(nil)
		return
	}
	var w io.Writer = os.Stdout
	if p := out.Load(); p != nil && *p != nil {
		w = *p
	}
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "2006/01/02 15:04:05.000000",
	}
	l := zerolog.New(cw).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "DailyTurn").Logger()
	logger.Store(&l)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func emit(minLevel int, zl zerolog.Level, format string, args ...interface{}) {
	if Level() < minLevel {
		return
	}
	l := logger.Load()
	if l == nil {
		return
	}
	l.WithLevel(zl).Msgf(format, args...)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	emit(LevelInfo, zerolog.InfoLevel, format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	emit(LevelInfo, zerolog.InfoLevel, "═══ %s ═══", title)
}

// Link prints a connection transition (level 1).
func Link(connected bool) {
	if connected {
		emit(LevelInfo, zerolog.InfoLevel, "Link connected")
		return
	}
	emit(LevelInfo, zerolog.InfoLevel, "Link disconnected")
}

// Fire prints a scheduled trigger (level 1).
func Fire(hour, minute int) {
	emit(LevelInfo, zerolog.InfoLevel, "Schedule %02d:%02d => motor", hour, minute)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	emit(LevelLive, zerolog.InfoLevel, format, args...)
}

// Rotation prints a motor rotation (level 2).
func Rotation(source string, cycles int, state string) {
	emit(LevelLive, zerolog.InfoLevel, "Motor [%s]: %d cycles (%s)", source, cycles, state)
}

// Session prints a menu session lifecycle change (level 2).
func Session(state string) {
	emit(LevelLive, zerolog.InfoLevel, "Menu session %s", state)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	emit(LevelVerbose, zerolog.DebugLevel, format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	emit(LevelVerbose, zerolog.DebugLevel, "%s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	emit(LevelVerbose, zerolog.DebugLevel, "━━━ %s ━━━", name)
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	emit(LevelVerbose, zerolog.DebugLevel, "Step %d: %s", num, description)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	emit(LevelInfo, zerolog.InfoLevel, "  %s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	emit(LevelTrace, zerolog.TraceLevel, format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	emit(LevelTrace, zerolog.TraceLevel, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if err == nil {
		return
	}
	emit(LevelInfo, zerolog.ErrorLevel, "%v", err)
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
