package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MotorConfig holds the wiring and geometry of the 4-coil stepper.
type MotorConfig struct {
	Pins             []int   `yaml:"pins"`               // IN1..IN4 (BCM), order matches the phase table
	StepsPerRotation int     `yaml:"steps_per_rotation"` // 4-phase cycles per full rotation (28BYJ-48: 512)
	MenuFraction     float64 `yaml:"menu_fraction"`      // rotation for menu option 1 / POST /run
	ScheduleFraction float64 `yaml:"schedule_fraction"`  // rotation for each scheduled fire
}

// StatusConfig describes the status LED.
type StatusConfig struct {
	Pin int `yaml:"pin"`
}

// LinkConfig describes the link-presence input (HC-05 STATE).
type LinkConfig struct {
	SensePin int `yaml:"sense_pin"`
}

// SerialConfig describes the UART carrying the menu.
type SerialConfig struct {
	Device string `yaml:"device"` // e.g. /dev/serial0
	Baud   int    `yaml:"baud"`
}

// RTCConfig selects the wall-clock source.
type RTCConfig struct {
	Type    string `yaml:"type"`    // "ds1307" or "system"
	I2CBus  string `yaml:"i2c_bus"` // periph bus name, "" = first available
	Address uint16 `yaml:"address"` // DS1307: 0x68
}

// TimingConfig holds every loop period, in milliseconds.
type TimingConfig struct {
	PhaseDwellMs      int `yaml:"phase_dwell_ms"`
	IndicatorPeriodMs int `yaml:"indicator_period_ms"`
	LinkPollMs        int `yaml:"link_poll_ms"`
	ScheduleTickMs    int `yaml:"schedule_tick_ms"`
	InputPollMs       int `yaml:"input_poll_ms"`
	SupervisorPollMs  int `yaml:"supervisor_poll_ms"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO, system clock and console menu (true=dev/test)
}

// Config aggregates all application configuration.
type Config struct {
	Motor     MotorConfig    `yaml:"motor"`
	Status    StatusConfig   `yaml:"status"`
	Link      LinkConfig     `yaml:"link"`
	Serial    SerialConfig   `yaml:"serial"`
	RTC       RTCConfig      `yaml:"rtc"`
	Timing    TimingConfig   `yaml:"timing"`
	Schedules []string       `yaml:"schedules"` // boot-time "hh:mm" entries
	Defaults  DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only *.yaml files directly inside a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Motor.Pins) == 0 {
		c.Motor.Pins = []int{15, 14, 16, 17}
	}
	if c.Motor.StepsPerRotation <= 0 {
		c.Motor.StepsPerRotation = 512
	}
	if c.Motor.MenuFraction <= 0 {
		c.Motor.MenuFraction = 0.5
	}
	if c.Motor.ScheduleFraction <= 0 {
		c.Motor.ScheduleFraction = 0.5
	}
	if c.Status.Pin <= 0 {
		c.Status.Pin = 6
	}
	if c.Link.SensePin <= 0 {
		c.Link.SensePin = 2
	}
	if c.Serial.Device == "" {
		c.Serial.Device = "/dev/serial0"
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = 9600 // HC-05 factory default
	}
	if c.RTC.Type == "" {
		c.RTC.Type = "ds1307"
	}
	if c.RTC.Address == 0 {
		c.RTC.Address = 0x68
	}

	t := &c.Timing
	if t.PhaseDwellMs <= 0 {
		t.PhaseDwellMs = 2
	}
	if t.IndicatorPeriodMs <= 0 {
		t.IndicatorPeriodMs = 400
	}
	if t.LinkPollMs <= 0 {
		t.LinkPollMs = 200
	}
	if t.ScheduleTickMs <= 0 {
		t.ScheduleTickMs = 1000
	}
	if t.InputPollMs <= 0 {
		t.InputPollMs = 20
	}
	if t.SupervisorPollMs <= 0 {
		t.SupervisorPollMs = 100
	}
}

func (c *Config) validate() error {
	if len(c.Motor.Pins) != 4 {
		return fmt.Errorf("motor.pins must list exactly 4 pins, got %d", len(c.Motor.Pins))
	}
	if c.Motor.MenuFraction > 16 || c.Motor.ScheduleFraction > 16 {
		return fmt.Errorf("motor fractions must be <= 16 rotations")
	}
	switch c.RTC.Type {
	case "ds1307", "system":
	default:
		return fmt.Errorf("unsupported rtc.type: %s", c.RTC.Type)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// PhaseDwell returns the pause after each phase application.
func (c *Config) PhaseDwell() time.Duration {
	return ms(c.Timing.PhaseDwellMs)
}

// IndicatorPeriod returns the status LED toggle period while moving.
func (c *Config) IndicatorPeriod() time.Duration {
	return ms(c.Timing.IndicatorPeriodMs)
}

// LinkPoll returns the link-sense sampling interval.
func (c *Config) LinkPoll() time.Duration {
	return ms(c.Timing.LinkPollMs)
}

// ScheduleTick returns the schedule evaluation interval.
func (c *Config) ScheduleTick() time.Duration {
	return ms(c.Timing.ScheduleTickMs)
}

// InputPoll returns the serial input polling interval.
func (c *Config) InputPoll() time.Duration {
	return ms(c.Timing.InputPollMs)
}

// SupervisorPoll returns the session reconciliation interval.
func (c *Config) SupervisorPoll() time.Duration {
	return ms(c.Timing.SupervisorPollMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
