package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "default.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	assert.NoError(t, ValidateConfigPath(path))
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	for _, path := range []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	} {
		assert.Error(t, ValidateConfigPath(path), path)
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	for _, path := range []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default",
	} {
		assert.Error(t, ValidateConfigPath(path), path)
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	for _, path := range []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	} {
		assert.Error(t, ValidateConfigPath(path), path)
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	assert.Error(t, ValidateConfigPath(""))
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Must not panic; the result is OS-dependent.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
motor:
  pins: [15, 14, 16, 17]
  steps_per_rotation: 512
  menu_fraction: 0.5
  schedule_fraction: 0.25
status:
  pin: 6
link:
  sense_pin: 2
serial:
  device: /dev/ttyAMA0
  baud: 9600
rtc:
  type: ds1307
  i2c_bus: "1"
  address: 0x68
timing:
  phase_dwell_ms: 3
  indicator_period_ms: 500
schedules: ["07:30", "19:00"]
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, []int{15, 14, 16, 17}, cfg.Motor.Pins)
	assert.Equal(t, 512, cfg.Motor.StepsPerRotation)
	assert.Equal(t, 0.25, cfg.Motor.ScheduleFraction)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Device)
	assert.Equal(t, "1", cfg.RTC.I2CBus)
	assert.Equal(t, uint16(0x68), cfg.RTC.Address)
	assert.Equal(t, []string{"07:30", "19:00"}, cfg.Schedules)
	assert.Equal(t, 2, cfg.Defaults.DebugLevel)
	assert.True(t, cfg.Defaults.MockGPIO)
	assert.Equal(t, 3*time.Millisecond, cfg.PhaseDwell())
	assert.Equal(t, 500*time.Millisecond, cfg.IndicatorPeriod())
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, []int{15, 14, 16, 17}, cfg.Motor.Pins)
	assert.Equal(t, 512, cfg.Motor.StepsPerRotation)
	assert.Equal(t, 0.5, cfg.Motor.MenuFraction)
	assert.Equal(t, 0.5, cfg.Motor.ScheduleFraction)
	assert.Equal(t, 6, cfg.Status.Pin)
	assert.Equal(t, 2, cfg.Link.SensePin)
	assert.Equal(t, "/dev/serial0", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "ds1307", cfg.RTC.Type)

	assert.Equal(t, 2*time.Millisecond, cfg.PhaseDwell())
	assert.Equal(t, 400*time.Millisecond, cfg.IndicatorPeriod())
	assert.Equal(t, 200*time.Millisecond, cfg.LinkPoll())
	assert.Equal(t, time.Second, cfg.ScheduleTick())
	assert.Equal(t, 20*time.Millisecond, cfg.InputPoll())
	assert.Equal(t, 100*time.Millisecond, cfg.SupervisorPoll())
}

func TestLoad_WrongPinCount(t *testing.T) {
	_, err := Load(writeConfig(t, "motor:\n  pins: [1, 2, 3]\n"))
	assert.Error(t, err)
}

func TestLoad_UnsupportedRTC(t *testing.T) {
	_, err := Load(writeConfig(t, "rtc:\n  type: ds3231\n"))
	assert.Error(t, err)
}

func TestLoad_DebugLevelOutOfRange(t *testing.T) {
	_, err := Load(writeConfig(t, "defaults:\n  debug_level: 9\n"))
	assert.Error(t, err)
}

func TestLoad_FractionTooLarge(t *testing.T) {
	_, err := Load(writeConfig(t, "motor:\n  menu_fraction: 100\n"))
	assert.Error(t, err)
}

func TestLoad_FileTooLarge(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "big.yaml")
	data := []byte(strings.Repeat("#", MaxConfigFileBytes+1))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "{{{{invalid yaml!!!!"))
	assert.Error(t, err)
}

func TestLoad_UnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "unknown_section:\n  foo: bar\n"))
	assert.NoError(t, err, "unknown fields should be ignored")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "configs", "nonexistent.yaml"))
	assert.Error(t, err)
}
