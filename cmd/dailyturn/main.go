package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/DailyTurn/internal/config"
	"github.com/cjeanneret/DailyTurn/internal/debug"
	"github.com/cjeanneret/DailyTurn/internal/events"
	"github.com/cjeanneret/DailyTurn/internal/hw/gpio"
	"github.com/cjeanneret/DailyTurn/internal/hw/indicator"
	"github.com/cjeanneret/DailyTurn/internal/hw/rtc"
	"github.com/cjeanneret/DailyTurn/internal/hw/serial"
	"github.com/cjeanneret/DailyTurn/internal/hw/stepper"
	"github.com/cjeanneret/DailyTurn/internal/logic/link"
	"github.com/cjeanneret/DailyTurn/internal/logic/menu"
	"github.com/cjeanneret/DailyTurn/internal/logic/motion"
	"github.com/cjeanneret/DailyTurn/internal/logic/schedule"
	"github.com/cjeanneret/DailyTurn/internal/logic/supervisor"
	"github.com/cjeanneret/DailyTurn/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyDebugOverride(cfg, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, webPort.port()); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("dailyturn: %v", err)
	}
	debug.Info("stopped")
}

// run builds the hardware, starts the loops and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, webPort int) error {
	clock := clockwork.NewRealClock()

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver: %w", err))
		}
	}()

	debug.Step(2, "Initializing stepper and status LED")
	motor, err := stepper.NewStepper(gpioDriver, clock, stepper.Config{
		Pins:  [4]int{cfg.Motor.Pins[0], cfg.Motor.Pins[1], cfg.Motor.Pins[2], cfg.Motor.Pins[3]},
		Dwell: cfg.PhaseDwell(),
	})
	if err != nil {
		return err
	}
	defer motor.Release()
	debug.PrintStruct("Motor config", cfg.Motor)

	led, err := indicator.New(gpioDriver, clock, cfg.Status.Pin, cfg.IndicatorPeriod())
	if err != nil {
		return err
	}
	if err := led.On(); err != nil {
		return err
	}

	debug.Step(3, "Initializing clock and serial link")
	wall, closeRTC, err := newRTC(cfg, clock)
	if err != nil {
		return err
	}
	defer closeRTC()

	transport, err := newTransport(cfg, gpioDriver)
	if err != nil {
		return err
	}
	defer transport.Close()

	debug.Step(4, "Starting controller")
	bus := events.New()
	defer bus.Close()

	ctrl := motion.NewController(clock, motor, led, cfg.Motor.StepsPerRotation, bus)
	defer ctrl.Close()

	set, err := seedSchedules(cfg.Schedules)
	if err != nil {
		return err
	}
	debug.Value("Schedules", set.List())

	monitor, err := link.NewMonitor(gpioDriver, clock, cfg.Link.SensePin, cfg.LinkPoll(), bus)
	if err != nil {
		return err
	}
	trigger := schedule.NewTrigger(clock, wall, set, ctrl, bus, schedule.TriggerConfig{
		Fraction: cfg.Motor.ScheduleFraction,
		Tick:     cfg.ScheduleTick(),
	})
	deps := menu.Deps{
		Transport: transport,
		Clock:     clock,
		Set:       set,
		Motor:     ctrl,
		Link:      monitor.State(),
		Fraction:  cfg.Motor.MenuFraction,
		InputPoll: cfg.InputPoll(),
	}
	sup := supervisor.New(monitor.State(), clock, cfg.SupervisorPoll(),
		func(ctx context.Context) error { return menu.NewSession(deps).Run(ctx) },
		monitor.Run, trigger.Run)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })

	if webPort > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		defer broadcaster.Forward(bus)()

		handlers := web.NewHandlers(broadcaster, ctrl, monitor.State(), set, cfg.Motor.MenuFraction)
		srv := web.NewServer(fmt.Sprintf(":%d", webPort), handlers)
		g.Go(func() error { return srv.Run(gctx) })
	}

	debug.Section("Running")
	return g.Wait()
}

func newRTC(cfg *config.Config, clock clockwork.Clock) (rtc.Clock, func(), error) {
	if cfg.Defaults.MockGPIO || cfg.RTC.Type == "system" {
		debug.Value("RTC", "system clock")
		return rtc.NewSystem(clock), func() {}, nil
	}
	dev, err := rtc.OpenDS1307(cfg.RTC.I2CBus, cfg.RTC.Address)
	if err != nil {
		return nil, nil, err
	}
	debug.Value("RTC", fmt.Sprintf("ds1307 @0x%02x", cfg.RTC.Address))
	return dev, func() { _ = dev.Close() }, nil
}

// newTransport opens the UART, or the console in mock mode where the link
// is reported as always connected.
func newTransport(cfg *config.Config, g gpio.Driver) (*serial.Port, error) {
	if cfg.Defaults.MockGPIO {
		if m, ok := g.(*gpio.MockDriver); ok {
			m.SetInput(cfg.Link.SensePin, gpio.High)
		}
		debug.Value("Serial", "console")
		return serial.Console(), nil
	}
	debug.Value("Serial", fmt.Sprintf("%s @%d", cfg.Serial.Device, cfg.Serial.Baud))
	return serial.OpenUART(cfg.Serial.Device, cfg.Serial.Baud)
}

// seedSchedules builds the schedule set from the config's boot entries.
func seedSchedules(entries []string) (*schedule.Set, error) {
	set := schedule.NewSet()
	for _, s := range entries {
		e, err := schedule.ParseEntry(s)
		if err != nil {
			return nil, fmt.Errorf("config schedules: %w", err)
		}
		set.Add(e)
	}
	return set, nil
}

// applyDebugOverride sets the debug level from the CLI; -1 keeps the config value.
func applyDebugOverride(cfg *config.Config, level int) error {
	if level == -1 {
		return nil
	}
	if level < 0 || level > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", level)
	}
	cfg.Defaults.DebugLevel = level
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
