// Command screenlight drives an Adalight LED strip from the colours along
// the edges of a captured screen. Frames flow through three pipeline
// stages: capture, zones and serial.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/kbukum/relay/config"
	"github.com/kbukum/relay/logger"
	"github.com/kbukum/relay/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    serviceName,
		Usage:   "drive an LED strip from the colours at the screen edges",
		Version: version.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config.yml"},
			&cli.StringFlag{Name: "env-file", Usage: "path to a .env file"},
			&cli.IntFlag{Name: "leds", Aliases: []string{"n"}, Usage: "number of LEDs on the strip"},
			&cli.IntFlag{Name: "fps", Usage: "capture frames per second"},
			&cli.IntFlag{Name: "frames", Usage: "stop after this many frames (0 runs until interrupted)"},
			&cli.IntFlag{Name: "width", Usage: "capture width in pixels"},
			&cli.IntFlag{Name: "height", Usage: "capture height in pixels"},
			&cli.StringFlag{Name: "pattern", Usage: "test pattern: gradient, bars or pulse"},
			&cli.Float64Flag{Name: "brightness", Usage: "LED brightness from 0 to 1"},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "serial device path, - for stdout"},
			&cli.StringFlag{Name: "status-addr", Usage: "serve /healthz and /stages on this address"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "skip-unchanged", Usage: "drop LED frames identical to the previous one"},
			&cli.BoolFlag{Name: "telemetry", Usage: "export spans and metrics over OTLP"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	// Logs written while loading the config follow LOG_LEVEL and LOG_FORMAT.
	logger.SetGlobalLogger(logger.NewFromEnv(serviceName))

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger.Init(&cfg.Logging)

	runID := uuid.NewString()
	ctx, stop := signal.NotifyContext(logger.ContextWithRunID(c.Context, runID), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithContext(ctx)
	log.Info("starting", logger.Fields("version", cfg.Version, "environment", cfg.Environment))

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// loadConfig reads config.yml and the environment, applies flag overrides,
// then fills defaults and validates.
func loadConfig(c *cli.Context) (*Config, error) {
	var opts []config.LoaderOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path := c.String("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}

	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *Config) {
	if c.IsSet("leds") {
		cfg.Zones.LEDs = c.Int("leds")
	}
	if c.IsSet("fps") {
		cfg.Capture.FPS = c.Int("fps")
	}
	if c.IsSet("frames") {
		cfg.Capture.Frames = c.Int("frames")
	}
	if c.IsSet("width") {
		cfg.Capture.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Capture.Height = c.Int("height")
	}
	if c.IsSet("pattern") {
		cfg.Capture.Pattern = c.String("pattern")
	}
	if c.IsSet("brightness") {
		cfg.Zones.Brightness = c.Float64("brightness")
	}
	if c.IsSet("device") {
		cfg.Serial.Device = c.String("device")
	}
	if c.IsSet("status-addr") {
		cfg.Status.Addr = c.String("status-addr")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("skip-unchanged") {
		cfg.Zones.SkipUnchanged = c.Bool("skip-unchanged")
	}
	if c.IsSet("telemetry") {
		cfg.Telemetry.Enabled = c.Bool("telemetry")
	}
}
