package main

import (
	"fmt"

	"github.com/kbukum/relay/config"
	"github.com/kbukum/relay/observability"
	"github.com/kbukum/relay/status"
	"github.com/kbukum/relay/validation"
	"github.com/kbukum/relay/version"
)

const serviceName = "screenlight"

// Config is the screenlight configuration. It is loaded from config.yml and
// the environment (CAPTURE_FPS sets capture.fps), then overridden by flags.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`
	Zones     ZonesConfig     `yaml:"zones" mapstructure:"zones"`
	Serial    SerialConfig    `yaml:"serial" mapstructure:"serial"`
	Status    status.Config   `yaml:"status" mapstructure:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// CaptureConfig controls the frame source.
type CaptureConfig struct {
	Width   int    `yaml:"width" mapstructure:"width" validate:"gt=0,lte=7680"`
	Height  int    `yaml:"height" mapstructure:"height" validate:"gt=0,lte=4320"`
	FPS     int    `yaml:"fps" mapstructure:"fps" validate:"gt=0,lte=240"`
	Frames  int    `yaml:"frames" mapstructure:"frames" validate:"gte=0"` // 0 = until stopped
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"oneof=gradient bars pulse"`
}

// ZonesConfig controls how frames are reduced to LED colours.
type ZonesConfig struct {
	LEDs          int     `yaml:"leds" mapstructure:"leds" validate:"gte=4,lte=65536"`
	Brightness    float64 `yaml:"brightness" mapstructure:"brightness" validate:"gte=0,lte=1"`
	SampleWidth   int     `yaml:"sample_width" mapstructure:"sample_width" validate:"gte=8"`
	SampleHeight  int     `yaml:"sample_height" mapstructure:"sample_height" validate:"gte=8"`
	SkipUnchanged bool    `yaml:"skip_unchanged" mapstructure:"skip_unchanged"`
}

// SerialConfig names the output device. "-" writes to stdout. Baud paces
// writes to the link speed.
type SerialConfig struct {
	Device string `yaml:"device" mapstructure:"device" validate:"required"`
	Baud   int    `yaml:"baud" mapstructure:"baud" validate:"gte=0"` // 0 = unpaced
}

// TelemetryConfig enables OTLP export of stage spans and metrics.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	if c.Version == "" {
		c.Version = version.Short()
	}
	c.ServiceConfig.ApplyDefaults()

	if c.Capture.Width == 0 {
		c.Capture.Width = 640
	}
	if c.Capture.Height == 0 {
		c.Capture.Height = 360
	}
	if c.Capture.FPS == 0 {
		c.Capture.FPS = 30
	}
	if c.Capture.Pattern == "" {
		c.Capture.Pattern = "gradient"
	}
	if c.Zones.LEDs == 0 {
		c.Zones.LEDs = 60
	}
	if c.Zones.Brightness == 0 {
		c.Zones.Brightness = 1
	}
	if c.Zones.SampleWidth == 0 {
		c.Zones.SampleWidth = 64
	}
	if c.Zones.SampleHeight == 0 {
		c.Zones.SampleHeight = 36
	}
	if c.Serial.Device == "" {
		c.Serial.Device = stdoutDevice
	}
	c.Status.ApplyDefaults()

	defaults := observability.DefaultTracerConfig(c.Name)
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = defaults.Endpoint
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = defaults.SampleRate
	}
}

// Validate checks the base service fields, every tagged field, and the
// status server address.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("config.status: %w", err)
	}
	return nil
}

func (c *Config) tracerConfig() *observability.TracerConfig {
	return &observability.TracerConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

func (c *Config) meterConfig() *observability.MeterConfig {
	cfg := observability.DefaultMeterConfig(c.Name)
	cfg.ServiceVersion = c.Version
	cfg.Environment = c.Environment
	cfg.Endpoint = c.Telemetry.Endpoint
	cfg.Insecure = c.Telemetry.Insecure
	return &cfg
}
