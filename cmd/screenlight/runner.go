package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/logger"
	"github.com/kbukum/relay/mailbox"
	"github.com/kbukum/relay/observability"
	"github.com/kbukum/relay/pipeline"
	"github.com/kbukum/relay/status"
)

// defaultShutdownGrace is how long a graceful shutdown may drain before the
// channels are shut down immediately.
const defaultShutdownGrace = 5 * time.Second

// Runner wires capture, zones and serial stages into one pipeline and runs
// it alongside the output device and the optional status server.
type Runner struct {
	cfg    *Config
	log    *logger.Logger
	reg    *component.Registry
	group  *pipeline.Group
	device *Device
	status *status.Server
	grace  time.Duration

	shutdowns []func(context.Context) error
}

// NewRunner initializes telemetry when enabled and builds the pipeline.
// Nothing runs until Run.
func NewRunner(ctx context.Context, cfg *Config, log *logger.Logger) (*Runner, error) {
	r := &Runner{
		cfg:   cfg,
		log:   log.WithComponent(serviceName),
		reg:   component.NewRegistry(),
		grace: defaultShutdownGrace,
	}

	if cfg.Telemetry.Enabled {
		if err := r.initTelemetry(ctx); err != nil {
			return nil, err
		}
	}

	metrics, err := observability.NewStageMetrics(observability.Meter(serviceName))
	if err != nil {
		return nil, err
	}
	if err := r.build(metrics); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) initTelemetry(ctx context.Context) error {
	tp, err := observability.InitTracer(ctx, r.cfg.tracerConfig())
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	r.shutdowns = append(r.shutdowns, tp.Shutdown)

	mp, err := observability.InitMeter(ctx, r.cfg.meterConfig())
	if err != nil {
		return fmt.Errorf("initializing meter: %w", err)
	}
	r.shutdowns = append(r.shutdowns, mp.Shutdown)
	return nil
}

func (r *Runner) build(metrics *observability.StageMetrics) error {
	frames := mailbox.New[Frame]()
	leds := mailbox.New[LEDFrame]()

	capture, err := pipeline.NewSource(func(ctx context.Context) (pipeline.Iterator[Frame], error) {
		frames := pipeline.FromSeq(captureFrames(ctx, r.cfg.Capture))
		return pipeline.Tap(frames, r.logProgress), nil
	}, frames, pipeline.WithName("capture"), pipeline.WithLogger(r.log), pipeline.WithMetrics(metrics))
	if err != nil {
		return err
	}

	zones, err := pipeline.NewTransform(zonesStage(r.cfg.Zones), frames, leds,
		pipeline.WithName("zones"), pipeline.WithLogger(r.log), pipeline.WithMetrics(metrics))
	if err != nil {
		return err
	}

	r.device = NewDevice(r.cfg.Serial.Device, r.cfg.Serial.Baud)
	serial, err := pipeline.NewSink(serialStage(r.device), leds,
		pipeline.WithName("serial"), pipeline.WithLogger(r.log), pipeline.WithMetrics(metrics))
	if err != nil {
		return err
	}

	r.group = pipeline.NewGroup(serviceName, capture, zones, serial)

	if err := r.reg.Register(r.device); err != nil {
		return err
	}
	if err := r.reg.Register(r.group); err != nil {
		return err
	}
	if r.cfg.Status.Enabled() {
		r.status = status.New(r.cfg.Status, r.cfg.Name, r.reg.HealthAll, r.log)
		r.status.AddPipeline(r.group)
		if err := r.reg.Register(r.status); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every component and blocks until the pipeline finishes. When
// ctx ends the pipeline drains gracefully, and after the grace period its
// channels are shut down immediately. Run returns the stage failures.
func (r *Runner) Run(ctx context.Context) error {
	defer r.shutdownTelemetry(ctx)

	// Stages must not see ctx cancellation directly, or a signal would skip
	// the graceful drain.
	if err := r.reg.StartAll(context.WithoutCancel(ctx)); err != nil {
		r.stopAll(ctx)
		return err
	}

	started := time.Now()
	r.log.Info("pipeline running", logger.Fields(
		"leds", r.cfg.Zones.LEDs,
		"fps", r.cfg.Capture.FPS,
		"device", r.cfg.Serial.Device,
	))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.group.Wait)
	g.Go(func() error {
		select {
		case <-r.group.Done():
			return nil
		case <-gctx.Done():
		}

		r.log.Info("shutting down pipeline", logger.Fields("grace", r.grace.String()))
		r.group.Shutdown(false)
		select {
		case <-r.group.Done():
		case <-time.After(r.grace):
			r.log.Warn("graceful shutdown timed out, shutting down immediately")
			r.group.Shutdown(true)
		}
		return nil
	})
	err := g.Wait()

	r.stopAll(ctx)

	fields := logger.DurationFields("run", time.Since(started))
	fields["frames_written"] = r.device.Frames()
	if err != nil {
		r.log.WithError(err).Error("pipeline failed", fields)
		return err
	}
	r.log.Info("pipeline finished", fields)
	return nil
}

// logProgress logs one captured frame per second of capture at debug level.
func (r *Runner) logProgress(_ context.Context, f Frame) error {
	if f.Seq%r.cfg.Capture.FPS == 0 {
		r.log.Debug("frame captured", logger.Fields("seq", f.Seq))
	}
	return nil
}

func (r *Runner) stopAll(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), component.DefaultStopTimeout)
	defer cancel()
	if err := r.reg.StopAll(stopCtx); err != nil {
		r.log.Warn("stopping components failed", logger.ErrorFields("stop", err))
	}
}

func (r *Runner) shutdownTelemetry(ctx context.Context) {
	if len(r.shutdowns) == 0 {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var result *multierror.Error
	for _, fn := range r.shutdowns {
		if err := fn(shutdownCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		r.log.Warn("telemetry shutdown failed", logger.ErrorFields("shutdown", err))
	}
}
