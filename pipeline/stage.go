package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/errors"
	"github.com/kbukum/relay/logger"
	"github.com/kbukum/relay/mailbox"
	"github.com/kbukum/relay/observability"
)

// SourceFunc produces the output sequence of a Source stage.
type SourceFunc[Out any] func(ctx context.Context) (Iterator[Out], error)

// TransformFunc maps the input sequence of a Transform stage to its output
// sequence.
type TransformFunc[In, Out any] func(ctx context.Context, in Iterator[In]) (Iterator[Out], error)

// SinkFunc consumes the input sequence of a Sink stage.
type SinkFunc[In any] func(ctx context.Context, in Iterator[In]) error

// Shape is the kind of unit of work a stage runs, fixed by which channels
// are bound.
type Shape int

const (
	ShapeSource Shape = iota
	ShapeTransform
	ShapeSink
)

func (s Shape) String() string {
	switch s {
	case ShapeSource:
		return "source"
	case ShapeTransform:
		return "transform"
	case ShapeSink:
		return "sink"
	default:
		return "unknown"
	}
}

// State is the lifecycle position of a stage. Completed and Failed are
// terminal.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNoChannels rejects a stage built without any channel.
	ErrNoChannels = errors.ContractViolation("stage needs an input or an output channel")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New(errors.ErrCodeAlreadyStarted, "stage already started")
)

// StageInfo is a point-in-time view of a stage.
type StageInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Shape      string    `json:"shape"`
	State      string    `json:"state"`
	ItemsIn    int64     `json:"items_in"`
	ItemsOut   int64     `json:"items_out"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Stage runs one unit of work exactly once on its own goroutine, wired to
// the channels it was built with. Whatever way the unit of work ends, the
// stage shuts its channels down gracefully before the goroutine exits, so
// neighbouring stages unblock and finish.
//
// A failure is captured, never returned across goroutines: read it with Err
// after Join.
type Stage struct {
	id      string
	name    string
	shape   Shape
	log     *logger.Logger
	metrics *observability.StageMetrics

	body     func(ctx context.Context) error
	shutdown func(immediate bool)

	started  atomic.Bool
	state    atomic.Int32
	itemsIn  atomic.Int64
	itemsOut atomic.Int64
	done     chan struct{}
	err      error // written once before done is closed

	mu         sync.Mutex
	startedAt  time.Time
	finishedAt time.Time
}

var _ component.Component = (*Stage)(nil)

// NewSource builds a stage that forwards the sequence produced by fn into out.
func NewSource[Out any](fn SourceFunc[Out], out *mailbox.Channel[Out], opts ...Option) (*Stage, error) {
	if out == nil {
		return nil, ErrNoChannels
	}
	if fn == nil {
		return nil, errors.ContractViolation("source stage needs a unit of work")
	}
	s := newStage(ShapeSource, opts)
	s.shutdown = out.Shutdown
	s.body = func(ctx context.Context) error {
		seq, err := fn(ctx)
		if err != nil {
			return errors.CollaboratorFailure(s.name, err)
		}
		return forward(ctx, s, seq, out)
	}
	return s, nil
}

// NewTransform builds a stage that feeds the items of in to fn and forwards
// the sequence it returns into out.
func NewTransform[In, Out any](fn TransformFunc[In, Out], in *mailbox.Channel[In], out *mailbox.Channel[Out], opts ...Option) (*Stage, error) {
	if in == nil && out == nil {
		return nil, ErrNoChannels
	}
	if in == nil || out == nil {
		return nil, errors.ContractViolation("transform stage needs both an input and an output channel")
	}
	if fn == nil {
		return nil, errors.ContractViolation("transform stage needs a unit of work")
	}
	s := newStage(ShapeTransform, opts)
	s.shutdown = func(immediate bool) {
		in.Shutdown(immediate)
		out.Shutdown(immediate)
	}
	s.body = func(ctx context.Context) error {
		seq, err := fn(ctx, countInput(s, in))
		if err != nil {
			return errors.CollaboratorFailure(s.name, err)
		}
		return forward(ctx, s, seq, out)
	}
	return s, nil
}

// NewSink builds a stage that hands the items of in to fn.
func NewSink[In any](fn SinkFunc[In], in *mailbox.Channel[In], opts ...Option) (*Stage, error) {
	if in == nil {
		return nil, ErrNoChannels
	}
	if fn == nil {
		return nil, errors.ContractViolation("sink stage needs a unit of work")
	}
	s := newStage(ShapeSink, opts)
	s.shutdown = in.Shutdown
	s.body = func(ctx context.Context) error {
		items := countInput(s, in)
		defer items.Close()
		if err := fn(ctx, items); err != nil {
			return errors.CollaboratorFailure(s.name, err)
		}
		return nil
	}
	return s, nil
}

func newStage(shape Shape, opts []Option) *Stage {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.NewString()
	if o.name == "" {
		o.name = shape.String() + "-" + id[:8]
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}
	return &Stage{
		id:      id,
		name:    o.name,
		shape:   shape,
		metrics: o.metrics,
		log: o.log.WithComponent("pipeline").WithFields(logger.Fields(
			logger.FieldStage, o.name,
			logger.FieldStageID, id,
			logger.FieldShape, shape.String(),
		)),
		done: make(chan struct{}),
	}
}

// ID returns the stage's unique ID.
func (s *Stage) ID() string { return s.id }

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Shape returns the stage shape.
func (s *Stage) Shape() Shape { return s.shape }

// State returns the current lifecycle state.
func (s *Stage) State() State { return State(s.state.Load()) }

// Start launches the stage goroutine. It may be called once; later calls
// return ErrAlreadyStarted.
//
// When ctx is done the stage shuts its channels down immediately. ctx is
// also handed to the unit of work.
func (s *Stage) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("stage %s: %w", s.name, ErrAlreadyStarted)
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.state.Store(int32(StateRunning))

	stop := context.AfterFunc(ctx, func() { s.shutdown(true) })
	go func() {
		defer stop()
		s.run(ctx)
	}()
	return nil
}

// Join blocks until the stage goroutine has exited. It returns at once for
// a stage that was never started.
func (s *Stage) Join() {
	if !s.started.Load() {
		return
	}
	<-s.done
}

// Done is closed when the stage goroutine exits.
func (s *Stage) Done() <-chan struct{} { return s.done }

// Err returns the captured failure. It is nil until the stage has finished.
func (s *Stage) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Shutdown shuts down every channel bound to the stage. The unit of work
// sees its input end or its output reject, and the stage finishes.
func (s *Stage) Shutdown(immediate bool) {
	s.shutdown(immediate)
}

// Stop shuts the stage's channels down gracefully and waits for it to
// finish or for ctx to end.
func (s *Stage) Stop(ctx context.Context) error {
	s.Shutdown(false)
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports a failed stage as unhealthy and a stage that has not been
// started as degraded.
func (s *Stage) Health(context.Context) component.Health {
	h := component.Health{Name: s.name, Status: component.StatusHealthy}
	switch s.State() {
	case StateNotStarted:
		h.Status = component.StatusDegraded
		h.Message = "not started"
	case StateFailed:
		h.Status = component.StatusUnhealthy
		if err := s.Err(); err != nil {
			h.Message = err.Error()
		}
	}
	return h
}

// Info returns a snapshot of the stage.
func (s *Stage) Info() StageInfo {
	s.mu.Lock()
	startedAt, finishedAt := s.startedAt, s.finishedAt
	s.mu.Unlock()

	info := StageInfo{
		ID:         s.id,
		Name:       s.name,
		Shape:      s.shape.String(),
		State:      s.State().String(),
		ItemsIn:    s.itemsIn.Load(),
		ItemsOut:   s.itemsOut.Load(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if err := s.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

func (s *Stage) run(ctx context.Context) {
	defer close(s.done)

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanStageRun, trace.WithAttributes(
		attribute.String(observability.AttrStage, s.name),
		attribute.String(observability.AttrStageID, s.id),
		attribute.String(observability.AttrShape, s.shape.String()),
	))
	s.metrics.RecordStart(ctx, s.name, s.shape.String())
	log := s.log.WithContext(ctx)
	log.Debug("stage started")

	err := s.execute(ctx)

	elapsed := time.Since(start)
	status := StateCompleted
	if err != nil {
		status = StateFailed
	}
	in, out := s.itemsIn.Load(), s.itemsOut.Load()

	span.SetAttributes(
		attribute.Int64(observability.AttrItemsIn, in),
		attribute.Int64(observability.AttrItemsOut, out),
		attribute.String(observability.AttrStatus, status.String()),
	)
	observability.EndSpan(span, err)
	s.metrics.RecordEnd(ctx, s.name, s.shape.String(), status.String(), in, out, elapsed)

	fields := logger.Fields(
		logger.FieldStatus, status.String(),
		logger.FieldReceived, in,
		logger.FieldEmitted, out,
		logger.FieldDuration, elapsed.Milliseconds(),
	)
	if err != nil {
		log.WithError(err).Error("stage failed", fields)
	} else {
		log.Info("stage completed", fields)
	}

	s.mu.Lock()
	s.finishedAt = time.Now()
	s.mu.Unlock()
	s.err = err
	s.state.Store(int32(status))
}

// execute runs the unit of work, turning a panic into a collaborator
// failure. The channels are shut down on every path.
func (s *Stage) execute(ctx context.Context) (err error) {
	defer s.shutdown(false)
	defer func() {
		if r := recover(); r != nil {
			err = errors.CollaboratorFailure(s.name, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.body(ctx)
}

// countInput returns the item sequence of in, counting every item taken.
func countInput[T any](s *Stage, in *mailbox.Channel[T]) Iterator[T] {
	return &inputCounter[T]{Iterator: in.Iter(), taken: &s.itemsIn}
}

type inputCounter[T any] struct {
	Iterator[T]
	taken *atomic.Int64
}

func (c *inputCounter[T]) Next(ctx context.Context) (T, bool, error) {
	val, ok, err := c.Iterator.Next(ctx)
	if ok {
		c.taken.Add(1)
	}
	return val, ok, err
}

// outputCounter counts delivered items. PutMany only pulls again after a
// successful Put, so the previously pulled item is known delivered at the
// next pull.
type outputCounter[T any] struct {
	Iterator[T]
	pending   bool
	delivered *atomic.Int64
}

func (c *outputCounter[T]) Next(ctx context.Context) (T, bool, error) {
	if c.pending {
		c.delivered.Add(1)
		c.pending = false
	}
	val, ok, err := c.Iterator.Next(ctx)
	c.pending = ok && err == nil
	return val, ok, err
}

// forward puts every item of seq into out and closes seq on the way out,
// however forwarding ends.
func forward[T any](ctx context.Context, s *Stage, seq Iterator[T], out *mailbox.Channel[T]) (err error) {
	if isNil(seq) {
		return errors.ContractViolation(fmt.Sprintf("%s stage %s returned no sequence", s.shape, s.name))
	}
	defer func() {
		if cerr := seq.Close(); cerr != nil && err == nil {
			err = errors.CollaboratorFailure(s.name, cerr)
		}
	}()

	rest, err := out.PutMany(ctx, &outputCounter[T]{Iterator: seq, delivered: &s.itemsOut})
	if err != nil {
		return errors.CollaboratorFailure(s.name, err)
	}
	if _, undelivered, _ := rest.Next(ctx); undelivered {
		s.log.Debug("output closed before the sequence ended")
	}
	return nil
}

// isNil reports whether seq is nil, including a nil pointer, map, slice,
// func or chan wrapped in the interface.
func isNil[T any](seq Iterator[T]) bool {
	if seq == nil {
		return true
	}
	v := reflect.ValueOf(seq)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
