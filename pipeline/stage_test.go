package pipeline

import (
	"context"
	stderrors "errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/errors"
	"github.com/kbukum/relay/logger"
	"github.com/kbukum/relay/mailbox"
)

const testTimeout = 2 * time.Second

var quiet = WithLogger(logger.Nop())

func joinAll(t *testing.T, stages ...*Stage) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range stages {
			s.Join()
		}
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out joining stages")
	}
}

func sliceSource(items ...int) SourceFunc[int] {
	return func(ctx context.Context) (Iterator[int], error) {
		return FromSlice(items), nil
	}
}

// collector is a sink unit of work that records every item it receives.
type collector struct {
	mu    sync.Mutex
	items []int
}

func (c *collector) sink(ctx context.Context, in Iterator[int]) error {
	return ForEach(ctx, in, func(_ context.Context, n int) error {
		c.mu.Lock()
		c.items = append(c.items, n)
		c.mu.Unlock()
		return nil
	})
}

func (c *collector) got() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.items...)
}

// mustStage fails the test when a stage constructor reports an error. It is
// used as mustStage(t)(NewSource(...)).
func mustStage(t *testing.T) func(*Stage, error) *Stage {
	return func(s *Stage, err error) *Stage {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected construction error: %v", err)
		}
		return s
	}
}

func startAll(t *testing.T, stages ...*Stage) {
	t.Helper()
	for _, s := range stages {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start %s: %v", s.Name(), err)
		}
	}
}

func TestThreeStagePipelineDoublesEveryItem(t *testing.T) {
	nums, doubled := mailbox.New[int](), mailbox.New[int]()
	var out collector

	src := mustStage(t)(NewSource(sliceSource(1, 2, 3, 4, 5), nums, WithName("numbers"), quiet))
	double := mustStage(t)(NewTransform(func(ctx context.Context, in Iterator[int]) (Iterator[int], error) {
		return Map(in, func(_ context.Context, n int) (int, error) { return n * 2, nil }), nil
	}, nums, doubled, WithName("double"), quiet))
	sink := mustStage(t)(NewSink(out.sink, doubled, WithName("collect"), quiet))

	startAll(t, sink, double, src)
	joinAll(t, src, double, sink)

	if got, want := out.got(), []int{2, 4, 6, 8, 10}; !intSliceEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, s := range []*Stage{src, double, sink} {
		if err := s.Err(); err != nil {
			t.Errorf("stage %s: unexpected failure %v", s.Name(), err)
		}
		if s.State() != StateCompleted {
			t.Errorf("stage %s: expected completed, got %s", s.Name(), s.State())
		}
	}

	if info := src.Info(); info.ItemsOut != 5 || info.ItemsIn != 0 {
		t.Errorf("source: expected 0 in / 5 out, got %d / %d", info.ItemsIn, info.ItemsOut)
	}
	if info := double.Info(); info.ItemsIn != 5 || info.ItemsOut != 5 {
		t.Errorf("transform: expected 5 in / 5 out, got %d / %d", info.ItemsIn, info.ItemsOut)
	}
	if info := sink.Info(); info.ItemsIn != 5 {
		t.Errorf("sink: expected 5 in, got %d", info.ItemsIn)
	}
	if nums.State() == mailbox.StateOpen || doubled.State() == mailbox.StateOpen {
		t.Error("expected every channel to be shut down after the run")
	}
}

func TestTransformFailureCascades(t *testing.T) {
	nums, doubled := mailbox.New[int](), mailbox.New[int]()
	var out collector
	bad := stderrors.New("cannot double 3")

	src := mustStage(t)(NewSource(sliceSource(1, 2, 3, 4, 5), nums, quiet))
	double := mustStage(t)(NewTransform(func(ctx context.Context, in Iterator[int]) (Iterator[int], error) {
		return Map(in, func(_ context.Context, n int) (int, error) {
			if n == 3 {
				return 0, bad
			}
			return n * 2, nil
		}), nil
	}, nums, doubled, WithName("double"), quiet))
	sink := mustStage(t)(NewSink(out.sink, doubled, quiet))

	startAll(t, sink, double, src)
	joinAll(t, src, double, sink)

	err := double.Err()
	if err == nil {
		t.Fatal("expected transform failure")
	}
	if !errors.IsCode(err, errors.ErrCodeCollaboratorFailure) {
		t.Errorf("expected collaborator failure, got %v", err)
	}
	if !stderrors.Is(err, bad) {
		t.Errorf("expected failure to wrap the cause, got %v", err)
	}
	if double.State() != StateFailed {
		t.Errorf("expected failed, got %s", double.State())
	}

	if err := src.Err(); err != nil {
		t.Errorf("expected source to end without failure, got %v", err)
	}
	if err := sink.Err(); err != nil {
		t.Errorf("expected sink to end without failure, got %v", err)
	}
	if got, want := out.got(), []int{2, 4}; !intSliceEqual(got, want) {
		t.Errorf("expected sink to see %v, got %v", want, got)
	}
}

func TestConstructionWithoutChannelsIsRejected(t *testing.T) {
	source := func(ctx context.Context) (Iterator[int], error) { return Empty[int](), nil }
	transform := func(ctx context.Context, in Iterator[int]) (Iterator[int], error) { return in, nil }
	sink := func(ctx context.Context, in Iterator[int]) error { return nil }

	tests := []struct {
		name  string
		build func() (*Stage, error)
	}{
		{"source", func() (*Stage, error) { return NewSource[int](source, nil) }},
		{"transform", func() (*Stage, error) { return NewTransform[int, int](transform, nil, nil) }},
		{"sink", func() (*Stage, error) { return NewSink[int](sink, nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.build()
			if s != nil {
				t.Error("expected no stage")
			}
			if !stderrors.Is(err, ErrNoChannels) {
				t.Errorf("expected ErrNoChannels, got %v", err)
			}
			if !errors.IsCode(err, errors.ErrCodeContractViolation) {
				t.Errorf("expected contract violation, got %v", err)
			}
		})
	}
}

func TestConstructionRejectsMiswiring(t *testing.T) {
	ch := mailbox.New[int]()
	transform := func(ctx context.Context, in Iterator[int]) (Iterator[int], error) { return in, nil }

	tests := []struct {
		name  string
		build func() (*Stage, error)
	}{
		{"transform without output", func() (*Stage, error) { return NewTransform[int, int](transform, ch, nil) }},
		{"transform without input", func() (*Stage, error) { return NewTransform[int, int](transform, nil, ch) }},
		{"nil source", func() (*Stage, error) { return NewSource[int](nil, ch) }},
		{"nil transform", func() (*Stage, error) { return NewTransform[int, int](nil, ch, mailbox.New[int]()) }},
		{"nil sink", func() (*Stage, error) { return NewSink[int](nil, ch) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			if !errors.IsCode(err, errors.ErrCodeContractViolation) {
				t.Errorf("expected contract violation, got %v", err)
			}
		})
	}
}

func TestSourceReturningNoSequenceIsContractViolation(t *testing.T) {
	var typedNil *sliceIter[int]
	tests := []struct {
		name string
		seq  Iterator[int]
	}{
		{"nil interface", nil},
		{"nil pointer", typedNil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := mailbox.New[int]()
			var out collector
			src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
				return tt.seq, nil
			}, ch, quiet))
			sink := mustStage(t)(NewSink(out.sink, ch, quiet))

			startAll(t, sink, src)
			joinAll(t, src, sink)

			if !errors.IsCode(src.Err(), errors.ErrCodeContractViolation) {
				t.Errorf("expected contract violation, got %v", src.Err())
			}
			if sink.Err() != nil {
				t.Errorf("expected sink to end cleanly, got %v", sink.Err())
			}
		})
	}
}

func TestUnitOfWorkErrorIsCaptured(t *testing.T) {
	ch := mailbox.New[int]()
	cause := stderrors.New("capture device missing")
	src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return nil, cause
	}, ch, quiet))

	startAll(t, src)
	joinAll(t, src)

	if !stderrors.Is(src.Err(), cause) {
		t.Errorf("expected captured cause, got %v", src.Err())
	}
	if ch.State() != mailbox.StateDraining {
		t.Errorf("expected output shut down gracefully, got %s", ch.State())
	}
}

func TestPanicIsRecoveredAsFailure(t *testing.T) {
	ch := mailbox.New[int]()
	src := mustStage(t)(NewSource(sliceSource(1, 2, 3), ch, quiet))
	sink := mustStage(t)(NewSink(func(ctx context.Context, in Iterator[int]) error {
		in.Next(ctx)
		panic("serial write exploded")
	}, ch, WithName("serial"), quiet))

	startAll(t, sink, src)
	joinAll(t, src, sink)

	err := sink.Err()
	if !errors.IsCode(err, errors.ErrCodeCollaboratorFailure) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "serial write exploded") {
		t.Errorf("expected panic value in error, got %v", err)
	}
	if src.Err() != nil {
		t.Errorf("expected source to end cleanly, got %v", src.Err())
	}
}

func counter(cleaned *bool) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		defer func() { *cleaned = true }()
		for i := 1; ; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
}

func TestEarlySinkExitStopsGenerator(t *testing.T) {
	ch := mailbox.New[int]()
	var cleaned bool
	src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return FromSeq(counter(&cleaned)), nil
	}, ch, quiet))

	var got []int
	sink := mustStage(t)(NewSink(func(ctx context.Context, in Iterator[int]) error {
		for len(got) < 2 {
			v, ok, err := in.Next(ctx)
			if err != nil || !ok {
				return err
			}
			got = append(got, v)
		}
		return nil
	}, ch, quiet))

	startAll(t, sink, src)
	joinAll(t, src, sink)

	if !intSliceEqual(got, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}
	if src.Err() != nil {
		t.Errorf("expected source to end cleanly, got %v", src.Err())
	}
	if !cleaned {
		t.Error("expected generator cleanup to run when the output closed")
	}
}

func TestStartTwice(t *testing.T) {
	ch := mailbox.New[int]()
	src := mustStage(t)(NewSource(sliceSource(), ch, quiet))
	startAll(t, src)
	defer joinAll(t, src)

	err := src.Start(context.Background())
	if !stderrors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if !errors.IsCode(err, errors.ErrCodeAlreadyStarted) {
		t.Errorf("expected ALREADY_STARTED code, got %v", err)
	}
}

func TestContextCancelShutsStageDown(t *testing.T) {
	ch := mailbox.New[int]()
	var out collector
	sink := mustStage(t)(NewSink(out.sink, ch, quiet))

	ctx, cancel := context.WithCancel(context.Background())
	if err := sink.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	joinAll(t, sink)

	if sink.Err() != nil {
		t.Errorf("expected closed input to end the sink cleanly, got %v", sink.Err())
	}
	if ch.State() != mailbox.StateClosed {
		t.Errorf("expected immediate shutdown on cancel, got %s", ch.State())
	}
}

func TestStopUnblocksProducer(t *testing.T) {
	ch := mailbox.New[int]()
	var cleaned bool
	src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return FromSeq(counter(&cleaned)), nil
	}, ch, quiet))
	startAll(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := src.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if src.State() != StateCompleted {
		t.Errorf("expected completed, got %s", src.State())
	}
	if !cleaned {
		t.Error("expected generator cleanup")
	}
}

func TestStopBeforeStart(t *testing.T) {
	ch := mailbox.New[int]()
	src := mustStage(t)(NewSource(sliceSource(1), ch, quiet))
	if err := src.Stop(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	src.Join()
	if src.State() != StateNotStarted {
		t.Errorf("expected not_started, got %s", src.State())
	}
}

func TestStageHealthAndInfo(t *testing.T) {
	ch := mailbox.New[int]()
	src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return nil, stderrors.New("no frames")
	}, ch, WithName("capture"), quiet))

	if h := src.Health(context.Background()); h.Status != component.StatusDegraded {
		t.Errorf("expected degraded before start, got %s", h.Status)
	}
	if src.ID() == "" || src.Name() != "capture" || src.Shape() != ShapeSource {
		t.Errorf("unexpected identity %q %q %s", src.ID(), src.Name(), src.Shape())
	}

	startAll(t, src)
	joinAll(t, src)

	h := src.Health(context.Background())
	if h.Status != component.StatusUnhealthy || !strings.Contains(h.Message, "no frames") {
		t.Errorf("expected unhealthy with cause, got %+v", h)
	}
	info := src.Info()
	if info.State != "failed" || info.Shape != "source" || info.Error == "" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.StartedAt.IsZero() || info.FinishedAt.Before(info.StartedAt) {
		t.Errorf("unexpected timestamps %v %v", info.StartedAt, info.FinishedAt)
	}
}

func TestDefaultNameUsesShape(t *testing.T) {
	s := mustStage(t)(NewSink(func(ctx context.Context, in Iterator[int]) error { return nil }, mailbox.New[int](), quiet))
	if !strings.HasPrefix(s.Name(), "sink-") {
		t.Errorf("expected default name to start with sink-, got %q", s.Name())
	}
}

func TestShapeAndStateStrings(t *testing.T) {
	for shape, want := range map[Shape]string{
		ShapeSource: "source", ShapeTransform: "transform", ShapeSink: "sink", Shape(7): "unknown",
	} {
		if got := shape.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	for state, want := range map[State]string{
		StateNotStarted: "not_started", StateRunning: "running", StateCompleted: "completed", StateFailed: "failed",
	} {
		if got := state.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
