package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/errors"
	"github.com/kbukum/relay/mailbox"
)

func waitGroup(t *testing.T, g *Group) error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- g.Wait() }()
	select {
	case err := <-result:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for group")
		return nil
	}
}

func buildDoubling(t *testing.T, out *collector, failOn int) *Group {
	t.Helper()
	nums, doubled := mailbox.New[int](), mailbox.New[int]()
	src := mustStage(t)(NewSource(sliceSource(1, 2, 3, 4, 5), nums, WithName("numbers"), quiet))
	double := mustStage(t)(NewTransform(func(ctx context.Context, in Iterator[int]) (Iterator[int], error) {
		return Map(in, func(_ context.Context, n int) (int, error) {
			if n == failOn {
				return 0, stderrors.New("refusing to double")
			}
			return n * 2, nil
		}), nil
	}, nums, doubled, WithName("double"), quiet))
	sink := mustStage(t)(NewSink(out.sink, doubled, WithName("collect"), quiet))
	return NewGroup("doubling", src, double, sink)
}

func TestGroupRunsToCompletion(t *testing.T) {
	var out collector
	g := buildDoubling(t, &out, -1)

	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := waitGroup(t, g); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	<-g.Done()

	if got := out.got(); !intSliceEqual(got, []int{2, 4, 6, 8, 10}) {
		t.Errorf("expected [2 4 6 8 10], got %v", got)
	}
	if h := g.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}

	snap := g.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 stage infos, got %d", len(snap))
	}
	for i, name := range []string{"numbers", "double", "collect"} {
		if snap[i].Name != name || snap[i].State != "completed" {
			t.Errorf("expected %s completed at %d, got %+v", name, i, snap[i])
		}
	}
}

func TestGroupWaitReportsFailure(t *testing.T) {
	var out collector
	g := buildDoubling(t, &out, 3)

	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := waitGroup(t, g)
	if err == nil {
		t.Fatal("expected failure")
	}

	var merr *multierror.Error
	if !stderrors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("expected one aggregated failure, got %v", err)
	}
	if !errors.IsCode(err, errors.ErrCodeCollaboratorFailure) {
		t.Errorf("expected collaborator failure in chain, got %v", err)
	}

	h := g.Health(context.Background())
	if h.Status != component.StatusUnhealthy || !strings.Contains(h.Message, "double") {
		t.Errorf("expected unhealthy naming double, got %+v", h)
	}
}

func TestGroupWaitAggregatesEveryFailure(t *testing.T) {
	a, b := mailbox.New[int](), mailbox.New[int]()
	srcA := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return nil, stderrors.New("first")
	}, a, quiet))
	srcB := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return nil, stderrors.New("second")
	}, b, quiet))
	g := NewGroup("twin", srcA, srcB)

	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := waitGroup(t, g)
	var merr *multierror.Error
	if !stderrors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("expected two failures, got %v", err)
	}
}

func TestGroupStartTwice(t *testing.T) {
	var out collector
	g := buildDoubling(t, &out, -1)
	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer waitGroup(t, g)

	if err := g.Start(context.Background()); !errors.IsCode(err, errors.ErrCodeAlreadyStarted) {
		t.Errorf("expected ALREADY_STARTED, got %v", err)
	}
}

func TestGroupStartFailsWhenStageAlreadyRunning(t *testing.T) {
	ch := mailbox.New[int]()
	var out collector
	src := mustStage(t)(NewSource(sliceSource(1, 2), ch, quiet))
	sink := mustStage(t)(NewSink(out.sink, ch, quiet))
	startAll(t, src)

	g := NewGroup("late", src, sink)
	if err := g.Start(context.Background()); !stderrors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	select {
	case <-g.Done():
	case <-time.After(testTimeout):
		t.Fatal("expected group to finish after a failed start")
	}
}

func TestGroupStop(t *testing.T) {
	ch := mailbox.New[int]()
	var cleaned bool
	src := mustStage(t)(NewSource(func(ctx context.Context) (Iterator[int], error) {
		return FromSeq(counter(&cleaned)), nil
	}, ch, quiet))
	var out collector
	sink := mustStage(t)(NewSink(out.sink, ch, quiet))
	g := NewGroup("endless", src, sink)

	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Errorf("expected graceful stop without failures, got %v", err)
	}
	if !cleaned {
		t.Error("expected generator cleanup")
	}

	got := out.got()
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("expected consecutive items, got %v", got)
		}
	}
}

func TestGroupHealthBeforeStart(t *testing.T) {
	var out collector
	g := buildDoubling(t, &out, -1)
	h := g.Health(context.Background())
	if h.Status != component.StatusDegraded || h.Name != "doubling" {
		t.Errorf("expected degraded doubling, got %+v", h)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("expected Stop before Start to succeed, got %v", err)
	}
}
