package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/errors"
	"github.com/kbukum/relay/logger"
)

// Group owns the stages of one linear pipeline: it starts them together,
// joins them, and collects their failures.
type Group struct {
	name    string
	stages  []*Stage
	started atomic.Bool
	done    chan struct{}
}

var _ component.Component = (*Group)(nil)

// NewGroup creates a group over stages, listed from source to sink.
func NewGroup(name string, stages ...*Stage) *Group {
	return &Group{name: name, stages: stages, done: make(chan struct{})}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Stages returns the stages of the group in pipeline order.
func (g *Group) Stages() []*Stage { return g.stages }

// Start starts every stage, sink first so that no producer runs ahead of
// a consumer that is not yet live. If a stage cannot start, the stages
// already started are shut down immediately.
func (g *Group) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return errors.AlreadyStarted(g.name)
	}

	for i := len(g.stages) - 1; i >= 0; i-- {
		if err := g.stages[i].Start(ctx); err != nil {
			for _, s := range g.stages[i+1:] {
				s.Shutdown(true)
			}
			go g.joinAll()
			return fmt.Errorf("starting pipeline %s: %w", g.name, err)
		}
	}

	logger.Info("pipeline started", logger.Fields(
		logger.FieldComponent, g.name,
		"stages", len(g.stages),
	))

	go g.joinAll()
	return nil
}

func (g *Group) joinAll() {
	defer close(g.done)
	for _, s := range g.stages {
		s.Join()
	}
}

// Done is closed once every stage of a started group has finished.
func (g *Group) Done() <-chan struct{} { return g.done }

// Wait joins every stage and returns all captured failures, or nil when
// every stage completed.
func (g *Group) Wait() error {
	var result *multierror.Error
	for _, s := range g.stages {
		s.Join()
		if err := s.Err(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Shutdown shuts every stage's channels down.
func (g *Group) Shutdown(immediate bool) {
	for _, s := range g.stages {
		s.Shutdown(immediate)
	}
}

// Stop shuts the pipeline down gracefully and waits for its stages to
// finish or for ctx to end. Stage failures are reported by Wait, not Stop.
func (g *Group) Stop(ctx context.Context) error {
	g.Shutdown(false)
	if !g.started.Load() {
		return nil
	}
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health folds the health of every stage. Failed stages are named in the
// message.
func (g *Group) Health(ctx context.Context) component.Health {
	healths := make([]component.Health, 0, len(g.stages))
	var failed []string
	for _, s := range g.stages {
		h := s.Health(ctx)
		healths = append(healths, h)
		if h.Status == component.StatusUnhealthy {
			failed = append(failed, s.Name())
		}
	}

	h := component.Health{Name: g.name, Status: component.Overall(healths)}
	switch {
	case len(failed) > 0:
		h.Message = "failed stages: " + strings.Join(failed, ", ")
	case h.Status == component.StatusDegraded:
		h.Message = "not started"
	}
	return h
}

// Snapshot returns the current info of every stage in pipeline order.
func (g *Group) Snapshot() []StageInfo {
	infos := make([]StageInfo, 0, len(g.stages))
	for _, s := range g.stages {
		infos = append(infos, s.Info())
	}
	return infos
}
