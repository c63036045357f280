package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/relay/logger"
)

// Lazy is a Component whose resource is opened on first use rather than on
// Start, such as an output device that may not be plugged in yet.
//
// Start only marks the component as live; Acquire opens the resource once
// and caches a failure until the next Acquire retries it. Stop closes an
// opened resource.
type Lazy struct {
	name   string
	open   func(ctx context.Context) error
	closer func() error

	mu        sync.RWMutex
	opened    bool
	lastError error
}

// NewLazy creates a lazy component that runs open on first Acquire.
func NewLazy(name string, open func(context.Context) error) *Lazy {
	return &Lazy{name: name, open: open}
}

// WithCloser sets the function that releases the opened resource.
func (l *Lazy) WithCloser(fn func() error) *Lazy {
	l.closer = fn
	return l
}

// Name returns the component name.
func (l *Lazy) Name() string { return l.name }

// Start does nothing; the resource is opened by Acquire.
func (l *Lazy) Start(context.Context) error { return nil }

// Acquire opens the resource unless it is already open. Safe for concurrent
// use; open runs at most once per successful opening.
func (l *Lazy) Acquire(ctx context.Context) error {
	l.mu.RLock()
	if l.opened {
		l.mu.RUnlock()
		return nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if l.opened {
		return nil
	}
	if l.open == nil {
		return fmt.Errorf("no opener for component: %s", l.name)
	}

	if err := l.open(ctx); err != nil {
		l.lastError = err
		return fmt.Errorf("failed to open %s: %w", l.name, err)
	}
	l.opened = true
	l.lastError = nil

	logger.Debug("lazy component opened", logger.Fields(logger.FieldComponent, l.name))
	return nil
}

// IsOpen reports whether the resource is currently open.
func (l *Lazy) IsOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opened
}

// Stop closes the resource if it was opened.
func (l *Lazy) Stop(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.opened {
		return nil
	}
	l.opened = false
	if l.closer != nil {
		return l.closer()
	}
	return nil
}

// Health is healthy once opened, degraded before first use, and unhealthy
// after a failed open.
func (l *Lazy) Health(context.Context) Health {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch {
	case l.opened:
		return Health{Name: l.name, Status: StatusHealthy}
	case l.lastError != nil:
		return Health{Name: l.name, Status: StatusUnhealthy, Message: l.lastError.Error()}
	default:
		return Health{Name: l.name, Status: StatusDegraded, Message: "not opened yet"}
	}
}
