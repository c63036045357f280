package mailbox

import (
	"context"
	"sync"
)

// State is the shutdown level of a Channel. It only ever increases.
type State int32

const (
	// StateOpen accepts puts and gets.
	StateOpen State = iota
	// StateDraining rejects puts; a resident item may still be taken.
	StateDraining
	// StateClosed rejects everything; the slot is empty.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is a thread-safe single-slot handoff point between one producer
// role and one consumer role.
//
// All fields are guarded by mu. Blocked getters park on notEmpty and blocked
// putters on notFull, so a slot change can wake exactly one waiter of the
// role that is now able to proceed.
type Channel[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond

	item    T
	hasItem bool
	state   State
}

// New returns an empty, open channel.
func New[T any]() *Channel[T] {
	c := &Channel[T]{}
	c.notEmpty.L = &c.mu
	c.notFull.L = &c.mu
	return c
}

// Get blocks until an item is available or the channel is shut down with an
// empty slot. ok is false only in the second case.
//
// A resident item is always handed out, even after a graceful shutdown.
func (c *Channel[T]) Get() (item T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.hasItem {
			item = c.take()
			c.notFull.Signal()
			return item, true
		}
		if c.state != StateOpen {
			return item, false
		}
		c.notEmpty.Wait()
	}
}

// Put blocks until the slot is free or the channel is shut down. It returns
// false, without depositing, once the channel is no longer open.
func (c *Channel[T]) Put(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.state != StateOpen {
			return false
		}
		if !c.hasItem {
			c.item = item
			c.hasItem = true
			c.notEmpty.Signal()
			return true
		}
		c.notFull.Wait()
	}
}

// Shutdown raises the shutdown level and wakes every blocked Get and Put.
//
// A graceful shutdown only moves an open channel to StateDraining. An
// immediate shutdown moves any channel to StateClosed and discards the
// resident item. Repeated calls are no-ops once the level is reached.
func (c *Channel[T]) Shutdown(immediate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case immediate && c.state != StateClosed:
		c.state = StateClosed
		if c.hasItem {
			c.take()
		}
	case !immediate && c.state == StateOpen:
		c.state = StateDraining
	default:
		return
	}
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

// ShutdownOnDone shuts the channel down when ctx is done. Calling the
// returned stop function detaches it; it reports whether the shutdown was
// still pending.
func (c *Channel[T]) ShutdownOnDone(ctx context.Context, immediate bool) (stop func() bool) {
	return context.AfterFunc(ctx, func() { c.Shutdown(immediate) })
}

// State returns the current shutdown level.
func (c *Channel[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// take empties the slot. mu must be held and hasItem must be true.
func (c *Channel[T]) take() T {
	item := c.item
	var zero T
	c.item = zero
	c.hasItem = false
	return item
}
