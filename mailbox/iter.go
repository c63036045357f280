package mailbox

import "context"

// Iterator provides pull-based sequential access to a stream of values.
// Structurally compatible with pipeline.Iterator[T].
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Iter returns a sequence of the items taken from the channel. The sequence
// ends, without error, the first time Get reports the channel closed.
//
// The channel's Get does not observe ctx; cancel a blocked consumer by
// shutting the channel down (see ShutdownOnDone). Closing the iterator ends
// the sequence but leaves the channel untouched.
func (c *Channel[T]) Iter() Iterator[T] {
	return &channelIter[T]{ch: c}
}

type channelIter[T any] struct {
	ch   *Channel[T]
	done bool
}

func (it *channelIter[T]) Next(_ context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	item, ok := it.ch.Get()
	if !ok {
		it.done = true
		return zero, false, nil
	}
	return item, true, nil
}

func (it *channelIter[T]) Close() error {
	it.done = true
	return nil
}

// PutMany puts every item of items into the channel, in order.
//
// If a Put reports the channel closed, PutMany stops pulling and returns the
// undelivered work: the rejected item followed by whatever items still
// holds. If items is exhausted first, the returned sequence is empty. An
// error from items itself is returned as is.
//
// items stays owned by the caller, who must still Close it; the returned
// remainder reads through to it and its Close is a no-op.
func (c *Channel[T]) PutMany(ctx context.Context, items Iterator[T]) (Iterator[T], error) {
	for {
		item, ok, err := items.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &remainder[T]{}, nil
		}
		if !c.Put(item) {
			return &remainder[T]{head: item, hasHead: true, rest: items}, nil
		}
	}
}

// remainder yields an eagerly held head item, then the rest of a borrowed
// iterator.
type remainder[T any] struct {
	head    T
	hasHead bool
	rest    Iterator[T]
}

func (r *remainder[T]) Next(ctx context.Context) (T, bool, error) {
	if r.hasHead {
		item := r.head
		var zero T
		r.head = zero
		r.hasHead = false
		return item, true, nil
	}
	if r.rest == nil {
		var zero T
		return zero, false, nil
	}
	return r.rest.Next(ctx)
}

func (r *remainder[T]) Close() error { return nil }
