package pipeline

import (
	"context"
	"iter"

	"github.com/kbukum/relay/mailbox"
)

// Iterator provides pull-based sequential access to a stream of values.
// Structurally compatible with mailbox.Iterator[T], so channel sequences
// and stage sequences are interchangeable.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

var _ Iterator[int] = mailbox.Iterator[int](nil)

// FromSlice returns an iterator over items.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIter[T]{items: items}
}

// Empty returns an exhausted iterator.
func Empty[T any]() Iterator[T] {
	return &sliceIter[T]{}
}

// FromSeq adapts a push-style generator into an Iterator. The generator runs
// only as values are pulled; Close stops it, so its deferred cleanup runs
// even when the consumer quits early. A non-nil error yielded by the
// generator is returned from Next and ends the sequence.
func FromSeq[T any](seq iter.Seq2[T, error]) Iterator[T] {
	next, stop := iter.Pull2(seq)
	return &seqIter[T]{next: next, stop: stop}
}

// All exposes it as a range-over-func sequence. Iteration stops after the
// first error, which is yielded with a zero value. The caller still owns it.
//
//	for frame, err := range pipeline.All(ctx, in) {
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
func All[T any](ctx context.Context, it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			val, ok, err := it.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok || !yield(val, nil) {
				return
			}
		}
	}
}

// Collect pulls every value from it and closes it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var result []T
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}
		result = append(result, val)
	}
}

// ForEach calls fn for every value pulled from it, then closes it. It stops
// at the first error from either side.
func ForEach[T any](ctx context.Context, it Iterator[T], fn func(context.Context, T) error) error {
	defer it.Close()
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(ctx, val); err != nil {
			return err
		}
	}
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

type seqIter[T any] struct {
	next func() (T, error, bool)
	stop func()
	done bool
}

func (it *seqIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	val, err, ok := it.next()
	if !ok {
		it.done = true
		return zero, false, nil
	}
	if err != nil {
		it.done = true
		return zero, false, err
	}
	return val, true, nil
}

func (it *seqIter[T]) Close() error {
	it.done = true
	it.stop()
	return nil
}
