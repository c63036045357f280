// Package pipeline runs strictly linear producer, transformer and sink
// stages connected by mailbox channels.
//
// Each Stage runs one unit of work on its own goroutine. Its shape is fixed
// by the channels it is built with:
//
//   - Source: no input, an output; produces a sequence.
//   - Transform: an input and an output; maps one sequence to another.
//   - Sink: an input, no output; consumes a sequence.
//
// Sequences are pull-based Iterators. A Source or Transform returns one,
// and the stage forwards it into its output channel, closing it on every
// exit path. Because every channel holds a single item, a slow stage
// throttles the stages upstream of it.
//
// When a stage ends, successfully or not, it shuts its channels down
// gracefully. Neighbours see their input end or their output reject, and
// finish in turn, so one failure ends the whole pipeline. Failures are
// captured per stage and read after Join, or collectively through
// Group.Wait.
//
// # Usage
//
//	nums := mailbox.New[int]()
//	doubled := mailbox.New[int]()
//
//	src, _ := pipeline.NewSource(func(ctx context.Context) (pipeline.Iterator[int], error) {
//	    return pipeline.FromSlice([]int{1, 2, 3}), nil
//	}, nums)
//	double, _ := pipeline.NewTransform(func(ctx context.Context, in pipeline.Iterator[int]) (pipeline.Iterator[int], error) {
//	    return pipeline.Map(in, func(_ context.Context, n int) (int, error) { return n * 2, nil }), nil
//	}, nums, doubled)
//	sink, _ := pipeline.NewSink(func(ctx context.Context, in pipeline.Iterator[int]) error {
//	    return pipeline.ForEach(ctx, in, store)
//	}, doubled)
//
//	g := pipeline.NewGroup("numbers", src, double, sink)
//	_ = g.Start(ctx)
//	err := g.Wait()
//
// Generators plug in through FromSeq, which stops the generator when the
// stage closes its sequence.
package pipeline
