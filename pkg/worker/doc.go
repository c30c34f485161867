// Package worker provides a generic worker pool draining a bounded queue.
//
// A fixed number of goroutines pull items from a buffered channel. Each worker
// processes one item at a time, so per-worker processing is strictly
// sequential while the pool as a whole is concurrent.
//
//	pool := worker.NewPool(50, 10000, handle,
//	    worker.WithDiscard(func(d Delivery) { _ = d.Nak() }),
//	    worker.WithMetricsRegistry[Delivery](registry, "ikg_people"),
//	)
//	_ = pool.Start(ctx)
//	_ = pool.SubmitWait(ctx, delivery) // blocks while the queue is full
//	_ = pool.Stop(30 * time.Second)    // bounded drain
//
// Submit never blocks and reports ErrQueueFull instead. Stop waits for the
// queue and in-flight items up to the timeout, cancels the workers' context,
// and hands every item still queued to the discard function.
//
// Processors receive the worker id through IDFromContext. A panic in a
// processor is recovered and counted as a failure.
package worker
