// Package consumer turns broker subscriptions into processed messages.
//
// Every topic gets a Listener: one durable subscription, one bounded
// in-process queue and a fixed pool of workers. A listener moves through
// disconnected, connecting, listening, draining and closed.
//
// Each delivery is settled exactly once. A processor success acks it. A
// failure naks it so that the broker redelivers it, unless the delivery count
// has reached max_deliver, in which case the payload is published to
// <dead_letter_prefix>.<topic> and the message is terminated.
//
// Processors are registered per topic in a Registry; the Manager builds and
// runs a listener for each registered topic:
//
//	registry := consumer.NewRegistry("people", "structures", "publications")
//	if err := processor.Register(registry); err != nil {
//	    return err
//	}
//	manager, err := consumer.NewManager(cfg, registry, deps, consumer.Options{
//	    Subscriber: &consumer.JetStreamSubscriber{Client: client, Prefetch: 50, AckWait: time.Hour},
//	    DeadLetter: client,
//	})
//	err = manager.Run(ctx)
package consumer
