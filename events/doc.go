// Package events is the in-process fan-out between reconciliation outcomes
// and their side effects.
//
// A Dispatcher is created once at startup and injected into the services
// that emit and the components that subscribe. Subscribers run in
// subscription order on the emitting goroutine. A failing or panicking
// subscriber is logged and counted; it never affects the emitter, whose
// transaction has already committed.
//
//	d := events.NewDispatcher(logger, metrics)
//	d.Subscribe(events.SignalEntityCreated, "publication-retrieval", handler)
//	d.Emit(ctx, events.Event{Signal: events.SignalEntityCreated, Kind: model.KindPerson, UID: uid})
package events
