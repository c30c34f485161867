package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Signal names a reconciliation outcome
type Signal string

// Signals emitted by the reconciliation services
const (
	SignalEntityCreated            Signal = "entity-created"
	SignalEntityIdentifiersUpdated Signal = "entity-identifiers-updated"
	SignalSourceRecordCreated      Signal = "source-record-created"
)

// Event is one emitted signal
type Event struct {
	Signal Signal
	Kind   model.Kind
	UID    string
}

// Handler reacts to an event. A returned error is logged by the dispatcher.
type Handler func(ctx context.Context, e Event) error

// Emitter is what reconciliation services depend on
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

type subscription struct {
	name    string
	handler Handler
}

// Dispatcher fans events out to subscribers
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[Signal][]subscription
	logger *slog.Logger

	metrics *metric.Metrics
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher; metrics may be nil
func NewDispatcher(logger *slog.Logger, metrics *metric.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:    make(map[Signal][]subscription),
		logger:  logger.With("component", "events"),
		metrics: metrics,
	}
}

// Subscribe registers handler for signal under name
func (d *Dispatcher) Subscribe(signal Signal, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[signal] = append(d.subs[signal], subscription{name: name, handler: handler})
}

// Subscribers returns the names subscribed to signal, in order
func (d *Dispatcher) Subscribers(signal Signal) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.subs[signal]))
	for _, s := range d.subs[signal] {
		names = append(names, s.name)
	}
	return names
}

// Emit delivers e to every subscriber of its signal
func (d *Dispatcher) Emit(ctx context.Context, e Event) {
	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[e.Signal]...)
	d.mu.RUnlock()

	for _, sub := range subs {
		err := d.deliver(ctx, sub, e)
		status := "ok"
		if err != nil {
			status = "error"
			d.logger.Error("Signal subscriber failed",
				"signal", e.Signal, "subscriber", sub.name, "kind", e.Kind, "uid", e.UID, "error", err)
		}
		if d.metrics != nil {
			d.metrics.SignalsTotal.WithLabelValues(string(e.Signal), status).Inc()
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", sub.name, r)
		}
	}()
	return sub.handler(ctx, e)
}
