package reconcile

import (
	"context"
	"log/slog"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/identifier"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Outcomes recorded in the reconcile_total metric
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Dependencies are shared by every reconciliation service
type Dependencies struct {
	Store       graph.Store
	Identifiers *identifier.Service
	// Events receives signals after commit; nil disables signalling
	Events  events.Emitter
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

type base struct {
	store       graph.Store
	identifiers *identifier.Service
	emitter     events.Emitter
	metrics     *metric.Metrics
	logger      *slog.Logger
}

func newBase(deps Dependencies, component string) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		store:       deps.Store,
		identifiers: deps.Identifiers,
		emitter:     deps.Events,
		metrics:     deps.Metrics,
		logger:      logger.With("component", component),
	}
}

func (b base) emit(ctx context.Context, signal events.Signal, kind model.Kind, uid string) {
	if b.emitter == nil {
		return
	}
	b.emitter.Emit(ctx, events.Event{Signal: signal, Kind: kind, UID: uid})
}

func (b base) record(kind model.Kind, outcome string) {
	if b.metrics == nil {
		return
	}
	b.metrics.ReconcileTotal.WithLabelValues(string(kind), outcome).Inc()
}

// uidFor keeps an explicit uid and derives one otherwise
func (b base) uidFor(agent model.Agent, uid string) (string, error) {
	if uid != "" {
		return uid, nil
	}
	return b.identifiers.ComputeUID(agent)
}

// findPerson looks p up by its identifiers, in priority order then in the
// order they were given. The first match wins.
func (b base) findPerson(ctx context.Context, p model.Person) (model.Person, error) {
	for _, id := range orderByPriority(p.Identifiers, b.identifiers.Priority(model.KindPerson)) {
		found, err := b.store.People().FindByIdentifier(ctx, id)
		if err == nil || !errors.IsNotFound(err) {
			return found, err
		}
	}
	return model.Person{}, errors.NotFoundf("no person matches the identifiers of %s", p.DisplayName())
}

// afterUpdate emits entity-identifiers-updated when the identifier set changed
func (b base) afterUpdate(ctx context.Context, kind model.Kind, uid string, previous, incoming []model.Identifier) {
	if identifier.IdentifiersAreIdentical(previous, incoming) {
		return
	}
	b.logger.Info("Identifiers changed", "kind", kind, "uid", uid,
		"previous", len(previous), "incoming", len(incoming))
	b.emit(ctx, events.SignalEntityIdentifiersUpdated, kind, uid)
}
