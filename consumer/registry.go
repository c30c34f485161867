package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/reconcile"
)

// Processor handles the payload of one inbound message. A nil error acks
// the message; any error requeues it.
type Processor interface {
	Process(ctx context.Context, subject string, data []byte) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, subject string, data []byte) error

// Process calls f
func (f ProcessorFunc) Process(ctx context.Context, subject string, data []byte) error {
	return f(ctx, subject, data)
}

// Dependencies are handed to every processor factory
type Dependencies struct {
	People        *reconcile.PeopleService
	Structures    *reconcile.StructureService
	SourceRecords *reconcile.SourceRecordService
	Logger        *slog.Logger
}

// Factory builds the processor of a topic
type Factory func(deps Dependencies) (Processor, error)

// Registration binds a processor factory to a topic name
type Registration struct {
	Topic       string
	Description string
	Factory     Factory
}

// Registry maps topic names to processor factories. Only topics declared in
// the configuration can be registered, each at most once.
type Registry struct {
	mu        sync.RWMutex
	known     []string
	factories map[string]*Registration
}

// NewRegistry creates a registry accepting the given topic names
func NewRegistry(topics ...string) *Registry {
	return &Registry{
		known:     slices.Clone(topics),
		factories: make(map[string]*Registration),
	}
}

// Register adds a processor factory for a topic
func (r *Registry) Register(reg Registration) error {
	if reg.Topic == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "topic name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function validation")
	}
	if !slices.Contains(r.known, reg.Topic) {
		return errors.WrapInvalid(fmt.Errorf("unknown topic %q", reg.Topic),
			"Registry", "Register", "topic lookup")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[reg.Topic]; exists {
		return errors.WrapInvalid(fmt.Errorf("topic %q is already registered", reg.Topic),
			"Registry", "Register", "duplicate topic check")
	}

	r.factories[reg.Topic] = &reg
	return nil
}

// Create builds the processor registered for topic
func (r *Registry) Create(topic string, deps Dependencies) (Processor, error) {
	r.mu.RLock()
	reg, ok := r.factories[topic]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("no processor registered for topic %q", topic),
			"Registry", "Create", "factory lookup")
	}

	p, err := reg.Factory(deps)
	if err != nil {
		return nil, errors.WrapFatal(err, "Registry", "Create", fmt.Sprintf("build %s processor", topic))
	}
	return p, nil
}

// Topics returns the registered topic names, sorted
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.factories))
	for t := range r.factories {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
