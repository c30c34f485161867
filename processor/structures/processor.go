// Package structures processes research structure events from the directory
package structures

import (
	"context"
	"log/slog"

	"github.com/CRISalid-esr/crisalid-ikg/consumer"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
	"github.com/CRISalid-esr/crisalid-ikg/processor/envelope"
	"github.com/CRISalid-esr/crisalid-ikg/reconcile"
)

// Topic is the configured topic this processor serves
const Topic = "structures"

var schema = envelope.MustCompile("structures", envelope.EventSchema("structures_event", "data"))

type message struct {
	Event struct {
		Type envelope.EventType      `json:"type"`
		Data model.ResearchStructure `json:"data"`
	} `json:"structures_event"`
}

// Processor reconciles the research structure carried by each event
type Processor struct {
	service *reconcile.StructureService
	logger  *slog.Logger
}

// New creates a structures processor
func New(service *reconcile.StructureService, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		service: service,
		logger:  logger.With("component", "structures-processor"),
	}
}

// Register binds the processor to its topic
func Register(r *consumer.Registry) error {
	return r.Register(consumer.Registration{
		Topic:       Topic,
		Description: "Research structure events from the institutional directory",
		Factory: func(deps consumer.Dependencies) (consumer.Processor, error) {
			if deps.Structures == nil {
				return nil, errors.WrapFatal(errors.ErrMissingConfig, "structures", "Factory", "structure service")
			}
			return New(deps.Structures, deps.Logger), nil
		},
	})
}

// Process implements consumer.Processor
func (p *Processor) Process(ctx context.Context, subject string, data []byte) error {
	var msg message
	if err := schema.Decode(data, &msg); err != nil {
		return err
	}
	structure := msg.Event.Data

	var err error
	switch msg.Event.Type {
	case envelope.Created, envelope.Unchanged:
		structure, err = p.service.CreateOrUpdateStructure(ctx, structure)
	case envelope.Updated:
		structure, err = p.service.UpdateOrCreateStructure(ctx, structure)
	case envelope.Deleted:
		p.logger.Info("Structure deletion is not handled", "subject", subject, "uid", structure.UID)
		return nil
	}
	if err != nil {
		return err
	}

	p.logger.Debug("Structure reconciled", "event", msg.Event.Type, "uid", structure.UID)
	return nil
}
