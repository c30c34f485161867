// Package people processes person events from the directory
package people

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
const Topic = "people"

var schema = envelope.MustCompile("people", envelope.EventSchema("people_event", "data"))

type message struct {
	Event struct {
		Type envelope.EventType `json:"type"`
		Data model.Person       `json:"data"`
	} `json:"people_event"`
}

// Processor reconciles the person carried by each event
type Processor struct {
	service *reconcile.PeopleService
	logger  *slog.Logger
}

// New creates a people processor
func New(service *reconcile.PeopleService, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		service: service,
		logger:  logger.With("component", "people-processor"),
	}
}

// Register binds the processor to its topic
func Register(r *consumer.Registry) error {
	return r.Register(consumer.Registration{
		Topic:       Topic,
		Description: "Person events from the institutional directory",
		Factory: func(deps consumer.Dependencies) (consumer.Processor, error) {
			if deps.People == nil {
				return nil, errors.WrapFatal(errors.ErrMissingConfig, "people", "Factory", "people service")
			}
			return New(deps.People, deps.Logger), nil
		},
	})
}

// Process implements consumer.Processor
func (p *Processor) Process(ctx context.Context, subject string, data []byte) error {
	var msg message
	if err := schema.Decode(data, &msg); err != nil {
		return err
	}
	person := msg.Event.Data

	var err error
	switch msg.Event.Type {
	case envelope.Created, envelope.Unchanged:
		person, err = p.service.CreateOrUpdatePerson(ctx, person)
	case envelope.Updated:
		person, err = p.service.UpdateOrCreatePerson(ctx, person)
	case envelope.Deleted:
		p.logger.Info("Person deletion is not handled", "subject", subject, "uid", person.UID)
		return nil
	}
	if err != nil {
		return err
	}

	p.logger.Debug("Person reconciled", "event", msg.Event.Type, "uid", person.UID)
	return nil
}
