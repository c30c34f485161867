// Package references processes reference events emitted by the harvesters.
// Each event carries a source record and the person it was harvested for.
package references

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
const Topic = "publications"

var schema = envelope.MustCompile("reference", envelope.EventSchema("reference_event", "reference", "entity"))

type message struct {
	Event struct {
		Type      envelope.EventType `json:"type"`
		Reference model.SourceRecord `json:"reference"`
	} `json:"reference_event"`
	Entity model.Person `json:"entity"`
}

// Processor reconciles source records
type Processor struct {
	service *reconcile.SourceRecordService
	logger  *slog.Logger
}

// New creates a references processor
func New(service *reconcile.SourceRecordService, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		service: service,
		logger:  logger.With("component", "references-processor"),
	}
}

// Register binds the processor to its topic
func Register(r *consumer.Registry) error {
	return r.Register(consumer.Registration{
		Topic:       Topic,
		Description: "Reference events from the publication harvesters",
		Factory: func(deps consumer.Dependencies) (consumer.Processor, error) {
			if deps.SourceRecords == nil {
				return nil, errors.WrapFatal(errors.ErrMissingConfig, "references", "Factory", "source record service")
			}
			return New(deps.SourceRecords, deps.Logger), nil
		},
	})
}

// Process implements consumer.Processor. A record whose owner is unknown is
// dropped: redelivery cannot make the owner appear.
func (p *Processor) Process(ctx context.Context, subject string, data []byte) error {
	var msg message
	if err := schema.Decode(data, &msg); err != nil {
		return err
	}
	record, owner := msg.Event.Reference, msg.Entity

	var err error
	switch msg.Event.Type {
	case envelope.Created:
		err = p.create(ctx, record, owner)
	case envelope.Updated:
		err = p.update(ctx, record, owner)
	case envelope.Unchanged:
		err = p.ensure(ctx, record, owner)
	case envelope.Deleted:
		p.logger.Info("Reference deletion is not handled",
			"subject", subject, "harvester", record.Harvester, "source_identifier", record.SourceIdentifier)
		return nil
	}

	if errors.Is(err, errors.ErrReferenceOwnerNotFound) {
		p.logger.Error("Reference owner not found, dropping reference",
			"harvester", record.Harvester,
			"source_identifier", record.SourceIdentifier,
			"error", err)
		return nil
	}
	return err
}

func (p *Processor) create(ctx context.Context, record model.SourceRecord, owner model.Person) error {
	_, err := p.service.CreateSourceRecord(ctx, record, owner)
	if errors.IsConflict(err) {
		p.logger.Warn("Source record already exists, updating it instead", "error", err)
		_, err = p.service.UpdateSourceRecord(ctx, record, owner)
	}
	return err
}

func (p *Processor) update(ctx context.Context, record model.SourceRecord, owner model.Person) error {
	_, err := p.service.UpdateSourceRecord(ctx, record, owner)
	if errors.IsNotFound(err) {
		p.logger.Warn("Source record missing, creating it instead", "error", err)
		_, err = p.service.CreateSourceRecord(ctx, record, owner)
	}
	return err
}

// ensure creates the record if it is not persisted yet
func (p *Processor) ensure(ctx context.Context, record model.SourceRecord, owner model.Person) error {
	uid := record.UID
	if uid == "" {
		uid = record.ComputeUID()
	}
	exists, err := p.service.SourceRecordExists(ctx, uid)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = p.service.CreateSourceRecord(ctx, record, owner)
	return err
}
