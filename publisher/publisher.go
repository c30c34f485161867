// Package publisher emits outbound task and event messages.
//
// Messages are built by a Factory registered for a (type, subtype) pair,
// serialized as JSON and published to the broker at the routing key the
// factory chose. Each message carries a fresh uuid as its broker message id
// so that client retries are deduplicated server-side.
//
// Publishing is best-effort: the signal handlers installed by Subscribe only
// queue the request. A small worker pool builds and sends it, logs failures
// and never reports them back to the reconciliation that triggered them.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/worker"
)

// MessageType separates tasks, which ask another service to act, from events
type MessageType string

// Message types
const (
	TypeTask  MessageType = "Task"
	TypeEvent MessageType = "Event"
)

// Subtype names a message within its type
type Subtype string

// Task subtypes
const (
	SubtypePublicationRetrieval Subtype = "Publication retrieval"
)

// Content identifies the entity a message is about
type Content struct {
	Kind model.Kind
	UID  string
}

// Message is a built outbound message
type Message struct {
	Subject string
	Payload any
}

// Factory builds the message of one (type, subtype) pair
type Factory interface {
	Build(ctx context.Context, content Content) (Message, error)
}

// Sender publishes raw bytes to the broker
type Sender interface {
	PublishMsg(ctx context.Context, subject string, data []byte, msgID string) error
}

type factoryKey struct {
	messageType MessageType
	subtype     Subtype
}

// Publisher builds and sends outbound messages
type Publisher struct {
	sender  Sender
	limiter *rate.Limiter
	pool    *worker.Pool[events.Event]
	metrics *metric.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	factories map[factoryKey]Factory
}

// New creates a publisher sending through sender. A non-positive rate
// disables throttling; metrics may be nil.
func New(sender Sender, cfg config.PublisherConfig, metrics *metric.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	p := &Publisher{
		sender:    sender,
		limiter:   rate.NewLimiter(limit, burst),
		metrics:   metrics,
		logger:    logger.With("component", "publisher"),
		factories: make(map[factoryKey]Factory),
	}
	p.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, p.requestRetrieval)
	return p
}

// Start starts the workers sending queued retrieval requests
func (p *Publisher) Start(ctx context.Context) error {
	return p.pool.Start(ctx)
}

// Stop waits up to timeout for queued requests to be sent. Requests still
// queued afterwards are dropped.
func (p *Publisher) Stop(timeout time.Duration) error {
	return p.pool.Stop(timeout)
}

// Register binds factory to a (type, subtype) pair, replacing any previous one
func (p *Publisher) Register(messageType MessageType, subtype Subtype, factory Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[factoryKey{messageType, subtype}] = factory
}

// Publish builds the message for (messageType, subtype) and sends it. It
// blocks on the rate limiter until a token is available or ctx is done.
func (p *Publisher) Publish(ctx context.Context, messageType MessageType, subtype Subtype, content Content) error {
	p.mu.RLock()
	factory, ok := p.factories[factoryKey{messageType, subtype}]
	p.mu.RUnlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Publisher", "Publish",
			fmt.Sprintf("no factory for %s/%s", messageType, subtype))
	}

	msg, err := factory.Build(ctx, content)
	if err != nil {
		return errors.Wrap(err, "Publisher", "Publish", fmt.Sprintf("build %s/%s", messageType, subtype))
	}

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return errors.WrapInvalid(err, "Publisher", "Publish", "marshal payload")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		p.record(msg.Subject, "throttled")
		return errors.WrapTransient(err, "Publisher", "Publish", "rate limiter")
	}

	if err := p.sender.PublishMsg(ctx, msg.Subject, data, uuid.NewString()); err != nil {
		p.record(msg.Subject, "error")
		return err
	}

	p.record(msg.Subject, "ok")
	p.logger.Debug("Message published", "routing_key", msg.Subject, "type", messageType, "subtype", subtype)
	return nil
}

func (p *Publisher) record(subject, status string) {
	if p.metrics != nil {
		p.metrics.PublishedTotal.WithLabelValues(subject, status).Inc()
	}
}

// Subscribe queues a publication retrieval whenever a person is created or
// its identifiers change. A full queue drops the request.
func (p *Publisher) Subscribe(d *events.Dispatcher) {
	for _, signal := range []events.Signal{events.SignalEntityCreated, events.SignalEntityIdentifiersUpdated} {
		d.Subscribe(signal, "publication-retrieval", p.enqueue)
	}
}

func (p *Publisher) enqueue(_ context.Context, e events.Event) error {
	if e.Kind != model.KindPerson {
		return nil
	}
	if err := p.pool.Submit(e); err != nil {
		p.logger.Warn("Publication retrieval request not queued", "uid", e.UID, "signal", e.Signal, "error", err)
	}
	return nil
}

func (p *Publisher) requestRetrieval(ctx context.Context, e events.Event) error {
	err := p.Publish(ctx, TypeTask, SubtypePublicationRetrieval, Content{Kind: e.Kind, UID: e.UID})
	if err != nil {
		p.logger.Error("Publication retrieval request failed", "uid", e.UID, "signal", e.Signal, "error", err)
	}
	return err
}
