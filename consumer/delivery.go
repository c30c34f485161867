package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/natsclient"
)

// Delivery is one received message awaiting a settlement
type Delivery interface {
	Subject() string
	Data() []byte
	// NumDelivered is 1 on first delivery
	NumDelivered() uint64
	Ack() error
	Nak() error
	Term() error
}

// Subscription stops the flow of deliveries
type Subscription interface {
	Stop()
}

// Subscriber opens the durable subscription of a topic
type Subscriber interface {
	Subscribe(ctx context.Context, topic config.TopicConfig, handler func(Delivery)) (Subscription, error)
}

// Publisher sends dead-lettered payloads
type Publisher interface {
	PublishMsg(ctx context.Context, subject string, data []byte, msgID string) error
}

type jsDelivery struct {
	msg jetstream.Msg
}

func (d jsDelivery) Subject() string { return d.msg.Subject() }
func (d jsDelivery) Data() []byte    { return d.msg.Data() }
func (d jsDelivery) Ack() error      { return d.msg.Ack() }
func (d jsDelivery) Nak() error      { return d.msg.Nak() }
func (d jsDelivery) Term() error     { return d.msg.Term() }

func (d jsDelivery) NumDelivered() uint64 {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}

// JetStreamSubscriber binds topics to durable JetStream pull consumers
type JetStreamSubscriber struct {
	Client   *natsclient.Client
	Prefetch int
	AckWait  time.Duration
}

var _ Subscriber = (*JetStreamSubscriber)(nil)

// Subscribe declares the durable consumer of topic and starts consuming.
// Stop drains the messages already pulled through handler.
func (s *JetStreamSubscriber) Subscribe(
	ctx context.Context, topic config.TopicConfig, handler func(Delivery),
) (Subscription, error) {
	consumer, err := s.Client.EnsureConsumer(ctx, natsclient.ConsumerSpec{
		Stream:        topic.Stream,
		Durable:       topic.Consumer,
		FilterSubject: topic.Subject,
		MaxAckPending: s.Prefetch,
		AckWait:       s.AckWait,
	})
	if err != nil {
		return nil, err
	}

	var opts []jetstream.PullConsumeOpt
	if s.Prefetch > 0 {
		opts = append(opts, jetstream.PullMaxMessages(s.Prefetch))
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(jsDelivery{msg: msg})
	}, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "JetStreamSubscriber", "Subscribe",
			fmt.Sprintf("consume %s", topic.Consumer))
	}
	return drainingSubscription{cc: cc}, nil
}

type drainingSubscription struct {
	cc jetstream.ConsumeContext
}

func (s drainingSubscription) Stop() {
	s.cc.Drain()
}
