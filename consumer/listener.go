package consumer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/health"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/retry"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/worker"
)

// State is the lifecycle state of a listener
type State int32

// Listener states, in lifecycle order
const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const payloadExcerpt = 512

// Options carries the collaborators of a listener. Subscriber is required;
// everything else may be nil.
type Options struct {
	Subscriber Subscriber
	DeadLetter Publisher
	Metrics    *metric.Metrics
	Registry   *metric.MetricsRegistry
	Health     *health.Monitor
	Logger     *slog.Logger

	// ConnectRetryWait is the delay between subscription attempts
	ConnectRetryWait time.Duration
}

// Listener consumes one topic: a durable subscription feeds a bounded queue
// drained by a fixed pool of workers.
type Listener struct {
	topic     config.TopicConfig
	cfg       config.ConsumptionConfig
	processor Processor
	opts      Options
	logger    *slog.Logger

	state atomic.Int32
	pool  *worker.Pool[Delivery]

	mu  sync.Mutex
	sub Subscription
}

// NewListener creates a listener for topic. Nothing is opened until Start.
func NewListener(topic config.TopicConfig, cfg config.ConsumptionConfig, p Processor, opts Options) *Listener {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConnectRetryWait <= 0 {
		opts.ConnectRetryWait = time.Second
	}

	l := &Listener{
		topic:     topic,
		cfg:       cfg,
		processor: p,
		opts:      opts,
		logger:    opts.Logger.With("component", "listener", "topic", topic.Name),
	}

	poolOpts := []worker.Option[Delivery]{worker.WithDiscard(l.requeue)}
	if opts.Registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Delivery](opts.Registry, "ikg_"+topic.Name+"_pool"))
	}
	l.pool = worker.NewPool(cfg.TaskParallelism, cfg.QueueCapacity, l.process, poolOpts...)

	l.setState(StateDisconnected)
	return l
}

// Topic returns the topic name
func (l *Listener) Topic() string {
	return l.topic.Name
}

// State returns the current lifecycle state
func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) healthName() string {
	return "listener." + l.topic.Name
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if l.opts.Metrics != nil {
		l.opts.Metrics.ListenerState.WithLabelValues(l.topic.Name).Set(float64(s))
	}
	if l.opts.Health != nil {
		switch s {
		case StateListening:
			l.opts.Health.UpdateHealthy(l.healthName(), "listening")
		case StateClosed:
			l.opts.Health.UpdateUnhealthy(l.healthName(), "closed")
		default:
			l.opts.Health.UpdateDegraded(l.healthName(), s.String())
		}
	}
}

// Start subscribes to the topic and starts the workers. Subscription
// failures are retried indefinitely while they are transient; any other
// failure is returned as fatal.
func (l *Listener) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Listener", "Start", "check state")
	}
	l.setState(StateConnecting)

	// workers outlive ctx so that Shutdown can drain after cancellation
	if err := l.pool.Start(context.WithoutCancel(ctx)); err != nil {
		l.setState(StateClosed)
		return errors.WrapFatal(err, "Listener", "Start", "start workers")
	}

	cfg := retry.Forever(l.opts.ConnectRetryWait)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.logger.Warn("Subscription attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
	}

	sub, err := retry.DoWithResult(ctx, cfg, func() (Subscription, error) {
		sub, err := l.opts.Subscriber.Subscribe(ctx, l.topic, l.enqueue)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return sub, err
	})
	if err != nil {
		_ = l.pool.Stop(0)
		l.setState(StateClosed)
		return errors.WrapFatal(err, "Listener", "Start", fmt.Sprintf("subscribe to %s", l.topic.Subject))
	}

	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()

	l.setState(StateListening)
	l.logger.Info("Listening",
		"stream", l.topic.Stream,
		"consumer", l.topic.Consumer,
		"subject", l.topic.Subject,
		"workers", l.cfg.TaskParallelism)
	return nil
}

// enqueue hands a delivery to the workers, blocking while the queue is full
func (l *Listener) enqueue(d Delivery) {
	if l.State() != StateListening {
		l.requeue(d)
		return
	}

	if err := l.pool.SubmitWait(context.Background(), d); err != nil {
		l.requeue(d)
		return
	}

	if l.opts.Metrics != nil {
		l.opts.Metrics.QueueDepth.WithLabelValues(l.topic.Name).Set(float64(l.pool.Stats().QueueDepth))
	}
}

// requeue releases a delivery that will not be processed
func (l *Listener) requeue(d Delivery) {
	if err := d.Nak(); err != nil {
		l.logger.Warn("Failed to requeue message", "subject", d.Subject(), "error", err)
	}
	l.count("nak")
}

func (l *Listener) count(status string) {
	if l.opts.Metrics != nil {
		l.opts.Metrics.MessagesTotal.WithLabelValues(l.topic.Name, status).Inc()
	}
}

// process runs the processor on one delivery and settles it exactly once
func (l *Listener) process(ctx context.Context, d Delivery) (err error) {
	start := time.Now()
	workerID, _ := worker.IDFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}

		duration := time.Since(start)
		if l.opts.Metrics != nil {
			l.opts.Metrics.MessageDuration.WithLabelValues(l.topic.Name).Observe(duration.Seconds())
			l.opts.Metrics.QueueDepth.WithLabelValues(l.topic.Name).Set(float64(l.pool.Stats().QueueDepth))
		}

		if err == nil {
			if ackErr := d.Ack(); ackErr != nil {
				l.logger.Warn("Failed to ack message", "subject", d.Subject(), "error", ackErr)
			}
			l.count("ack")
			l.logger.Debug("Message processed",
				"worker_id", workerID, "subject", d.Subject(), "duration", duration)
			return
		}

		l.logger.Error("Message processing failed",
			"worker_id", workerID,
			"subject", d.Subject(),
			"duration", duration,
			"deliveries", d.NumDelivered(),
			"payload", excerpt(d.Data()),
			"error", err)
		l.fail(d)
	}()

	return l.processor.Process(ctx, d.Subject(), d.Data())
}

// fail requeues a failed delivery, or dead-letters it once it has been
// delivered max_deliver times.
func (l *Listener) fail(d Delivery) {
	maxDeliver := l.cfg.MaxDeliver
	if maxDeliver <= 0 || d.NumDelivered() < uint64(maxDeliver) || l.opts.DeadLetter == nil {
		l.requeue(d)
		return
	}

	subject := l.cfg.DeadLetterPrefix + "." + l.topic.Name
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.opts.DeadLetter.PublishMsg(ctx, subject, d.Data(), ""); err != nil {
		l.logger.Error("Failed to dead-letter message, requeueing", "subject", subject, "error", err)
		l.requeue(d)
		return
	}

	if err := d.Term(); err != nil {
		l.logger.Warn("Failed to terminate dead-lettered message", "subject", d.Subject(), "error", err)
	}
	l.count("dead_letter")
	if l.opts.Metrics != nil {
		l.opts.Metrics.DeadLetteredTotal.WithLabelValues(l.topic.Name).Inc()
	}
	l.logger.Warn("Message dead-lettered",
		"subject", d.Subject(), "dead_letter_subject", subject, "deliveries", d.NumDelivered())
}

// Shutdown stops intake, lets queued and in-flight messages finish for up to
// timeout, then cancels the workers and requeues whatever is still queued.
func (l *Listener) Shutdown(timeout time.Duration) error {
	if !l.state.CompareAndSwap(int32(StateListening), int32(StateDraining)) {
		if l.State() == StateConnecting || l.State() == StateDisconnected {
			_ = l.pool.Stop(0)
			l.setState(StateClosed)
		}
		return nil
	}
	l.setState(StateDraining)

	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}

	before := l.pool.Stats()
	err := l.pool.Stop(timeout)
	after := l.pool.Stats()

	l.setState(StateClosed)

	if stderrors.Is(err, worker.ErrStopTimeout) {
		l.logger.Warn("Drain timed out, queued messages requeued",
			"timeout", timeout, "requeued", after.Discarded-before.Discarded)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Listener", "Shutdown", "stop workers")
	}

	l.logger.Info("Listener closed", "processed", after.Processed)
	return nil
}

// Run starts the listener and shuts it down once ctx is done. Cancelling ctx
// before the subscription succeeds is not an error.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	<-ctx.Done()
	return l.Shutdown(l.cfg.WaitBeforeShutdown)
}

func excerpt(data []byte) string {
	if len(data) <= payloadExcerpt {
		return string(data)
	}
	return string(data[:payloadExcerpt]) + "..."
}
