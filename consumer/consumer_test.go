package consumer

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/health"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
)

type fakeDelivery struct {
	subject   string
	data      []byte
	delivered uint64

	acks  atomic.Int32
	naks  atomic.Int32
	terms atomic.Int32
}

func newDelivery(data string, delivered uint64) *fakeDelivery {
	return &fakeDelivery{subject: "event.people.person.created", data: []byte(data), delivered: delivered}
}

func (d *fakeDelivery) Subject() string      { return d.subject }
func (d *fakeDelivery) Data() []byte         { return d.data }
func (d *fakeDelivery) NumDelivered() uint64 { return d.delivered }
func (d *fakeDelivery) Ack() error           { d.acks.Add(1); return nil }
func (d *fakeDelivery) Nak() error           { d.naks.Add(1); return nil }
func (d *fakeDelivery) Term() error          { d.terms.Add(1); return nil }

func (d *fakeDelivery) settlements() int32 {
	return d.acks.Load() + d.naks.Load() + d.terms.Load()
}

type fakeSubscription struct {
	stopped atomic.Bool
}

func (s *fakeSubscription) Stop() { s.stopped.Store(true) }

type fakeSubscriber struct {
	mu       sync.Mutex
	failures []error
	attempts int
	handler  func(Delivery)
	sub      *fakeSubscription
}

func (s *fakeSubscriber) Subscribe(_ context.Context, _ config.TopicConfig, handler func(Delivery)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	s.handler = handler
	s.sub = &fakeSubscription{}
	return s.sub, nil
}

func (s *fakeSubscriber) deliver(d Delivery) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h(d)
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) PublishMsg(_ context.Context, subject string, data []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

var peopleTopic = config.TopicConfig{
	Name:     "people",
	Stream:   "directory",
	Consumer: "crisalid-ikg-people",
	Subject:  "event.people.person.*",
}

func consumption(maxDeliver int) config.ConsumptionConfig {
	return config.ConsumptionConfig{
		QueueCapacity:      10,
		TaskParallelism:    2,
		WaitBeforeShutdown: time.Second,
		MaxDeliver:         maxDeliver,
		DeadLetterPrefix:   "ikg.deadletter",
	}
}

func startListener(t *testing.T, cfg config.ConsumptionConfig, p Processor, opts Options) (*Listener, *fakeSubscriber) {
	t.Helper()
	sub := &fakeSubscriber{}
	opts.Subscriber = sub
	opts.ConnectRetryWait = 5 * time.Millisecond

	l := NewListener(peopleTopic, cfg, p, opts)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Shutdown(time.Second) })
	return l, sub
}

func settled(t *testing.T, deliveries ...*fakeDelivery) {
	t.Helper()
	assert.Eventually(t, func() bool {
		for _, d := range deliveries {
			if d.settlements() == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func succeed(context.Context, string, []byte) error { return nil }

func TestRegistry(t *testing.T) {
	factory := func(Dependencies) (Processor, error) { return ProcessorFunc(succeed), nil }

	tests := []struct {
		name    string
		regs    []Registration
		wantErr bool
	}{
		{"known topic", []Registration{{Topic: "people", Factory: factory}}, false},
		{"two topics", []Registration{{Topic: "people", Factory: factory}, {Topic: "structures", Factory: factory}}, false},
		{"unknown topic", []Registration{{Topic: "projects", Factory: factory}}, true},
		{"duplicate topic", []Registration{{Topic: "people", Factory: factory}, {Topic: "people", Factory: factory}}, true},
		{"missing factory", []Registration{{Topic: "people"}}, true},
		{"empty topic", []Registration{{Factory: factory}}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := NewRegistry("people", "structures", "publications")
			var err error
			for _, reg := range test.regs {
				if err = r.Register(reg); err != nil {
					break
				}
			}
			if test.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry("people", "structures")
	require.NoError(t, r.Register(Registration{
		Topic:   "structures",
		Factory: func(Dependencies) (Processor, error) { return ProcessorFunc(succeed), nil },
	}))
	require.NoError(t, r.Register(Registration{
		Topic:   "people",
		Factory: func(Dependencies) (Processor, error) { return nil, stderrors.New("boom") },
	}))

	assert.Equal(t, []string{"people", "structures"}, r.Topics())

	p, err := r.Create("structures", Dependencies{})
	require.NoError(t, err)
	assert.NoError(t, p.Process(context.Background(), "s", nil))

	_, err = r.Create("people", Dependencies{})
	assert.True(t, errors.IsFatal(err))

	_, err = r.Create("publications", Dependencies{})
	assert.True(t, errors.IsInvalid(err))
}

func TestListener_AcksOnSuccess(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	monitor := health.NewMonitor()

	var seen atomic.Int32
	p := ProcessorFunc(func(ctx context.Context, subject string, data []byte) error {
		assert.Equal(t, "event.people.person.created", subject)
		seen.Add(1)
		return nil
	})

	l, sub := startListener(t, consumption(0), p, Options{Metrics: core, Health: monitor})
	assert.Equal(t, StateListening, l.State())

	status, ok := monitor.Get("listener.people")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	deliveries := []*fakeDelivery{newDelivery(`{"a":1}`, 1), newDelivery(`{"a":2}`, 1), newDelivery(`{"a":3}`, 1)}
	for _, d := range deliveries {
		sub.deliver(d)
	}
	settled(t, deliveries...)

	for _, d := range deliveries {
		assert.Equal(t, int32(1), d.acks.Load())
		assert.Equal(t, int32(0), d.naks.Load())
	}
	assert.Equal(t, int32(3), seen.Load())
	assert.Equal(t, 3.0, testutil.ToFloat64(core.MessagesTotal.WithLabelValues("people", "ack")))
	assert.Equal(t, float64(StateListening), testutil.ToFloat64(core.ListenerState.WithLabelValues("people")))
}

func TestListener_NaksOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		processor ProcessorFunc
	}{
		{"error", func(context.Context, string, []byte) error { return errors.Validationf("bad envelope") }},
		{"storage error", func(context.Context, string, []byte) error {
			return errors.Storage(stderrors.New("socket closed"), "neo4jstore", "Create", "run")
		}},
		{"panic", func(context.Context, string, []byte) error { panic("boom") }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dl := &fakePublisher{}
			_, sub := startListener(t, consumption(0), test.processor, Options{DeadLetter: dl})

			d := newDelivery(`{}`, 50)
			sub.deliver(d)
			settled(t, d)

			// settle exactly once
			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, int32(1), d.naks.Load())
			assert.Equal(t, int32(1), d.settlements())
			assert.Empty(t, dl.subjects, "max_deliver 0 never dead-letters")
		})
	}
}

func TestListener_DeadLettersAtMaxDeliver(t *testing.T) {
	fail := ProcessorFunc(func(context.Context, string, []byte) error { return errors.Validationf("bad") })

	tests := []struct {
		name       string
		delivered  uint64
		publishErr error
		wantTerm   bool
	}{
		{"below limit", 2, nil, false},
		{"at limit", 3, nil, true},
		{"above limit", 7, nil, true},
		{"dead letter unavailable", 3, stderrors.New("no responders"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry := metric.NewMetricsRegistry()
			core := registry.CoreMetrics()
			dl := &fakePublisher{err: test.publishErr}
			_, sub := startListener(t, consumption(3), fail, Options{DeadLetter: dl, Metrics: core})

			d := newDelivery(`{"people_event":{}}`, test.delivered)
			sub.deliver(d)
			settled(t, d)

			if test.wantTerm {
				assert.Equal(t, int32(1), d.terms.Load())
				assert.Equal(t, int32(0), d.naks.Load())
				require.Len(t, dl.subjects, 1)
				assert.Equal(t, "ikg.deadletter.people", dl.subjects[0])
				assert.Equal(t, d.data, dl.payloads[0])
				assert.Equal(t, 1.0, testutil.ToFloat64(core.DeadLetteredTotal.WithLabelValues("people")))
				return
			}
			assert.Equal(t, int32(1), d.naks.Load())
			assert.Equal(t, int32(0), d.terms.Load())
			assert.Empty(t, dl.subjects)
		})
	}
}

func TestListener_RetriesTransientSubscribeErrors(t *testing.T) {
	sub := &fakeSubscriber{failures: []error{
		errors.WrapTransient(stderrors.New("not connected"), "Client", "EnsureConsumer", "get jetstream"),
		errors.WrapTransient(stderrors.New("not connected"), "Client", "EnsureConsumer", "get jetstream"),
	}}

	l := NewListener(peopleTopic, consumption(0), ProcessorFunc(succeed), Options{
		Subscriber:       sub,
		ConnectRetryWait: 5 * time.Millisecond,
	})
	require.NoError(t, l.Start(context.Background()))
	defer l.Shutdown(time.Second)

	assert.Equal(t, 3, sub.attempts)
	assert.Equal(t, StateListening, l.State())
}

func TestListener_FatalSubscribeError(t *testing.T) {
	sub := &fakeSubscriber{failures: []error{
		errors.WrapInvalid(stderrors.New("stream not found"), "Client", "EnsureConsumer", "declare"),
	}}

	l := NewListener(peopleTopic, consumption(0), ProcessorFunc(succeed), Options{
		Subscriber:       sub,
		ConnectRetryWait: 5 * time.Millisecond,
	})
	err := l.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, 1, sub.attempts)
	assert.Equal(t, StateClosed, l.State())
}

func TestListener_StartTwice(t *testing.T) {
	l, _ := startListener(t, consumption(0), ProcessorFunc(succeed), Options{})
	assert.Error(t, l.Start(context.Background()))
}

func TestListener_GracefulShutdown(t *testing.T) {
	release := make(chan struct{})
	p := ProcessorFunc(func(ctx context.Context, _ string, _ []byte) error {
		<-release
		return nil
	})

	sub := &fakeSubscriber{}
	l := NewListener(peopleTopic, consumption(0), p, Options{Subscriber: sub})
	require.NoError(t, l.Start(context.Background()))

	deliveries := []*fakeDelivery{newDelivery(`1`, 1), newDelivery(`2`, 1), newDelivery(`3`, 1)}
	for _, d := range deliveries {
		sub.deliver(d)
	}

	done := make(chan error, 1)
	go func() { done <- l.Shutdown(2 * time.Second) }()

	assert.Eventually(t, func() bool {
		return l.State() == StateDraining && sub.sub.stopped.Load()
	}, time.Second, time.Millisecond)

	// arriving during drain
	late := newDelivery(`late`, 1)
	sub.deliver(late)
	assert.Equal(t, int32(1), late.naks.Load())

	close(release)
	require.NoError(t, <-done)

	for _, d := range deliveries {
		assert.Equal(t, int32(1), d.acks.Load())
	}
	assert.Equal(t, StateClosed, l.State())
}

func TestListener_DrainTimeoutRequeuesLeftovers(t *testing.T) {
	started := make(chan struct{}, 1)
	p := ProcessorFunc(func(ctx context.Context, _ string, _ []byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})

	cfg := consumption(0)
	cfg.TaskParallelism = 1

	sub := &fakeSubscriber{}
	l := NewListener(peopleTopic, cfg, p, Options{Subscriber: sub})
	require.NoError(t, l.Start(context.Background()))

	inflight := newDelivery(`in-flight`, 1)
	sub.deliver(inflight)
	<-started

	queued := []*fakeDelivery{newDelivery(`q1`, 1), newDelivery(`q2`, 1)}
	for _, d := range queued {
		sub.deliver(d)
	}

	require.NoError(t, l.Shutdown(50*time.Millisecond))
	assert.Equal(t, StateClosed, l.State())

	// cancelled in-flight work and leftovers are all requeued
	for _, d := range append(queued, inflight) {
		assert.Equal(t, int32(1), d.naks.Load())
		assert.Equal(t, int32(0), d.acks.Load())
	}
}

func TestListener_RunStopsOnCancel(t *testing.T) {
	sub := &fakeSubscriber{}
	l := NewListener(peopleTopic, consumption(0), ProcessorFunc(succeed), Options{Subscriber: sub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool { return l.State() == StateListening }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, StateClosed, l.State())
}

func TestManager_Run(t *testing.T) {
	cfg := config.Default()
	cfg.Consumption = consumption(0)

	registry := NewRegistry("people", "structures", "publications")
	for _, topic := range []string{"people", "structures"} {
		require.NoError(t, registry.Register(Registration{
			Topic:   topic,
			Factory: func(Dependencies) (Processor, error) { return ProcessorFunc(succeed), nil },
		}))
	}

	m, err := NewManager(cfg, registry, Dependencies{}, Options{Subscriber: &fakeSubscriber{}})
	require.NoError(t, err)
	require.Len(t, m.Listeners(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, l := range m.Listeners() {
			if l.State() != StateListening {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	for _, l := range m.Listeners() {
		assert.Equal(t, StateClosed, l.State())
	}
}

func TestManager_RequiresSubscriber(t *testing.T) {
	_, err := NewManager(config.Default(), NewRegistry(), Dependencies{}, Options{})
	assert.True(t, errors.IsFatal(err))
}

func TestExcerpt(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	assert.Equal(t, "short", excerpt([]byte("short")))
	assert.Len(t, excerpt(long), payloadExcerpt+3)
}
