package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

const subject = "task.entity.references.retrieval"

type sent struct {
	subject string
	data    []byte
	msgID   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeSender) PublishMsg(_ context.Context, subject string, data []byte, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{subject, data, msgID})
	return nil
}

func (f *fakeSender) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type people map[string]model.Person

func (p people) GetPerson(_ context.Context, uid string) (model.Person, error) {
	person, ok := p[uid]
	if !ok {
		return model.Person{}, errors.NotFoundf("person %s not found", uid)
	}
	return person, nil
}

var johnDoe = model.Person{
	UID: "local-a@x.edu",
	Names: []model.PersonName{{
		FirstNames: []model.Literal{{Value: "John", Language: "fr"}},
		LastNames:  []model.Literal{{Value: "Doe", Language: "fr"}},
	}},
	Identifiers: []model.Identifier{
		{Type: "local", Value: "a@x.edu"},
		{Type: "orcid", Value: "0000-0001-2345-6789"},
	},
}

func newPublisher(sender Sender) (*Publisher, *metric.Metrics) {
	metrics := metric.NewMetricsRegistry().CoreMetrics()
	p := New(sender, config.PublisherConfig{Rate: 0}, metrics, nil)
	p.Register(TypeTask, SubtypePublicationRetrieval, NewPublicationRetrievalFactory(
		people{johnDoe.UID: johnDoe},
		[]string{"idref", "scanr", "hal", "openalex", "scopus"},
		subject,
	))
	return p, metrics
}

func TestPublish_PublicationRetrieval(t *testing.T) {
	sender := &fakeSender{}
	p, metrics := newPublisher(sender)

	err := p.Publish(context.Background(), TypeTask, SubtypePublicationRetrieval,
		Content{Kind: model.KindPerson, UID: johnDoe.UID})
	require.NoError(t, err)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, subject, msgs[0].subject)
	assert.NotEmpty(t, msgs[0].msgID)
	assert.JSONEq(t, `{
		"type": "person",
		"reply": true,
		"identifiers_safe_mode": false,
		"events": ["created", "updated", "deleted", "unchanged"],
		"harvesters": ["idref", "scanr", "hal", "openalex", "scopus"],
		"fields": {
			"name": "John Doe",
			"identifiers": [{"type": "orcid", "value": "0000-0001-2345-6789"}]
		}
	}`, string(msgs[0].data))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishedTotal.WithLabelValues(subject, "ok")))
}

func TestPublish_UniqueMessageIDs(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newPublisher(sender)
	content := Content{Kind: model.KindPerson, UID: johnDoe.UID}

	require.NoError(t, p.Publish(context.Background(), TypeTask, SubtypePublicationRetrieval, content))
	require.NoError(t, p.Publish(context.Background(), TypeTask, SubtypePublicationRetrieval, content))

	msgs := sender.sent()
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].msgID, msgs[1].msgID)
}

func TestPublish_LocalOnlyPerson(t *testing.T) {
	local := model.Person{UID: "local-b@x.edu", Identifiers: []model.Identifier{{Type: "local", Value: "b@x.edu"}}}
	factory := NewPublicationRetrievalFactory(people{local.UID: local}, []string{"hal"}, subject)

	msg, err := factory.Build(context.Background(), Content{Kind: model.KindPerson, UID: local.UID})
	require.NoError(t, err)

	data, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"identifiers":[]`)
	assert.Contains(t, string(data), `"name":"local-b@x.edu"`, "uid stands in for a missing name")
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name        string
		messageType MessageType
		content     Content
		check       func(error) bool
	}{
		{"no factory", TypeEvent, Content{Kind: model.KindPerson, UID: johnDoe.UID}, errors.IsInvalid},
		{"unknown person", TypeTask, Content{Kind: model.KindPerson, UID: "local-nobody"}, errors.IsNotFound},
		{"not a person", TypeTask, Content{Kind: model.KindResearchStructure, UID: "local-U01"}, errors.IsValidation},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &fakeSender{}
			p, _ := newPublisher(sender)

			err := p.Publish(context.Background(), test.messageType, SubtypePublicationRetrieval, test.content)
			require.Error(t, err)
			assert.True(t, test.check(err), "unexpected error: %v", err)
			assert.Empty(t, sender.sent())
		})
	}
}

func TestPublish_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.WrapTransient(errors.New("no responders"), "test", "PublishMsg", "publish")}
	p, metrics := newPublisher(sender)

	err := p.Publish(context.Background(), TypeTask, SubtypePublicationRetrieval,
		Content{Kind: model.KindPerson, UID: johnDoe.UID})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishedTotal.WithLabelValues(subject, "error")))
}

func TestPublish_RateLimiterHonorsContext(t *testing.T) {
	sender := &fakeSender{}
	p := New(sender, config.PublisherConfig{Rate: 0.001, Burst: 1}, nil, nil)
	p.Register(TypeTask, SubtypePublicationRetrieval,
		NewPublicationRetrievalFactory(people{johnDoe.UID: johnDoe}, nil, subject))
	content := Content{Kind: model.KindPerson, UID: johnDoe.UID}

	require.NoError(t, p.Publish(context.Background(), TypeTask, SubtypePublicationRetrieval, content))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, TypeTask, SubtypePublicationRetrieval, content)
	require.Error(t, err)
	assert.Len(t, sender.sent(), 1)
}

func start(t *testing.T, p *Publisher) {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })
}

func TestSubscribe(t *testing.T) {
	tests := []struct {
		name  string
		event events.Event
		want  int
	}{
		{"person created", events.Event{Signal: events.SignalEntityCreated, Kind: model.KindPerson, UID: johnDoe.UID}, 1},
		{"person identifiers updated", events.Event{Signal: events.SignalEntityIdentifiersUpdated, Kind: model.KindPerson, UID: johnDoe.UID}, 1},
		{"structure created", events.Event{Signal: events.SignalEntityCreated, Kind: model.KindResearchStructure, UID: "local-U01"}, 0},
		{"source record created", events.Event{Signal: events.SignalSourceRecordCreated, Kind: model.KindSourceRecord, UID: "hal-1"}, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &fakeSender{}
			p, _ := newPublisher(sender)
			start(t, p)
			dispatcher := events.NewDispatcher(nil, nil)
			p.Subscribe(dispatcher)

			dispatcher.Emit(context.Background(), test.event)
			require.NoError(t, p.Stop(time.Second))
			assert.Len(t, sender.sent(), test.want)
		})
	}
}

// gatedSender blocks every publish until release is closed
type gatedSender struct {
	fakeSender
	release chan struct{}
}

func (g *gatedSender) PublishMsg(ctx context.Context, subject string, data []byte, msgID string) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.fakeSender.PublishMsg(ctx, subject, data, msgID)
}

func TestSubscribe_DoesNotBlockEmitter(t *testing.T) {
	sender := &gatedSender{release: make(chan struct{})}
	p, _ := newPublisher(sender)
	start(t, p)
	dispatcher := events.NewDispatcher(nil, nil)
	p.Subscribe(dispatcher)

	emitted := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), events.Event{Signal: events.SignalEntityCreated, Kind: model.KindPerson, UID: johnDoe.UID})
		close(emitted)
	}()

	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatal("Emit waited for the broker")
	}
	assert.Empty(t, sender.sent())

	close(sender.release)
	require.NoError(t, p.Stop(time.Second))
	assert.Len(t, sender.sent(), 1)
}

func TestSubscribe_NotStartedDropsRequest(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newPublisher(sender)
	dispatcher := events.NewDispatcher(nil, nil)
	p.Subscribe(dispatcher)

	dispatcher.Emit(context.Background(), events.Event{Signal: events.SignalEntityCreated, Kind: model.KindPerson, UID: johnDoe.UID})
	assert.Empty(t, sender.sent())
}

func TestSubscribe_FailureIsNotPropagated(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	p, published := newPublisher(sender)
	start(t, p)
	metrics := metric.NewMetricsRegistry().CoreMetrics()
	dispatcher := events.NewDispatcher(nil, metrics)
	p.Subscribe(dispatcher)

	dispatcher.Emit(context.Background(), events.Event{Signal: events.SignalEntityCreated, Kind: model.KindPerson, UID: johnDoe.UID})
	require.NoError(t, p.Stop(time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SignalsTotal.WithLabelValues(string(events.SignalEntityCreated), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(published.PublishedTotal.WithLabelValues(subject, "error")))
	assert.Equal(t, int64(1), p.pool.Stats().Failed)
}
