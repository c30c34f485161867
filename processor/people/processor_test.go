package people

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/consumer"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph/memstore"
	"github.com/CRISalid-esr/crisalid-ikg/identifier"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/reconcile"
)

const johnDoe = `{"names":[{"first_names":[{"value":"John","language":"fr"}],"last_names":[{"value":"Doe","language":"fr"}]}],"identifiers":[{"type":"local","value":"a@x.edu"},{"type":"orcid","value":"0000-0001-2345-6789"}],"memberships":[]}`

func event(kind, data string) []byte {
	return []byte(`{"people_event":{"type":"` + kind + `","data":` + data + `}}`)
}

func newProcessor(t *testing.T) (*Processor, *reconcile.PeopleService) {
	t.Helper()
	ids, err := identifier.NewService([]string{"local", "orcid", "idref"}, []string{"local", "idref", "ror"})
	require.NoError(t, err)
	service := reconcile.NewPeopleService(reconcile.Dependencies{
		Store:       memstore.New("test"),
		Identifiers: ids,
		Metrics:     metric.NewMetricsRegistry().CoreMetrics(),
	})
	return New(service, nil), service
}

func TestProcess_PersistsPerson(t *testing.T) {
	for _, kind := range []string{"created", "updated", "unchanged"} {
		t.Run(kind, func(t *testing.T) {
			p, service := newProcessor(t)
			ctx := context.Background()

			require.NoError(t, p.Process(ctx, "event.people.person."+kind, event(kind, johnDoe)))

			person, err := service.GetPerson(ctx, "local-a@x.edu")
			require.NoError(t, err)
			assert.Equal(t, "John Doe", person.DisplayName())
		})
	}
}

func TestProcess_RepeatedCreateUpdatesPerson(t *testing.T) {
	p, service := newProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, "event.people.person.created", event("created", johnDoe)))
	renamed := `{"names":[{"first_names":[{"value":"Jane","language":"fr"}],"last_names":[{"value":"Doe","language":"fr"}]}],"identifiers":[{"type":"local","value":"a@x.edu"}],"memberships":[]}`
	require.NoError(t, p.Process(ctx, "event.people.person.created", event("created", renamed)))

	person, err := service.GetPerson(ctx, "local-a@x.edu")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", person.DisplayName())
}

func TestProcess_DeletedIsIgnored(t *testing.T) {
	p, service := newProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, "event.people.person.deleted", event("deleted", johnDoe)))

	_, err := service.GetPerson(ctx, "local-a@x.edu")
	assert.True(t, errors.IsNotFound(err))
}

func TestProcess_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		check   func(error) bool
	}{
		{"malformed envelope", []byte(`{"people_event":{"type":"created"}}`), errors.IsValidation},
		{"unknown event type", event("merged", johnDoe), errors.IsValidation},
		{"no identifiers", event("created", `{"names":[],"identifiers":[],"memberships":[]}`), errors.IsValidation},
		{"no usable identifier", event("created", `{"names":[],"identifiers":[{"type":"scopus_eid","value":"123"}],"memberships":[]}`),
			func(err error) bool { return errors.Is(err, errors.ErrMissingIdentifier) || errors.IsValidation(err) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, _ := newProcessor(t)
			err := p.Process(context.Background(), "event.people.person.created", test.payload)
			require.Error(t, err)
			assert.True(t, test.check(err), "unexpected error class: %v", err)
		})
	}
}

func TestRegister(t *testing.T) {
	registry := consumer.NewRegistry(Topic)
	require.NoError(t, Register(registry))

	_, err := registry.Create(Topic, consumer.Dependencies{})
	assert.Error(t, err, "people service is required")

	_, service := newProcessor(t)
	processor, err := registry.Create(Topic, consumer.Dependencies{People: service})
	require.NoError(t, err)
	assert.IsType(t, &Processor{}, processor)
}
