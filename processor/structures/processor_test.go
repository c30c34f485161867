package structures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/consumer"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph/memstore"
	"github.com/CRISalid-esr/crisalid-ikg/identifier"
	"github.com/CRISalid-esr/crisalid-ikg/reconcile"
)

const lip6 = `{"acronym":"LIP6","names":[{"value":"Laboratoire d'informatique de Paris 6","language":"fr"}],"identifiers":[{"type":"local","value":"U01"}]}`

func event(kind, data string) []byte {
	return []byte(`{"structures_event":{"type":"` + kind + `","data":` + data + `}}`)
}

func newService(t *testing.T) *reconcile.StructureService {
	t.Helper()
	ids, err := identifier.NewService([]string{"local", "orcid"}, []string{"local", "idref", "ror"})
	require.NoError(t, err)
	return reconcile.NewStructureService(reconcile.Dependencies{Store: memstore.New("test"), Identifiers: ids})
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		persisted bool
	}{
		{"created", "created", true},
		{"updated absent structure", "updated", true},
		{"unchanged", "unchanged", true},
		{"deleted", "deleted", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			service := newService(t)
			p := New(service, nil)
			ctx := context.Background()

			require.NoError(t, p.Process(ctx, "event.structures.structure."+test.kind, event(test.kind, lip6)))

			structure, err := service.GetStructure(ctx, "local-U01")
			if !test.persisted {
				assert.True(t, errors.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "LIP6", structure.Acronym)
		})
	}
}

func TestProcess_UpdateReplacesAcronym(t *testing.T) {
	service := newService(t)
	p := New(service, nil)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, "event.structures.structure.created", event("created", lip6)))
	renamed := `{"acronym":"LIP6-SU","names":[],"identifiers":[{"type":"local","value":"U01"}]}`
	require.NoError(t, p.Process(ctx, "event.structures.structure.updated", event("updated", renamed)))

	structure, err := service.GetStructure(ctx, "local-U01")
	require.NoError(t, err)
	assert.Equal(t, "LIP6-SU", structure.Acronym)
}

func TestProcess_RejectsInvalidEnvelope(t *testing.T) {
	p := New(newService(t), nil)

	err := p.Process(context.Background(), "event.structures.structure.created", []byte(`{"people_event":{}}`))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRegister(t *testing.T) {
	registry := consumer.NewRegistry(Topic)
	require.NoError(t, Register(registry))
	assert.Error(t, Register(registry), "duplicate registration")

	processor, err := registry.Create(Topic, consumer.Dependencies{Structures: newService(t)})
	require.NoError(t, err)
	assert.IsType(t, &Processor{}, processor)
}
