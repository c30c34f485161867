package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

func newService(t *testing.T, people ...string) *Service {
	t.Helper()
	if len(people) == 0 {
		people = []string{"local", "orcid", "idref"}
	}
	s, err := NewService(people, []string{"local", "idref", "ror"})
	require.NoError(t, err)
	return s
}

func TestNewService_RejectsBadPriorities(t *testing.T) {
	_, err := NewService(nil, []string{"local"})
	assert.True(t, errors.IsFatal(err))

	_, err = NewService([]string{"local", "ror"}, []string{"local"})
	assert.True(t, errors.IsFatal(err))

	_, err = NewService([]string{"local"}, []string{"orcid"})
	assert.True(t, errors.IsFatal(err))
}

func TestComputeUID(t *testing.T) {
	p := model.Person{Identifiers: []model.Identifier{
		{Type: "idref", Value: "123"},
		{Type: "orcid", Value: "0000-0001-2345-6789"},
	}}

	tests := []struct {
		name     string
		priority []string
		expected string
	}{
		{"local missing falls to orcid", []string{"local", "orcid", "idref"}, "orcid-0000-0001-2345-6789"},
		{"reordered priority", []string{"idref", "orcid", "local"}, "idref-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, err := newService(t, tt.priority...).ComputeUID(p)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, uid)
		})
	}

	t.Run("local value containing separator", func(t *testing.T) {
		uid, err := newService(t).ComputeUID(model.Person{Identifiers: []model.Identifier{{Type: "local", Value: "j-doe@x.edu"}}})
		require.NoError(t, err)
		assert.Equal(t, "local-j-doe@x.edu", uid)
	})

	t.Run("structure", func(t *testing.T) {
		s := model.ResearchStructure{Identifiers: []model.Identifier{{Type: "rnsr", Value: "1"}, {Type: "ror", Value: "abc"}}}
		uid, err := newService(t).ComputeUID(s)
		require.NoError(t, err)
		assert.Equal(t, "ror-abc", uid)
	})
}

func TestComputeUID_MissingIdentifier(t *testing.T) {
	p := model.Person{Identifiers: []model.Identifier{{Type: "scopus_eid", Value: "42"}}}

	_, err := newService(t).ComputeUID(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingIdentifier)
}

func TestIdentifierFromUID(t *testing.T) {
	s := newService(t)

	id, err := s.IdentifierFromUID(model.KindPerson, "local-j-doe@x.edu")
	require.NoError(t, err)
	assert.Equal(t, model.Identifier{Type: "local", Value: "j-doe@x.edu"}, id)

	id, err = s.IdentifierFromUID(model.KindResearchStructure, "ror-03yrm5c26")
	require.NoError(t, err)
	assert.Equal(t, model.Identifier{Type: "ror", Value: "03yrm5c26"}, id)

	for _, bad := range []string{"nodash", "-value", "local-", "ror-abc"} {
		t.Run(bad, func(t *testing.T) {
			_, err := s.IdentifierFromUID(model.KindPerson, bad)
			assert.ErrorIs(t, err, errors.ErrInvalidUIDFormat)
		})
	}
}

func TestIdentifiersAreIdentical(t *testing.T) {
	a := model.Identifier{Type: "local", Value: "a"}
	b := model.Identifier{Type: "orcid", Value: "0000-0001-2345-6789"}
	c := model.Identifier{Type: "idref", Value: "1"}

	tests := []struct {
		name     string
		x, y     []model.Identifier
		expected bool
	}{
		{"both empty", nil, nil, true},
		{"same order", []model.Identifier{a, b}, []model.Identifier{a, b}, true},
		{"different order", []model.Identifier{a, b}, []model.Identifier{b, a}, true},
		{"one replaced", []model.Identifier{a, b}, []model.Identifier{a, c}, false},
		{"subset", []model.Identifier{a}, []model.Identifier{a, b}, false},
		{"same type other value", []model.Identifier{a}, []model.Identifier{{Type: "local", Value: "z"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IdentifiersAreIdentical(tt.x, tt.y))
			assert.Equal(t, tt.expected, IdentifiersAreIdentical(tt.y, tt.x))
		})
	}
}

func TestDiff(t *testing.T) {
	a := model.Identifier{Type: "local", Value: "a"}
	b := model.Identifier{Type: "orcid", Value: "0000-0001-2345-6789"}
	c := model.Identifier{Type: "idref", Value: "1"}

	removed, added := Diff([]model.Identifier{a, b}, []model.Identifier{a, c})
	assert.Equal(t, []model.Identifier{b}, removed)
	assert.Equal(t, []model.Identifier{c}, added)

	removed, added = Diff([]model.Identifier{a}, []model.Identifier{a})
	assert.Empty(t, removed)
	assert.Empty(t, added)
}
