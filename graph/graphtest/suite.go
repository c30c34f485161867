// Package graphtest holds the behaviour every graph.Store implementation
// must share. Implementations run it from their own tests.
package graphtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Factory returns an empty store in the test environment
type Factory func(t *testing.T) graph.Store

// Person returns a valid person with a local identifier and uid
func Person(local string) model.Person {
	return model.Person{
		UID: "local-" + local,
		Names: []model.PersonName{{
			FirstNames: []model.Literal{{Value: "John", Language: "fr"}},
			LastNames:  []model.Literal{{Value: "Doe", Language: "fr"}},
		}},
		Identifiers: []model.Identifier{{Type: "local", Value: local}},
	}
}

// Structure returns a valid research structure with a local identifier and uid
func Structure(local string) model.ResearchStructure {
	return model.ResearchStructure{
		UID:         "local-" + local,
		Acronym:     "LAB",
		Names:       []model.Literal{{Value: "Laboratory " + local, Language: "en"}},
		Identifiers: []model.Identifier{{Type: "local", Value: local}},
	}
}

// Run executes the conformance suite
func Run(t *testing.T, newStore Factory) {
	t.Run("person lifecycle", func(t *testing.T) { personLifecycle(t, newStore(t)) })
	t.Run("person memberships", func(t *testing.T) { personMemberships(t, newStore(t)) })
	t.Run("structure lifecycle", func(t *testing.T) { structureLifecycle(t, newStore(t)) })
	t.Run("concepts", func(t *testing.T) { concepts(t, newStore(t)) })
	t.Run("source records", func(t *testing.T) { sourceRecords(t, newStore(t)) })
	t.Run("reset", func(t *testing.T) { reset(t, newStore(t)) })
}

func personLifecycle(t *testing.T, s graph.Store) {
	ctx := context.Background()
	people := s.People()
	p := Person("jdoe@x.edu")

	exists, err := people.Exists(ctx, p.UID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = people.Get(ctx, p.UID)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = people.Update(ctx, p)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = people.Create(ctx, p)
	require.NoError(t, err)

	_, err = people.Create(ctx, p)
	require.ErrorIs(t, err, errors.ErrConflict)
	assert.Contains(t, err.Error(), p.UID)

	got, err := people.Get(ctx, p.UID)
	require.NoError(t, err)
	assert.Equal(t, p.UID, got.UID)
	assert.ElementsMatch(t, p.Identifiers, got.Identifiers)
	require.Len(t, got.Names, 1)
	assert.Equal(t, "John", got.Names[0].FirstNames[0].Value)

	updated := p
	updated.Identifiers = []model.Identifier{
		{Type: "local", Value: "jdoe@x.edu"},
		{Type: "orcid", Value: "0000-0001-2345-6789"},
	}
	updated.Names = []model.PersonName{{
		FirstNames: []model.Literal{{Value: "Jane", Language: "fr"}},
		LastNames:  []model.Literal{{Value: "Doe", Language: "fr"}},
	}}
	result, err := people.Update(ctx, updated)
	require.NoError(t, err)
	assert.ElementsMatch(t, p.Identifiers, result.PreviousIdentifiers)

	got, err = people.Get(ctx, p.UID)
	require.NoError(t, err)
	assert.ElementsMatch(t, updated.Identifiers, got.Identifiers)
	require.Len(t, got.Names, 1)
	assert.Equal(t, "Jane", got.Names[0].FirstNames[0].Value)

	count, err := s.Global().CountLiterals(ctx, "John")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "names are replaced wholesale")

	count, err = s.Global().CountLiterals(ctx, "Doe")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, err := people.FindByIdentifier(ctx, model.Identifier{Type: "orcid", Value: "0000-0001-2345-6789"})
	require.NoError(t, err)
	assert.Equal(t, p.UID, found.UID)

	_, err = people.FindByIdentifier(ctx, model.Identifier{Type: "idref", Value: "1"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// drop the local identifier, keep orcid
	reduced := updated
	reduced.Identifiers = []model.Identifier{{Type: "orcid", Value: "0000-0001-2345-6789"}}
	_, err = people.Update(ctx, reduced)
	require.NoError(t, err)

	_, err = people.FindByIdentifier(ctx, model.Identifier{Type: "local", Value: "jdoe@x.edu"})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func personMemberships(t *testing.T, s graph.Store) {
	ctx := context.Background()
	lab := Structure("U01")
	require.NoError(t, s.Structures().Create(ctx, lab))

	p := Person("member")
	p.Memberships = []model.Membership{
		{EntityUID: "U01", StartDate: "2020-01-01"},
		{EntityUID: "ghost"},
	}

	result, err := s.People().Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, result.UnlinkedMemberships)

	got, err := s.People().Get(ctx, p.UID)
	require.NoError(t, err)
	require.Len(t, got.Memberships, 1)
	require.NotNil(t, got.Memberships[0].ResearchStructure)
	assert.Equal(t, lab.UID, got.Memberships[0].ResearchStructure.UID)
	assert.Equal(t, "2020-01-01", got.Memberships[0].StartDate)

	p.Memberships = nil
	_, err = s.People().Update(ctx, p)
	require.NoError(t, err)

	got, err = s.People().Get(ctx, p.UID)
	require.NoError(t, err)
	assert.Empty(t, got.Memberships, "memberships are replaced wholesale")
}

func structureLifecycle(t *testing.T, s graph.Store) {
	ctx := context.Background()
	structures := s.Structures()
	lab := Structure("U02")

	require.NoError(t, structures.Create(ctx, lab))
	err := structures.Create(ctx, lab)
	assert.ErrorIs(t, err, errors.ErrConflict)

	lab.Identifiers = append(lab.Identifiers, model.Identifier{Type: "ror", Value: "03yrm5c26"})
	lab.Names = []model.Literal{{Value: "Renamed", Language: "en"}}
	result, err := structures.Update(ctx, lab)
	require.NoError(t, err)
	assert.Len(t, result.PreviousIdentifiers, 1)

	got, err := structures.FindByIdentifier(ctx, model.Identifier{Type: "ror", Value: "03yrm5c26"})
	require.NoError(t, err)
	assert.Equal(t, lab.UID, got.UID)
	assert.Equal(t, "Renamed", got.Names[0].Value)
	assert.Equal(t, "LAB", got.Acronym)

	_, err = structures.Update(ctx, Structure("absent"))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func concepts(t *testing.T, s graph.Store) {
	ctx := context.Background()
	dao := s.Concepts()

	c := model.Concept{
		URI:        "http://www.idref.fr/027818055/id",
		PrefLabels: []model.Literal{{Value: "Physique", Language: "fr"}},
	}
	require.NoError(t, dao.Create(ctx, c))
	assert.ErrorIs(t, dao.Create(ctx, c), errors.ErrConflict)

	c.AltLabels = []model.Literal{{Value: "Sciences physiques", Language: "fr"}}
	require.NoError(t, dao.Update(ctx, c))

	got, err := dao.Get(ctx, c.URI)
	require.NoError(t, err)
	assert.Equal(t, c.AltLabels, got.AltLabels)

	stub := model.Concept{PrefLabels: []model.Literal{{Value: "graphs", Language: "en"}}}
	require.NoError(t, dao.Create(ctx, stub))

	found, err := dao.FindByPrefLabel(ctx, model.Literal{Value: "graphs", Language: "en"})
	require.NoError(t, err)
	assert.Empty(t, found.URI)

	_, err = dao.FindByPrefLabel(ctx, model.Literal{Value: "graphs", Language: "fr"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.ErrorIs(t, dao.Update(ctx, model.Concept{URI: "http://absent"}), errors.ErrNotFound)
}

func sourceRecords(t *testing.T, s graph.Store) {
	ctx := context.Background()
	owner := Person("owner")
	_, err := s.People().Create(ctx, owner)
	require.NoError(t, err)

	subject := model.Concept{URI: "http://concepts/1", PrefLabels: []model.Literal{{Value: "Graphs", Language: "en"}}}
	require.NoError(t, s.Concepts().Create(ctx, subject))

	journal := model.SourceJournal{
		UID: "scanr-J1", Source: "ScanR", SourceIdentifier: "J1", Titles: []string{"Nature"},
		Identifiers: []model.Identifier{{Type: "issn", Value: "0028-0836"}},
	}
	require.NoError(t, s.Journals().Create(ctx, journal))
	assert.ErrorIs(t, s.Journals().Create(ctx, journal), errors.ErrConflict)

	record := model.SourceRecord{
		UID:              "hal-doc-1",
		SourceIdentifier: "doc-1",
		Harvester:        "hal",
		Titles:           []model.Literal{{Value: "On graphs", Language: "en"}},
		Identifiers:      []model.Identifier{{Type: "doi", Value: "10.1/x"}},
		Subjects:         []model.Concept{subject},
		Issue: &model.SourceIssue{
			UID: "scanr-I1", Source: "ScanR", SourceIdentifier: "I1", Volume: "12", Journal: journal,
		},
	}

	err = s.SourceRecords().Create(ctx, record, "local-nobody")
	require.ErrorIs(t, err, errors.ErrReferenceOwnerNotFound)
	exists, err := s.SourceRecords().Exists(ctx, record.UID)
	require.NoError(t, err)
	assert.False(t, exists, "nothing persisted without owner")

	require.NoError(t, s.SourceRecords().Create(ctx, record, owner.UID))
	assert.ErrorIs(t, s.SourceRecords().Create(ctx, record, owner.UID), errors.ErrConflict)

	got, err := s.SourceRecords().Get(ctx, record.UID)
	require.NoError(t, err)
	assert.Equal(t, "On graphs", got.Titles[0].Value)
	require.Len(t, got.Subjects, 1)
	assert.Equal(t, subject.URI, got.Subjects[0].URI)
	require.NotNil(t, got.Issue)
	assert.Equal(t, "12", got.Issue.Volume)
	assert.Equal(t, journal.UID, got.Issue.Journal.UID)

	owners, err := s.SourceRecords().Owners(ctx, record.UID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.UID}, owners)

	record.Titles = []model.Literal{{Value: "On large graphs", Language: "en"}}
	require.NoError(t, s.SourceRecords().Update(ctx, record, owner.UID))
	got, err = s.SourceRecords().Get(ctx, record.UID)
	require.NoError(t, err)
	assert.Equal(t, "On large graphs", got.Titles[0].Value)

	exists, err = graph.Exists(ctx, s, model.KindSourceRecord, record.UID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func reset(t *testing.T, s graph.Store) {
	ctx := context.Background()
	_, err := s.People().Create(ctx, Person("reset"))
	require.NoError(t, err)

	require.NoError(t, s.Global().Ping(ctx))
	require.NoError(t, s.Global().ResetAll(ctx))

	exists, err := s.People().Exists(ctx, "local-reset")
	require.NoError(t, err)
	assert.False(t, exists)
}
