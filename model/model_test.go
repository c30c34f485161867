package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

func person(ids ...Identifier) Person {
	return Person{
		Names: []PersonName{{
			FirstNames: []Literal{{Value: "John", Language: "fr"}},
			LastNames:  []Literal{{Value: "Doe", Language: "fr"}},
		}},
		Identifiers: ids,
	}
}

func TestPerson_Validate(t *testing.T) {
	tests := []struct {
		name    string
		person  Person
		wantErr bool
	}{
		{"local only", person(Identifier{"local", "jdoe@x.edu"}), false},
		{"valid orcid", person(Identifier{"orcid", "0000-0002-1825-009X"}), false},
		{"all patterns", person(
			Identifier{"idref", "123456789"},
			Identifier{"id_hal_s", "john-doe"},
			Identifier{"id_hal_i", "42"},
			Identifier{"scopus_eid", "5701234"},
		), false},
		{"no identifier", person(), true},
		{"bad orcid", person(Identifier{"orcid", "0000-0002-1825"}), true},
		{"idref too long", person(Identifier{"idref", "1234567890"}), true},
		{"hal slug uppercase", person(Identifier{"id_hal_s", "John-Doe"}), true},
		{"unknown type", person(Identifier{"ror", "03yrm5c26"}), true},
		{"duplicate type", person(Identifier{"local", "a"}, Identifier{"local", "b"}), true},
		{"empty value", person(Identifier{"local", ""}), true},
		{"bad membership date", Person{
			Identifiers: []Identifier{{"local", "a"}},
			Memberships: []Membership{{EntityUID: "U01", StartDate: "01/02/2020"}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.person.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPerson_WithUIDDoesNotMutate(t *testing.T) {
	p := person(Identifier{"local", "jdoe"})
	q := p.WithUID("local-jdoe")

	assert.Empty(t, p.UID)
	assert.Equal(t, "local-jdoe", q.UID)
}

func TestPerson_DisplayName(t *testing.T) {
	assert.Equal(t, "John Doe", person(Identifier{"local", "x"}).DisplayName())

	nameless := Person{UID: "local-x", Identifiers: []Identifier{{"local", "x"}}}
	assert.Equal(t, "local-x", nameless.DisplayName())

	lastOnly := Person{Names: []PersonName{{LastNames: []Literal{{Value: "Doe"}}}}}
	assert.Equal(t, "Doe", lastOnly.DisplayName())
}

func TestMembership_Normalized(t *testing.T) {
	tests := []struct {
		name      string
		entityUID string
		expected  Identifier
	}{
		{"no prefix", "U123", Identifier{"local", "U123"}},
		{"typed prefix", "ror-03yrm5c26", Identifier{"ror", "03yrm5c26"}},
		{"local prefix", "local-U123", Identifier{"local", "U123"}},
		{"unknown prefix", "orcid-0000", Identifier{"local", "orcid-0000"}},
		{"dangling separator", "ror-", Identifier{"local", "ror-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Membership{EntityUID: tt.entityUID}
			n := m.Normalized()

			assert.Nil(t, m.ResearchStructure, "input is left untouched")
			require.NotNil(t, n.ResearchStructure)
			assert.Equal(t, []Identifier{tt.expected}, n.ResearchStructure.Identifiers)
		})
	}

	explicit := &ResearchStructure{Identifiers: []Identifier{{"idref", "1"}}}
	m := Membership{EntityUID: "U1", ResearchStructure: explicit}
	assert.Same(t, explicit, m.Normalized().ResearchStructure)
}

func TestResearchStructure_Validate(t *testing.T) {
	ok := ResearchStructure{Names: []Literal{{Value: "Lab"}}, Identifiers: []Identifier{{"local", "U01"}, {"ror", "x"}}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, ResearchStructure{}.Validate())
	assert.Error(t, ResearchStructure{Identifiers: []Identifier{{"orcid", "x"}}}.Validate())
	assert.Error(t, ResearchStructure{Identifiers: []Identifier{{"rnsr", "a"}, {"rnsr", "b"}}}.Validate())
}

func TestConcept_Validate(t *testing.T) {
	tests := []struct {
		name    string
		concept Concept
		wantErr bool
	}{
		{"uri with labels", Concept{URI: "http://x/1", PrefLabels: []Literal{{"a", "en"}, {"b", "fr"}}, AltLabels: []Literal{{"c", "en"}}}, false},
		{"stub", Concept{PrefLabels: []Literal{{"physics", "en"}}}, false},
		{"stub without label", Concept{}, true},
		{"stub with two labels", Concept{PrefLabels: []Literal{{"a", "en"}, {"b", "fr"}}}, true},
		{"stub with alt label", Concept{PrefLabels: []Literal{{"a", "en"}}, AltLabels: []Literal{{"b", "en"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.concept.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "%v", err)
		})
	}
}

func TestConcept_Merge(t *testing.T) {
	existing := Concept{
		URI:        "http://x/1",
		PrefLabels: []Literal{{"Physique", "fr"}, {"Physics", "en"}},
		AltLabels:  []Literal{{"phys", "en"}},
	}
	incoming := Concept{
		URI:        "http://x/1",
		PrefLabels: []Literal{{"Sciences physiques", "fr"}, {"Fisica", "es"}},
		AltLabels:  []Literal{{"phys", "en"}, {"physique", "fr"}},
	}

	merged := existing.Merge(incoming)

	assert.Equal(t, []Literal{{"Sciences physiques", "fr"}, {"Physics", "en"}, {"Fisica", "es"}}, merged.PrefLabels)
	assert.Equal(t, []Literal{{"phys", "en"}, {"physique", "fr"}}, merged.AltLabels)
	assert.Equal(t, []Literal{{"Physique", "fr"}, {"Physics", "en"}}, existing.PrefLabels, "receiver is not mutated")

	again := merged.Merge(Concept{URI: "http://x/1"})
	assert.Len(t, again.AltLabels, 2, "alt labels never shrink")
}

func TestSourceJournal_Identifiers(t *testing.T) {
	var j SourceJournal
	err := json.Unmarshal([]byte(`{
		"source": "ScanR",
		"source_identifier": "J1",
		"titles": ["Nature"],
		"issn": ["0028-0836", "0028-0836"],
		"eissn": ["1476-4687"],
		"issn_l": "0028-0836"
	}`), &j)
	require.NoError(t, err)

	assert.Equal(t, []Identifier{
		{JournalIdentifierISSN, "0028-0836"},
		{JournalIdentifierEISSN, "1476-4687"},
	}, j.Identifiers)
	assert.Equal(t, "scanr-J1", j.ComputeUID())
	assert.NoError(t, j.Validate())
}

func TestJournalIdentifiers_IssnLFolded(t *testing.T) {
	ids := JournalIdentifiers(nil, []string{"1111-1111"}, "2222-2222")
	assert.Equal(t, []Identifier{{"issn", "2222-2222"}, {"eissn", "1111-1111"}}, ids)
}

func TestSourceRecord(t *testing.T) {
	r := SourceRecord{
		SourceIdentifier: "doc-1",
		Harvester:        "hal",
		Titles:           []Literal{{Value: "On graphs", Language: "en"}},
		Identifiers:      []Identifier{{"doi", "10.1/x"}},
		Subjects:         []Concept{{PrefLabels: []Literal{{"graphs", "en"}}}},
	}
	require.NoError(t, r.Validate())
	assert.Equal(t, "hal-doc-1", r.ComputeUID())

	noTitle := r
	noTitle.Titles = nil
	assert.Error(t, noTitle.Validate())

	badID := r
	badID.Identifiers = []Identifier{{"orcid", "x"}}
	assert.Error(t, badID.Validate())

	badSubject := r
	badSubject.Subjects = []Concept{{}}
	assert.Error(t, badSubject.Validate())
}

func TestKind(t *testing.T) {
	var entities = []Entity{Person{}, ResearchStructure{}, Concept{}, SourceRecord{}, SourceJournal{}}
	for i, e := range entities {
		assert.Equal(t, Kinds[i], e.Kind())
		assert.True(t, e.Kind().Valid())
	}
	assert.False(t, Kind("organisation").Valid())

	var _ Agent = Person{}
	var _ Agent = ResearchStructure{}
}
