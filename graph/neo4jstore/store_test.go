package neo4jstore

import (
	stderrors "errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "unique constraint",
			err:      &neo4j.Neo4jError{Code: constraintViolation, Msg: "Node(1) already exists with label `Person` and property `uid` = 'local-x'"},
			sentinel: errors.ErrConflict,
		},
		{
			name:     "syntax error",
			err:      &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad"},
			sentinel: errors.ErrValidation,
		},
		{
			name:     "transient",
			err:      &neo4j.Neo4jError{Code: "Neo.TransientError.Transaction.DeadlockDetected", Msg: "deadlock"},
			sentinel: errors.ErrStorage,
		},
		{
			name:     "connection",
			err:      stderrors.New("connection reset by peer"),
			sentinel: errors.ErrStorage,
		},
		{
			name:     "domain error passes through",
			err:      errors.NotFoundf("Person with uid %s does not exist", "local-x"),
			sentinel: errors.ErrNotFound,
		},
		{
			name:     "owner error passes through",
			err:      errors.ReferenceOwnerNotFoundf("Person with uid %s does not exist", "local-x"),
			sentinel: errors.ErrReferenceOwnerNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(test.err, "Test"), test.sentinel)
		})
	}

	assert.NoError(t, translate(nil, "Test"))
}

func TestTranslate_ConflictKeepsMessage(t *testing.T) {
	err := translate(&neo4j.Neo4jError{Code: constraintViolation, Msg: "property `uid` = 'local-jdoe'"}, "CreatePerson")
	assert.Contains(t, err.Error(), "local-jdoe")
}

func TestPersonRow_ToModel(t *testing.T) {
	fr := "fr"
	start := "2020-01-01"
	raw := map[string]any{
		"uid":         "local-jdoe",
		"identifiers": []any{map[string]any{"type": "orcid", "value": "0000"}, map[string]any{"type": "local", "value": "jdoe"}},
		"names": []any{
			map[string]any{
				"position":    int64(1),
				"first_names": []any{map[string]any{"position": int64(0), "value": "Johnny", "language": nil}},
			},
			map[string]any{
				"position": int64(0),
				"first_names": []any{
					map[string]any{"position": int64(1), "value": "Paul", "language": fr},
					map[string]any{"position": int64(0), "value": "John", "language": fr},
				},
				"last_names": []any{map[string]any{"position": int64(0), "value": "Doe", "language": fr}},
			},
		},
		"memberships": []any{
			map[string]any{
				"entity_uid": "U01",
				"start_date": start,
				"end_date":   nil,
				"past":       false,
				"future":     false,
				"structure": map[string]any{
					"uid":         "local-U01",
					"acronym":     nil,
					"names":       []any{},
					"identifiers": []any{map[string]any{"type": "local", "value": "U01"}},
				},
			},
		},
	}

	var row personRow
	require.NoError(t, decode(raw, &row))
	p := row.toModel()

	assert.Equal(t, "local-jdoe", p.UID)
	assert.Equal(t, []model.Identifier{{Type: "local", Value: "jdoe"}, {Type: "orcid", Value: "0000"}}, p.Identifiers)
	require.Len(t, p.Names, 2)
	assert.Equal(t, []model.Literal{{Value: "John", Language: "fr"}, {Value: "Paul", Language: "fr"}}, p.Names[0].FirstNames)
	assert.Equal(t, []model.Literal{{Value: "Johnny"}}, p.Names[1].FirstNames)
	require.Len(t, p.Memberships, 1)
	assert.Equal(t, "2020-01-01", p.Memberships[0].StartDate)
	assert.Empty(t, p.Memberships[0].EndDate)
	assert.Equal(t, "local-U01", p.Memberships[0].ResearchStructure.UID)
	assert.Empty(t, p.Memberships[0].ResearchStructure.Acronym)
}

func TestRecordRow_ToModel(t *testing.T) {
	rank := 2
	row := recordRow{
		UID:       "hal-1",
		Harvester: "hal",
		Titles:    []literalRow{{Position: 0, Value: "On graphs"}},
		Contributions: []contributionRow{
			{Position: 1, Rank: &rank, Name: "B"},
			{Position: 0, Name: "A"},
		},
		Issues: []issueRow{{UID: "scanr-I1", Journal: journalRow{UID: "scanr-J1", Titles: []string{"Nature"}}}},
	}

	r := row.toModel()
	require.Len(t, r.Contributions, 2)
	assert.Equal(t, "A", r.Contributions[0].Contributor.Name)
	assert.Nil(t, r.Contributions[0].Rank)
	assert.Equal(t, 2, *r.Contributions[1].Rank)
	require.NotNil(t, r.Issue)
	assert.Equal(t, "scanr-J1", r.Issue.Journal.UID)
}

func TestLiteralParams(t *testing.T) {
	params := literalParams([]model.Literal{{Value: "a", Language: "en"}, {Value: "b"}})
	require.Len(t, params, 2)
	assert.Equal(t, 1, params[1]["position"])
	assert.Equal(t, "en", params[0]["language"])
	assert.Nil(t, params[1]["language"])
}
