package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/graph/graphtest"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

func TestStoreConformance(t *testing.T) {
	graphtest.Run(t, func(*testing.T) graph.Store { return New("test") })
}

func TestResetRefusedInProd(t *testing.T) {
	s := New("prod")
	err := s.Global().ResetAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrResetRefused)
}

func TestFailedWriteLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New("test")

	_, err := s.People().Create(ctx, graphtest.Person("owner"))
	require.NoError(t, err)

	record := model.SourceRecord{
		UID: "hal-1", SourceIdentifier: "1", Harvester: "hal",
		Titles: []model.Literal{{Value: "t"}},
		Issue: &model.SourceIssue{
			UID: "x-I", Source: "x", SourceIdentifier: "I",
			Journal: model.SourceJournal{UID: "x-absent", Source: "x", SourceIdentifier: "absent"},
		},
	}
	err = s.SourceRecords().Create(ctx, record, "local-owner")
	require.ErrorIs(t, err, errors.ErrValidation)

	assert.Empty(t, s.state.records)
	assert.Empty(t, s.state.issues)
}

func TestReturnedValuesAreDetached(t *testing.T) {
	ctx := context.Background()
	s := New("test")
	p := graphtest.Person("jdoe")
	_, err := s.People().Create(ctx, p)
	require.NoError(t, err)

	p.Identifiers[0].Value = "mutated"
	got, err := s.People().Get(ctx, "local-jdoe")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Identifiers[0].Value)

	got.Names[0].FirstNames[0].Value = "mutated"
	again, err := s.People().Get(ctx, "local-jdoe")
	require.NoError(t, err)
	assert.Equal(t, "John", again.Names[0].FirstNames[0].Value)
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New("test")

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.People().Create(ctx, graphtest.Person("race"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, errors.ErrConflict)
	}
	assert.Equal(t, 1, created)
}
