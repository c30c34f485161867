// Package memstore is an in-memory implementation of graph.Store.
//
// All operations serialize on one lock. A write works on a copy of the state
// that replaces the current one only when the whole operation succeeds, so
// partial writes are never visible.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Store is a transactional in-memory graph store
type Store struct {
	mu    sync.RWMutex
	state state
	env   string
}

var _ graph.Store = (*Store)(nil)

// New creates an empty store. env gates ResetAll.
func New(env string) *Store {
	return &Store{state: newState(), env: env}
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// People implements graph.Store
func (s *Store) People() graph.PersonDAO { return peopleDAO{s} }

// Structures implements graph.Store
func (s *Store) Structures() graph.StructureDAO { return structureDAO{s} }

// Concepts implements graph.Store
func (s *Store) Concepts() graph.ConceptDAO { return conceptDAO{s} }

// Journals implements graph.Store
func (s *Store) Journals() graph.JournalDAO { return journalDAO{s} }

// SourceRecords implements graph.Store
func (s *Store) SourceRecords() graph.SourceRecordDAO { return recordDAO{s} }

// Global implements graph.Store
func (s *Store) Global() graph.GlobalDAO { return globalDAO{s} }

// Close implements graph.Store
func (s *Store) Close(context.Context) error { return nil }

type globalDAO struct{ s *Store }

func (g globalDAO) Setup(context.Context) error { return nil }

func (g globalDAO) Ping(context.Context) error { return nil }

func (g globalDAO) ResetAll(context.Context) error {
	if !graph.ResetAllowed(g.s.env) {
		return errors.WrapFatal(graph.ErrResetRefused, "memstore", "ResetAll", fmt.Sprintf("reset %s graph", g.s.env))
	}
	return g.s.write(func(st *state) error {
		*st = newState()
		return nil
	})
}

func (g globalDAO) CountLiterals(_ context.Context, value string) (int, error) {
	count := 0
	countIn := func(list []model.Literal) {
		for _, l := range list {
			if l.Value == value {
				count++
			}
		}
	}
	err := g.s.read(func(st *state) error {
		for _, n := range st.people {
			for _, name := range n.person.Names {
				countIn(name.FirstNames)
				countIn(name.LastNames)
				countIn(name.OtherNames)
			}
		}
		for _, rs := range st.structures {
			countIn(rs.Names)
			countIn(rs.Descriptions)
		}
		for _, c := range st.concepts {
			countIn(c.PrefLabels)
			countIn(c.AltLabels)
		}
		for _, r := range st.records {
			countIn(r.record.Titles)
			countIn(r.record.Abstracts)
		}
		return nil
	})
	return count, err
}

// findStructure resolves a normalized membership target: by uid first,
// then by each identifier in order.
func findStructure(st *state, target model.ResearchStructure) (string, bool) {
	if target.UID != "" {
		if _, ok := st.structures[target.UID]; ok {
			return target.UID, true
		}
	}
	for _, id := range target.Identifiers {
		if uid, ok := structureByIdentifier(st, id); ok {
			return uid, true
		}
	}
	return "", false
}

func structureByIdentifier(st *state, id model.Identifier) (string, bool) {
	var matches []string
	for uid, rs := range st.structures {
		for _, candidate := range rs.Identifiers {
			if candidate == id {
				matches = append(matches, uid)
				break
			}
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}
