package reconcile

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// ConceptService reconciles concepts
type ConceptService struct {
	base
}

// NewConceptService creates a ConceptService
func NewConceptService(deps Dependencies) *ConceptService {
	return &ConceptService{base: newBase(deps, "concept-service")}
}

// CreateOrUpdateConcept persists c and returns the stored concept. A concept
// with a uri is merged into the stored one; a uri-less concept matching a
// stored stub on its preferred label resolves to that stub.
func (s *ConceptService) CreateOrUpdateConcept(ctx context.Context, c model.Concept) (model.Concept, error) {
	if err := c.Validate(); err != nil {
		s.record(model.KindConcept, OutcomeInvalid)
		return model.Concept{}, err
	}
	if c.URI == "" {
		return s.resolveStub(ctx, c)
	}

	existing, err := s.store.Concepts().Get(ctx, c.URI)
	switch {
	case errors.IsNotFound(err):
		err = s.store.Concepts().Create(ctx, c)
		if err == nil {
			s.record(model.KindConcept, OutcomeCreated)
			return c, nil
		}
		if !errors.IsConflict(err) {
			s.record(model.KindConcept, outcomeOf(err))
			return model.Concept{}, err
		}
		// created concurrently, merge into it
		if existing, err = s.store.Concepts().Get(ctx, c.URI); err != nil {
			s.record(model.KindConcept, outcomeOf(err))
			return model.Concept{}, err
		}
	case err != nil:
		s.record(model.KindConcept, outcomeOf(err))
		return model.Concept{}, err
	}

	merged := existing.Merge(c)
	if err := s.store.Concepts().Update(ctx, merged); err != nil {
		s.record(model.KindConcept, outcomeOf(err))
		return model.Concept{}, err
	}
	s.record(model.KindConcept, OutcomeUpdated)
	return merged, nil
}

func (s *ConceptService) resolveStub(ctx context.Context, c model.Concept) (model.Concept, error) {
	label := c.PrefLabels[0]
	found, err := s.store.Concepts().FindByPrefLabel(ctx, label)
	if err == nil {
		return found, nil
	}
	if !errors.IsNotFound(err) {
		return model.Concept{}, err
	}

	err = s.store.Concepts().Create(ctx, c)
	if errors.IsConflict(err) {
		return s.store.Concepts().FindByPrefLabel(ctx, label)
	}
	if err != nil {
		s.record(model.KindConcept, outcomeOf(err))
		return model.Concept{}, err
	}
	s.record(model.KindConcept, OutcomeCreated)
	return c, nil
}

// GetConcept loads a concept by uri
func (s *ConceptService) GetConcept(ctx context.Context, uri string) (model.Concept, error) {
	return s.store.Concepts().Get(ctx, uri)
}
