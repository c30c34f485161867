package reconcile

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// StructureService reconciles research structures
type StructureService struct {
	base
}

// NewStructureService creates a StructureService
func NewStructureService(deps Dependencies) *StructureService {
	return &StructureService{base: newBase(deps, "structure-service")}
}

func (s *StructureService) prepare(rs model.ResearchStructure) (model.ResearchStructure, error) {
	if err := rs.Validate(); err != nil {
		return model.ResearchStructure{}, err
	}
	uid, err := s.uidFor(rs, rs.UID)
	if err != nil {
		return model.ResearchStructure{}, err
	}
	return rs.WithUID(uid), nil
}

// CreateStructure persists a new research structure
func (s *StructureService) CreateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error) {
	rs, err := s.prepare(rs)
	if err != nil {
		s.record(model.KindResearchStructure, OutcomeInvalid)
		return model.ResearchStructure{}, err
	}
	if err := s.store.Structures().Create(ctx, rs); err != nil {
		s.record(model.KindResearchStructure, outcomeOf(err))
		return model.ResearchStructure{}, err
	}

	s.record(model.KindResearchStructure, OutcomeCreated)
	s.logger.Debug("Research structure created", "uid", rs.UID)
	s.emit(ctx, events.SignalEntityCreated, model.KindResearchStructure, rs.UID)
	return rs, nil
}

// UpdateStructure replaces names and descriptions of a persisted structure
// and reconciles its identifiers
func (s *StructureService) UpdateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error) {
	rs, err := s.prepare(rs)
	if err != nil {
		s.record(model.KindResearchStructure, OutcomeInvalid)
		return model.ResearchStructure{}, err
	}
	result, err := s.store.Structures().Update(ctx, rs)
	if err != nil {
		s.record(model.KindResearchStructure, outcomeOf(err))
		return model.ResearchStructure{}, err
	}

	s.record(model.KindResearchStructure, OutcomeUpdated)
	s.logger.Debug("Research structure updated", "uid", rs.UID)
	s.afterUpdate(ctx, model.KindResearchStructure, rs.UID, result.PreviousIdentifiers, rs.Identifiers)
	return rs, nil
}

// CreateOrUpdateStructure creates rs and falls back to an update on Conflict
func (s *StructureService) CreateOrUpdateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error) {
	created, err := s.CreateStructure(ctx, rs)
	if errors.IsConflict(err) {
		return s.UpdateStructure(ctx, rs)
	}
	return created, err
}

// UpdateOrCreateStructure updates rs and falls back to a create on NotFound
func (s *StructureService) UpdateOrCreateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error) {
	updated, err := s.UpdateStructure(ctx, rs)
	if errors.IsNotFound(err) {
		return s.CreateStructure(ctx, rs)
	}
	return updated, err
}

// GetStructure loads a research structure by uid
func (s *StructureService) GetStructure(ctx context.Context, uid string) (model.ResearchStructure, error) {
	return s.store.Structures().Get(ctx, uid)
}

// FindStructure looks rs up by its identifiers in priority order
func (s *StructureService) FindStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error) {
	for _, id := range orderByPriority(rs.Identifiers, s.identifiers.Priority(model.KindResearchStructure)) {
		found, err := s.store.Structures().FindByIdentifier(ctx, id)
		if err == nil || !errors.IsNotFound(err) {
			return found, err
		}
	}
	return model.ResearchStructure{}, errors.NotFoundf("no research structure matches the given identifiers")
}
