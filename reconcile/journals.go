package reconcile

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// SourceJournalService reconciles source journals
type SourceJournalService struct {
	base
}

// NewSourceJournalService creates a SourceJournalService
func NewSourceJournalService(deps Dependencies) *SourceJournalService {
	return &SourceJournalService{base: newBase(deps, "journal-service")}
}

// CreateOrUpdateSourceJournal creates j when its uid is unknown. Otherwise
// titles and publisher are replaced and identifiers merged by value.
func (s *SourceJournalService) CreateOrUpdateSourceJournal(ctx context.Context, j model.SourceJournal) (model.SourceJournal, error) {
	if err := j.Validate(); err != nil {
		s.record(model.KindSourceJournal, OutcomeInvalid)
		return model.SourceJournal{}, err
	}
	if j.UID == "" {
		j = j.WithUID(j.ComputeUID())
	}

	exists, err := s.store.Journals().Exists(ctx, j.UID)
	if err != nil {
		s.record(model.KindSourceJournal, outcomeOf(err))
		return model.SourceJournal{}, err
	}
	if !exists {
		err = s.store.Journals().Create(ctx, j)
		if err == nil {
			s.record(model.KindSourceJournal, OutcomeCreated)
			return j, nil
		}
		if !errors.IsConflict(err) {
			s.record(model.KindSourceJournal, outcomeOf(err))
			return model.SourceJournal{}, err
		}
	}

	existing, err := s.store.Journals().Get(ctx, j.UID)
	if err != nil {
		s.record(model.KindSourceJournal, outcomeOf(err))
		return model.SourceJournal{}, err
	}
	merged := existing
	merged.Titles = j.Titles
	merged.Publisher = j.Publisher
	merged.Identifiers = model.MergeIdentifiers(existing.Identifiers, j.Identifiers)
	if err := s.store.Journals().Update(ctx, merged); err != nil {
		s.record(model.KindSourceJournal, outcomeOf(err))
		return model.SourceJournal{}, err
	}
	s.record(model.KindSourceJournal, OutcomeUpdated)
	return merged, nil
}

// GetSourceJournal loads a journal by uid
func (s *SourceJournalService) GetSourceJournal(ctx context.Context, uid string) (model.SourceJournal, error) {
	return s.store.Journals().Get(ctx, uid)
}
