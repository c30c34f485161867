package reconcile

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// SourceRecordService reconciles source records and their sub-entities
type SourceRecordService struct {
	base
	concepts *ConceptService
	journals *SourceJournalService
}

// NewSourceRecordService creates a SourceRecordService with its own
// concept and journal services
func NewSourceRecordService(deps Dependencies) *SourceRecordService {
	return &SourceRecordService{
		base:     newBase(deps, "source-record-service"),
		concepts: NewConceptService(deps),
		journals: NewSourceJournalService(deps),
	}
}

// CreateSourceRecord persists r as harvested for owner. The owner must
// already exist. Subjects and the issue journal are reconciled first; one
// that fails is logged and left out.
func (s *SourceRecordService) CreateSourceRecord(ctx context.Context, r model.SourceRecord, owner model.Person) (model.SourceRecord, error) {
	r, ownerUID, err := s.prepare(ctx, r, owner)
	if err != nil {
		return model.SourceRecord{}, err
	}
	if err := s.store.SourceRecords().Create(ctx, r, ownerUID); err != nil {
		s.record(model.KindSourceRecord, outcomeOf(err))
		return model.SourceRecord{}, err
	}

	s.record(model.KindSourceRecord, OutcomeCreated)
	s.logger.Debug("Source record created", "uid", r.UID, "owner", ownerUID)
	s.emit(ctx, events.SignalSourceRecordCreated, model.KindSourceRecord, r.UID)
	return r, nil
}

// UpdateSourceRecord rewrites a persisted record through the same pipeline
func (s *SourceRecordService) UpdateSourceRecord(ctx context.Context, r model.SourceRecord, owner model.Person) (model.SourceRecord, error) {
	r, ownerUID, err := s.prepare(ctx, r, owner)
	if err != nil {
		return model.SourceRecord{}, err
	}
	if err := s.store.SourceRecords().Update(ctx, r, ownerUID); err != nil {
		s.record(model.KindSourceRecord, outcomeOf(err))
		return model.SourceRecord{}, err
	}

	s.record(model.KindSourceRecord, OutcomeUpdated)
	s.logger.Debug("Source record updated", "uid", r.UID, "owner", ownerUID)
	return r, nil
}

// GetSourceRecord loads a record by uid
func (s *SourceRecordService) GetSourceRecord(ctx context.Context, uid string) (model.SourceRecord, error) {
	return s.store.SourceRecords().Get(ctx, uid)
}

// SourceRecordExists reports whether a record with uid is persisted
func (s *SourceRecordService) SourceRecordExists(ctx context.Context, uid string) (bool, error) {
	return s.store.SourceRecords().Exists(ctx, uid)
}

// OwnerUID resolves the uid of the persisted person a record is harvested
// for. An explicit uid must exist as is; otherwise the person is looked up by
// its identifiers, which harvesters may send partially.
func (s *SourceRecordService) OwnerUID(ctx context.Context, owner model.Person) (string, error) {
	if owner.UID != "" {
		exists, err := s.store.People().Exists(ctx, owner.UID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", errors.ReferenceOwnerNotFoundf("Person with uid %s does not exist", owner.UID)
		}
		return owner.UID, nil
	}
	if len(owner.Identifiers) == 0 {
		return "", errors.MissingIdentifierf("reference owner %s carries no identifier", owner.DisplayName())
	}

	found, err := s.findPerson(ctx, owner)
	if errors.IsNotFound(err) {
		return "", errors.ReferenceOwnerNotFoundf("no person matches the identifiers of %s", owner.DisplayName())
	}
	if err != nil {
		return "", err
	}
	return found.UID, nil
}

func (s *SourceRecordService) prepare(ctx context.Context, r model.SourceRecord, owner model.Person) (model.SourceRecord, string, error) {
	if err := r.Validate(); err != nil {
		s.record(model.KindSourceRecord, OutcomeInvalid)
		return model.SourceRecord{}, "", err
	}
	if r.UID == "" {
		r = r.WithUID(r.ComputeUID())
	}

	ownerUID, err := s.OwnerUID(ctx, owner)
	if errors.Is(err, errors.ErrReferenceOwnerNotFound) {
		s.record(model.KindSourceRecord, OutcomeNotFound)
		return model.SourceRecord{}, "", errors.ReferenceOwnerNotFoundf(
			"cannot attach source record %s: %v", r.UID, err)
	}
	if err != nil {
		s.record(model.KindSourceRecord, outcomeOf(err))
		return model.SourceRecord{}, "", err
	}

	subjects := make([]model.Concept, 0, len(r.Subjects))
	for _, subject := range r.Subjects {
		persisted, err := s.concepts.CreateOrUpdateConcept(ctx, subject)
		if err != nil {
			s.logger.Warn("Subject dropped from source record", "uid", r.UID, "concept", subject.URI, "error", err)
			continue
		}
		subjects = append(subjects, persisted)
	}
	r.Subjects = subjects

	if r.Issue != nil {
		issue := *r.Issue
		journal, err := s.journals.CreateOrUpdateSourceJournal(ctx, issue.Journal)
		if err != nil {
			s.logger.Warn("Issue dropped from source record", "uid", r.UID, "journal", issue.Journal.UID, "error", err)
			r.Issue = nil
		} else {
			if issue.UID == "" {
				issue = issue.WithUID(issue.ComputeUID())
			}
			issue.Journal = journal
			r.Issue = &issue
		}
	}

	return r, ownerUID, nil
}
