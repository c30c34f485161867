package reconcile

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/events"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// PeopleService reconciles people
type PeopleService struct {
	base
}

// NewPeopleService creates a PeopleService
func NewPeopleService(deps Dependencies) *PeopleService {
	return &PeopleService{base: newBase(deps, "people-service")}
}

func (s *PeopleService) prepare(p model.Person) (model.Person, error) {
	if err := p.Validate(); err != nil {
		return model.Person{}, err
	}
	uid, err := s.uidFor(p, p.UID)
	if err != nil {
		return model.Person{}, err
	}
	return p.WithUID(uid), nil
}

// CreatePerson persists a new person and returns it with its uid. It fails
// with a Conflict when the uid already exists.
func (s *PeopleService) CreatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	p, err := s.prepare(p)
	if err != nil {
		s.record(model.KindPerson, OutcomeInvalid)
		return model.Person{}, err
	}

	result, err := s.store.People().Create(ctx, p)
	if err != nil {
		s.record(model.KindPerson, outcomeOf(err))
		return model.Person{}, err
	}
	for _, entityUID := range result.UnlinkedMemberships {
		s.logger.Warn("Membership structure not found, skipped", "uid", p.UID, "entity_uid", entityUID)
	}

	s.record(model.KindPerson, OutcomeCreated)
	s.logger.Debug("Person created", "uid", p.UID)
	s.emit(ctx, events.SignalEntityCreated, model.KindPerson, p.UID)
	return p, nil
}

// UpdatePerson replaces names and memberships of a persisted person and
// reconciles its identifiers. It fails with a NotFound when the uid is
// unknown.
func (s *PeopleService) UpdatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	p, err := s.prepare(p)
	if err != nil {
		s.record(model.KindPerson, OutcomeInvalid)
		return model.Person{}, err
	}

	result, err := s.store.People().Update(ctx, p)
	if err != nil {
		s.record(model.KindPerson, outcomeOf(err))
		return model.Person{}, err
	}
	for _, entityUID := range result.UnlinkedMemberships {
		s.logger.Warn("Membership structure not found, skipped", "uid", p.UID, "entity_uid", entityUID)
	}

	s.record(model.KindPerson, OutcomeUpdated)
	s.logger.Debug("Person updated", "uid", p.UID)
	s.afterUpdate(ctx, model.KindPerson, p.UID, result.PreviousIdentifiers, p.Identifiers)
	return p, nil
}

// CreateOrUpdatePerson creates p and falls back to an update on Conflict
func (s *PeopleService) CreateOrUpdatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	created, err := s.CreatePerson(ctx, p)
	if errors.IsConflict(err) {
		s.logger.Debug("Person exists, updating", "error", err)
		return s.UpdatePerson(ctx, p)
	}
	return created, err
}

// UpdateOrCreatePerson updates p and falls back to a create on NotFound
func (s *PeopleService) UpdateOrCreatePerson(ctx context.Context, p model.Person) (model.Person, error) {
	updated, err := s.UpdatePerson(ctx, p)
	if errors.IsNotFound(err) {
		s.logger.Debug("Person missing, creating", "error", err)
		return s.CreatePerson(ctx, p)
	}
	return updated, err
}

// GetPerson loads a person by uid
func (s *PeopleService) GetPerson(ctx context.Context, uid string) (model.Person, error) {
	return s.store.People().Get(ctx, uid)
}

// FindPerson looks p up by its identifiers, in priority order then in the
// order they are listed.
func (s *PeopleService) FindPerson(ctx context.Context, p model.Person) (model.Person, error) {
	return s.findPerson(ctx, p)
}

func outcomeOf(err error) string {
	switch {
	case errors.IsConflict(err):
		return OutcomeConflict
	case errors.IsNotFound(err):
		return OutcomeNotFound
	case errors.IsValidation(err):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// orderByPriority lists ids whose type is prioritized first, in priority
// order, followed by the others in their original order.
func orderByPriority(ids []model.Identifier, priority []string) []model.Identifier {
	out := make([]model.Identifier, 0, len(ids))
	used := make([]bool, len(ids))
	for _, t := range priority {
		for i, id := range ids {
			if !used[i] && id.Type == t {
				out = append(out, id)
				used[i] = true
			}
		}
	}
	for i, id := range ids {
		if !used[i] {
			out = append(out, id)
		}
	}
	return out
}
