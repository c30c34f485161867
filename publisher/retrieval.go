package publisher

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// RetrievalEvents are the harvest outcomes the harvesters report back
var RetrievalEvents = []string{"created", "updated", "deleted", "unchanged"}

// PersonLoader loads a persisted person
type PersonLoader interface {
	GetPerson(ctx context.Context, uid string) (model.Person, error)
}

// PublicationRetrievalTask asks the harvesters to fetch the publications of a person
type PublicationRetrievalTask struct {
	Type                string          `json:"type"`
	Reply               bool            `json:"reply"`
	IdentifiersSafeMode bool            `json:"identifiers_safe_mode"`
	Events              []string        `json:"events"`
	Harvesters          []string        `json:"harvesters"`
	Fields              RetrievalFields `json:"fields"`
}

// RetrievalFields describe the person to search for
type RetrievalFields struct {
	Name        string             `json:"name"`
	Identifiers []model.Identifier `json:"identifiers"`
}

// PublicationRetrievalFactory builds publication retrieval tasks
type PublicationRetrievalFactory struct {
	people     PersonLoader
	harvesters []string
	subject    string
}

// NewPublicationRetrievalFactory creates the factory publishing to subject
func NewPublicationRetrievalFactory(people PersonLoader, harvesters []string, subject string) *PublicationRetrievalFactory {
	return &PublicationRetrievalFactory{people: people, harvesters: harvesters, subject: subject}
}

// Build implements Factory. Local identifiers mean nothing outside the
// institution and are left out.
func (f *PublicationRetrievalFactory) Build(ctx context.Context, content Content) (Message, error) {
	if content.Kind != model.KindPerson {
		return Message{}, errors.Validationf("publication retrieval needs a %s, got %s", model.KindPerson, content.Kind)
	}
	person, err := f.people.GetPerson(ctx, content.UID)
	if err != nil {
		return Message{}, err
	}

	identifiers := make([]model.Identifier, 0, len(person.Identifiers))
	for _, id := range person.Identifiers {
		if id.Type != model.PersonIdentifierLocal {
			identifiers = append(identifiers, id)
		}
	}

	return Message{
		Subject: f.subject,
		Payload: PublicationRetrievalTask{
			Type:                string(model.KindPerson),
			Reply:               true,
			IdentifiersSafeMode: false,
			Events:              RetrievalEvents,
			Harvesters:          f.harvesters,
			Fields: RetrievalFields{
				Name:        person.DisplayName(),
				Identifiers: identifiers,
			},
		},
	}, nil
}
