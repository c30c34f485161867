// Package graph defines the contracts of the knowledge-graph store.
//
// Each entity kind has its own DAO. Every write method runs as one
// transaction: either the whole sub-graph (names, identifiers, memberships,
// links) is written or nothing is. Implementations translate backend
// failures into the domain taxonomy of package errors:
//
//   - a unique constraint violation or an existing uid is a Conflict
//   - a missing entity is a NotFound
//   - a rejected query or value is a Validation error
//   - anything else is a Storage error
//
// Two implementations exist: memstore (in memory, used by unit tests and
// --store=memory) and neo4jstore.
package graph

import (
	"context"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// ErrResetRefused is returned by ResetAll outside of dev and test environments
var ErrResetRefused = errors.New("graph reset refused in this environment")

// WriteResult reports what an agent write did besides the node itself
type WriteResult struct {
	// PreviousIdentifiers is the identifier set before an update
	PreviousIdentifiers []model.Identifier
	// UnlinkedMemberships lists the entity uids of memberships whose
	// research structure could not be found
	UnlinkedMemberships []string
}

// PersonDAO persists people. Person and membership values passed to Create
// and Update carry their uid and normalized memberships.
type PersonDAO interface {
	Exists(ctx context.Context, uid string) (bool, error)
	Create(ctx context.Context, p model.Person) (WriteResult, error)
	// Update replaces names and memberships and reconciles identifiers
	// as a set difference.
	Update(ctx context.Context, p model.Person) (WriteResult, error)
	Get(ctx context.Context, uid string) (model.Person, error)
	FindByIdentifier(ctx context.Context, id model.Identifier) (model.Person, error)
}

// StructureDAO persists research structures
type StructureDAO interface {
	Exists(ctx context.Context, uid string) (bool, error)
	Create(ctx context.Context, s model.ResearchStructure) error
	Update(ctx context.Context, s model.ResearchStructure) (WriteResult, error)
	Get(ctx context.Context, uid string) (model.ResearchStructure, error)
	FindByIdentifier(ctx context.Context, id model.Identifier) (model.ResearchStructure, error)
}

// ConceptDAO persists concepts. Concepts with a uri are keyed by it; a
// uri-less concept is keyed by its single preferred label.
type ConceptDAO interface {
	Get(ctx context.Context, uri string) (model.Concept, error)
	FindByPrefLabel(ctx context.Context, label model.Literal) (model.Concept, error)
	Create(ctx context.Context, c model.Concept) error
	// Update overwrites the labels of the concept with the same uri
	Update(ctx context.Context, c model.Concept) error
}

// JournalDAO persists source journals
type JournalDAO interface {
	Exists(ctx context.Context, uid string) (bool, error)
	Create(ctx context.Context, j model.SourceJournal) error
	Update(ctx context.Context, j model.SourceJournal) error
	Get(ctx context.Context, uid string) (model.SourceJournal, error)
}

// SourceRecordDAO persists source records. Subjects must already be
// persisted concepts and the issue journal an existing journal. Create and
// Update fail with ReferenceOwnerNotFound when ownerUID is not a person.
type SourceRecordDAO interface {
	Exists(ctx context.Context, uid string) (bool, error)
	Create(ctx context.Context, r model.SourceRecord, ownerUID string) error
	Update(ctx context.Context, r model.SourceRecord, ownerUID string) error
	Get(ctx context.Context, uid string) (model.SourceRecord, error)
	// Owners returns the uids of the people a record was harvested for
	Owners(ctx context.Context, uid string) ([]string, error)
}

// GlobalDAO groups whole-graph operations
type GlobalDAO interface {
	// Setup creates the constraints and indexes
	Setup(ctx context.Context) error
	// ResetAll deletes every node; refused outside dev and test
	ResetAll(ctx context.Context) error
	// CountLiterals returns the number of literal nodes holding value
	CountLiterals(ctx context.Context, value string) (int, error)
	Ping(ctx context.Context) error
}

// Store gives access to the DAOs of one backend
type Store interface {
	People() PersonDAO
	Structures() StructureDAO
	Concepts() ConceptDAO
	Journals() JournalDAO
	SourceRecords() SourceRecordDAO
	Global() GlobalDAO
	Close(ctx context.Context) error
}

// ResetAllowed reports whether ResetAll may run in env
func ResetAllowed(env string) bool {
	return env == "dev" || env == "test"
}

// Exists dispatches an existence check on the DAO of kind
func Exists(ctx context.Context, s Store, kind model.Kind, key string) (bool, error) {
	switch kind {
	case model.KindPerson:
		return s.People().Exists(ctx, key)
	case model.KindResearchStructure:
		return s.Structures().Exists(ctx, key)
	case model.KindSourceJournal:
		return s.Journals().Exists(ctx, key)
	case model.KindSourceRecord:
		return s.SourceRecords().Exists(ctx, key)
	case model.KindConcept:
		_, err := s.Concepts().Get(ctx, key)
		if errors.IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, errors.Validationf("unknown entity kind %q", kind)
	}
}
