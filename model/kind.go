package model

// Kind identifies an entity type
type Kind string

// Entity kinds
const (
	KindPerson            Kind = "person"
	KindResearchStructure Kind = "research_structure"
	KindConcept           Kind = "concept"
	KindSourceRecord      Kind = "source_record"
	KindSourceJournal     Kind = "source_journal"
)

// Kinds lists every entity kind
var Kinds = []Kind{KindPerson, KindResearchStructure, KindConcept, KindSourceRecord, KindSourceJournal}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Entity is implemented by every persisted model
type Entity interface {
	Kind() Kind
	entity()
}

// Agent is an entity whose uid is derived from its identifiers
type Agent interface {
	Entity
	AgentIdentifiers() []Identifier
}

func (Person) entity()            {}
func (ResearchStructure) entity() {}
func (Concept) entity()           {}
func (SourceRecord) entity()      {}
func (SourceJournal) entity()     {}

// Kind implements Entity
func (Person) Kind() Kind { return KindPerson }

// Kind implements Entity
func (ResearchStructure) Kind() Kind { return KindResearchStructure }

// Kind implements Entity
func (Concept) Kind() Kind { return KindConcept }

// Kind implements Entity
func (SourceRecord) Kind() Kind { return KindSourceRecord }

// Kind implements Entity
func (SourceJournal) Kind() Kind { return KindSourceJournal }
