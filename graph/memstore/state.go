package memstore

import (
	"encoding/json"
	"maps"

	"github.com/CRISalid-esr/crisalid-ikg/model"
)

type membershipEdge struct {
	structureUID string
	membership   model.Membership
}

type personNode struct {
	person      model.Person
	memberships []membershipEdge
}

type issueNode struct {
	issue      model.SourceIssue
	journalUID string
}

type recordNode struct {
	record      model.SourceRecord
	subjectKeys []string
	issueUID    string
	owners      []string
}

// state maps are copied on write; stored values are never mutated in place
type state struct {
	people     map[string]personNode
	structures map[string]model.ResearchStructure
	concepts   map[string]model.Concept
	journals   map[string]model.SourceJournal
	issues     map[string]issueNode
	records    map[string]recordNode
}

func newState() state {
	return state{
		people:     map[string]personNode{},
		structures: map[string]model.ResearchStructure{},
		concepts:   map[string]model.Concept{},
		journals:   map[string]model.SourceJournal{},
		issues:     map[string]issueNode{},
		records:    map[string]recordNode{},
	}
}

func (s state) clone() state {
	return state{
		people:     maps.Clone(s.people),
		structures: maps.Clone(s.structures),
		concepts:   maps.Clone(s.concepts),
		journals:   maps.Clone(s.journals),
		issues:     maps.Clone(s.issues),
		records:    maps.Clone(s.records),
	}
}

// deepCopy detaches v from any slice shared with the caller
func deepCopy[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func conceptKey(c model.Concept) string {
	if c.URI != "" {
		return c.URI
	}
	if len(c.PrefLabels) == 0 {
		return ""
	}
	return labelKey(c.PrefLabels[0])
}

func labelKey(l model.Literal) string {
	return "\x00" + l.Language + "\x00" + l.Value
}
