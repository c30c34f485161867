package model

import (
	"strings"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

// PersonName holds one naming variant of a person
type PersonName struct {
	FirstNames []Literal `json:"first_names" validate:"dive"`
	LastNames  []Literal `json:"last_names" validate:"dive"`
	OtherNames []Literal `json:"other_names,omitempty" validate:"dive"`
}

// Person is a researcher known to the directory
type Person struct {
	UID         string       `json:"uid,omitempty"`
	Names       []PersonName `json:"names" validate:"dive"`
	Identifiers []Identifier `json:"identifiers" validate:"min=1,dive"`
	Memberships []Membership `json:"memberships" validate:"dive"`
}

// AgentIdentifiers implements Agent
func (p Person) AgentIdentifiers() []Identifier {
	return p.Identifiers
}

// Identifier returns the identifier of the given type
func (p Person) Identifier(t string) (Identifier, bool) {
	return findIdentifier(p.Identifiers, t)
}

// WithUID returns a copy of p carrying uid
func (p Person) WithUID(uid string) Person {
	p.UID = uid
	return p
}

// DisplayName is the first first name followed by the first last name,
// or the uid when the person has no usable name.
func (p Person) DisplayName() string {
	for _, n := range p.Names {
		var parts []string
		if len(n.FirstNames) > 0 && n.FirstNames[0].Value != "" {
			parts = append(parts, n.FirstNames[0].Value)
		}
		if len(n.LastNames) > 0 && n.LastNames[0].Value != "" {
			parts = append(parts, n.LastNames[0].Value)
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return p.UID
}

// Validate checks the field rules, identifier types and value patterns and
// the one-identifier-per-type rule.
func (p Person) Validate() error {
	if err := checkStruct(KindPerson, p); err != nil {
		return err
	}
	if err := checkAgentIdentifiers(KindPerson, p.Identifiers); err != nil {
		return err
	}
	for _, id := range p.Identifiers {
		pattern, ok := personIdentifierPatterns[id.Type]
		if ok && !pattern.MatchString(id.Value) {
			return errors.Validationf("value %s for %s does not match the expected pattern %s",
				id.Value, id.Type, pattern.String())
		}
	}
	for _, m := range p.Memberships {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Membership links a person to a research structure
type Membership struct {
	EntityUID         string             `json:"entity_uid" validate:"required"`
	ResearchStructure *ResearchStructure `json:"research_structure,omitempty"`
	StartDate         string             `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate           string             `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Past              bool               `json:"past"`
	Future            bool               `json:"future"`
}

// Normalized returns a copy of m whose research structure is set. A missing
// structure becomes a stub carrying one identifier derived from EntityUID:
// the typed identifier when EntityUID starts with a known organization
// identifier type, a local identifier holding EntityUID otherwise.
func (m Membership) Normalized() Membership {
	if m.ResearchStructure != nil {
		return m
	}
	id := Identifier{Type: OrganizationIdentifierLocal, Value: m.EntityUID}
	if t, v, ok := strings.Cut(m.EntityUID, UIDSeparator); ok && v != "" && IsIdentifierType(KindResearchStructure, t) {
		id = Identifier{Type: t, Value: v}
	}
	m.ResearchStructure = &ResearchStructure{Identifiers: []Identifier{id}}
	return m
}

// Validate checks the membership fields and its structure when present
func (m Membership) Validate() error {
	if err := checkStruct(KindPerson, m); err != nil {
		return err
	}
	if m.ResearchStructure != nil {
		return checkAgentIdentifiers(KindResearchStructure, m.ResearchStructure.Identifiers)
	}
	return nil
}
