package model

// ResearchStructure is an organization people are members of
type ResearchStructure struct {
	UID          string       `json:"uid,omitempty"`
	Acronym      string       `json:"acronym,omitempty"`
	Names        []Literal    `json:"names" validate:"dive"`
	Descriptions []Literal    `json:"descriptions,omitempty" validate:"dive"`
	Identifiers  []Identifier `json:"identifiers" validate:"min=1,dive"`
}

// AgentIdentifiers implements Agent
func (s ResearchStructure) AgentIdentifiers() []Identifier {
	return s.Identifiers
}

// Identifier returns the identifier of the given type
func (s ResearchStructure) Identifier(t string) (Identifier, bool) {
	return findIdentifier(s.Identifiers, t)
}

// WithUID returns a copy of s carrying uid
func (s ResearchStructure) WithUID(uid string) ResearchStructure {
	s.UID = uid
	return s
}

// Validate checks the field rules and identifier types
func (s ResearchStructure) Validate() error {
	if err := checkStruct(KindResearchStructure, s); err != nil {
		return err
	}
	return checkAgentIdentifiers(KindResearchStructure, s.Identifiers)
}
