package model

import (
	"regexp"
	"slices"
)

// UIDSeparator joins an identifier type and value into a uid
const UIDSeparator = "-"

// Literal is a string with an optional language tag
type Literal struct {
	Value    string `json:"value" validate:"required"`
	Language string `json:"language,omitempty"`
}

// SameAs reports whether two literals have the same value and language
func (l Literal) SameAs(other Literal) bool {
	return l.Value == other.Value && l.Language == other.Language
}

// Identifier is a typed external identifier
type Identifier struct {
	Type  string `json:"type" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Person identifier types
const (
	PersonIdentifierLocal     = "local"
	PersonIdentifierORCID     = "orcid"
	PersonIdentifierIdRef     = "idref"
	PersonIdentifierIDHalS    = "id_hal_s"
	PersonIdentifierIDHalI    = "id_hal_i"
	PersonIdentifierScopusEID = "scopus_eid"
)

// Organization identifier types
const (
	OrganizationIdentifierLocal = "local"
	OrganizationIdentifierIdRef = "idref"
	OrganizationIdentifierROR   = "ror"
	OrganizationIdentifierRNSR  = "rnsr"
)

// Journal identifier types
const (
	JournalIdentifierDOI   = "doi"
	JournalIdentifierISSN  = "issn"
	JournalIdentifierEISSN = "eissn"
)

var (
	// PersonIdentifierTypes lists the identifier types a person may carry
	PersonIdentifierTypes = []string{
		PersonIdentifierLocal, PersonIdentifierORCID, PersonIdentifierIdRef,
		PersonIdentifierIDHalS, PersonIdentifierIDHalI, PersonIdentifierScopusEID,
	}

	// OrganizationIdentifierTypes lists the identifier types a research structure may carry
	OrganizationIdentifierTypes = []string{
		OrganizationIdentifierLocal, OrganizationIdentifierIdRef,
		OrganizationIdentifierROR, OrganizationIdentifierRNSR,
	}

	// PublicationIdentifierTypes lists the identifier types of a source record
	PublicationIdentifierTypes = []string{
		"arxiv", "doi", "hal", "ineris", "ird", "nnt", "openalex", "pii", "pmid",
		"pmcid", "pubmed", "pubmedcentral", "ppn", "prodinra", "sciencespo", "uri", "wos",
	}

	// JournalIdentifierTypes lists the identifier types of a journal
	JournalIdentifierTypes = []string{JournalIdentifierDOI, JournalIdentifierISSN, JournalIdentifierEISSN}
)

var personIdentifierPatterns = map[string]*regexp.Regexp{
	PersonIdentifierORCID:     regexp.MustCompile(`^([0-9]{4}-){3}[0-9]{3}[0-9X]$`),
	PersonIdentifierIdRef:     regexp.MustCompile(`^[0-9]{1,9}$`),
	PersonIdentifierIDHalS:    regexp.MustCompile(`^([a-z]+-)*[a-z]+$`),
	PersonIdentifierIDHalI:    regexp.MustCompile(`^[0-9]{1,9}$`),
	PersonIdentifierScopusEID: regexp.MustCompile(`^[0-9]+$`),
}

// IdentifierTypes returns the identifier types allowed for an agent kind
func IdentifierTypes(kind Kind) []string {
	switch kind {
	case KindPerson:
		return PersonIdentifierTypes
	case KindResearchStructure:
		return OrganizationIdentifierTypes
	default:
		return nil
	}
}

// IsIdentifierType reports whether t is a valid identifier type for kind
func IsIdentifierType(kind Kind, t string) bool {
	return slices.Contains(IdentifierTypes(kind), t)
}

func findIdentifier(ids []Identifier, t string) (Identifier, bool) {
	for _, id := range ids {
		if id.Type == t {
			return id, true
		}
	}
	return Identifier{}, false
}

func duplicateType(ids []Identifier) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id.Type]; ok {
			return id.Type, true
		}
		seen[id.Type] = struct{}{}
	}
	return "", false
}
