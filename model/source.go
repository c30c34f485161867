package model

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

// DocumentType classifies a source record
type DocumentType struct {
	URI   string `json:"uri" validate:"required"`
	Label string `json:"label"`
}

// Contributor is a named contributor as reported by a harvester
type Contributor struct {
	Name        string `json:"name" validate:"required"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Contribution is a ranked contributor of a source record
type Contribution struct {
	Rank        *int        `json:"rank,omitempty"`
	Contributor Contributor `json:"contributor"`
}

// SourceRecord is a bibliographic record as received from one harvester,
// before any deduplication.
type SourceRecord struct {
	UID              string         `json:"uid,omitempty"`
	SourceIdentifier string         `json:"source_identifier" validate:"required"`
	Harvester        string         `json:"harvester" validate:"required"`
	Titles           []Literal      `json:"titles" validate:"min=1,dive"`
	Identifiers      []Identifier   `json:"identifiers" validate:"dive"`
	Abstracts        []Literal      `json:"abstracts" validate:"dive"`
	Subjects         []Concept      `json:"subjects"`
	DocumentTypes    []DocumentType `json:"document_type" validate:"dive"`
	Contributions    []Contribution `json:"contributions" validate:"dive"`
	Issue            *SourceIssue   `json:"issue,omitempty"`
}

// ComputeUID returns harvester-source_identifier
func (r SourceRecord) ComputeUID() string {
	return r.Harvester + UIDSeparator + r.SourceIdentifier
}

// WithUID returns a copy of r carrying uid
func (r SourceRecord) WithUID(uid string) SourceRecord {
	r.UID = uid
	return r
}

// Validate checks the record, its identifiers and its subjects
func (r SourceRecord) Validate() error {
	if err := checkStruct(KindSourceRecord, r); err != nil {
		return err
	}
	for _, id := range r.Identifiers {
		if !slices.Contains(PublicationIdentifierTypes, id.Type) {
			return errors.Validationf("identifier type %q is not allowed for %s", id.Type, KindSourceRecord)
		}
	}
	for _, s := range r.Subjects {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if r.Issue != nil {
		return r.Issue.Journal.Validate()
	}
	return nil
}

// SourceJournal is a journal as described by a harvester
type SourceJournal struct {
	UID              string       `json:"uid,omitempty"`
	Source           string       `json:"source" validate:"required"`
	SourceIdentifier string       `json:"source_identifier" validate:"required"`
	Publisher        string       `json:"publisher,omitempty"`
	Titles           []string     `json:"titles"`
	Identifiers      []Identifier `json:"identifiers" validate:"dive"`
}

// ComputeUID returns lower(source)-source_identifier
func (j SourceJournal) ComputeUID() string {
	return strings.ToLower(j.Source) + UIDSeparator + j.SourceIdentifier
}

// WithUID returns a copy of j carrying uid
func (j SourceJournal) WithUID(uid string) SourceJournal {
	j.UID = uid
	return j
}

// Validate checks the journal fields and identifier types
func (j SourceJournal) Validate() error {
	if err := checkStruct(KindSourceJournal, j); err != nil {
		return err
	}
	for _, id := range j.Identifiers {
		if !slices.Contains(JournalIdentifierTypes, id.Type) {
			return errors.Validationf("identifier type %q is not allowed for %s", id.Type, KindSourceJournal)
		}
	}
	return nil
}

// UnmarshalJSON accepts the harvester layout, where ISSNs come as issn,
// eissn and issn_l lists, in addition to an explicit identifiers list.
func (j *SourceJournal) UnmarshalJSON(data []byte) error {
	type plain SourceJournal
	var raw struct {
		plain
		ISSN  []string `json:"issn"`
		EISSN []string `json:"eissn"`
		ISSNL string   `json:"issn_l"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = SourceJournal(raw.plain)
	j.Identifiers = MergeIdentifiers(j.Identifiers, JournalIdentifiers(raw.ISSN, raw.EISSN, raw.ISSNL))
	return nil
}

// JournalIdentifiers builds journal identifiers from ISSN lists. The linking
// ISSN is an ordinary issn. Values are deduplicated per type, issn first.
func JournalIdentifiers(issn, eissn []string, issnL string) []Identifier {
	var ids []Identifier
	for _, v := range issn {
		ids = MergeIdentifiers(ids, []Identifier{{Type: JournalIdentifierISSN, Value: v}})
	}
	if issnL != "" {
		ids = MergeIdentifiers(ids, []Identifier{{Type: JournalIdentifierISSN, Value: issnL}})
	}
	for _, v := range eissn {
		ids = MergeIdentifiers(ids, []Identifier{{Type: JournalIdentifierEISSN, Value: v}})
	}
	return ids
}

// MergeIdentifiers appends to base the identifiers of extra not already in it
func MergeIdentifiers(base, extra []Identifier) []Identifier {
	out := append([]Identifier(nil), base...)
	for _, id := range extra {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// SourceIssue is a journal issue a source record was published in
type SourceIssue struct {
	UID              string        `json:"uid,omitempty"`
	SourceIdentifier string        `json:"source_identifier" validate:"required"`
	Source           string        `json:"source" validate:"required"`
	Titles           []Literal     `json:"titles" validate:"dive"`
	Volume           string        `json:"volume,omitempty"`
	Number           []string      `json:"number"`
	Rights           string        `json:"rights,omitempty"`
	Date             string        `json:"date,omitempty"`
	Journal          SourceJournal `json:"journal"`
}

// ComputeUID returns lower(source)-source_identifier
func (i SourceIssue) ComputeUID() string {
	return strings.ToLower(i.Source) + UIDSeparator + i.SourceIdentifier
}

// WithUID returns a copy of i carrying uid
func (i SourceIssue) WithUID(uid string) SourceIssue {
	i.UID = uid
	return i
}
