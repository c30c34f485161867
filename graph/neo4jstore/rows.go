package neo4jstore

import (
	"encoding/json"
	"sort"

	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Queries return one map per entity built with pattern comprehensions.
// Rows are decoded from that map through JSON so that nested lists land in
// typed structs.

type literalRow struct {
	Position int     `json:"position"`
	Value    string  `json:"value"`
	Language *string `json:"language"`
}

type literalRows []literalRow

type identifierRow struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type personNameRow struct {
	Position   int          `json:"position"`
	FirstNames []literalRow `json:"first_names"`
	LastNames  []literalRow `json:"last_names"`
	OtherNames []literalRow `json:"other_names"`
}

type structureRow struct {
	UID          string          `json:"uid"`
	Acronym      *string         `json:"acronym"`
	Names        []literalRow    `json:"names"`
	Descriptions []literalRow    `json:"descriptions"`
	Identifiers  []identifierRow `json:"identifiers"`
}

type membershipRow struct {
	EntityUID string       `json:"entity_uid"`
	StartDate *string      `json:"start_date"`
	EndDate   *string      `json:"end_date"`
	Past      bool         `json:"past"`
	Future    bool         `json:"future"`
	Structure structureRow `json:"structure"`
}

type personRow struct {
	UID         string          `json:"uid"`
	Names       []personNameRow `json:"names"`
	Identifiers []identifierRow `json:"identifiers"`
	Memberships []membershipRow `json:"memberships"`
}

type conceptRow struct {
	URI        *string      `json:"uri"`
	PrefLabels []literalRow `json:"pref_labels"`
	AltLabels  []literalRow `json:"alt_labels"`
}

type journalRow struct {
	UID              string          `json:"uid"`
	Source           string          `json:"source"`
	SourceIdentifier string          `json:"source_identifier"`
	Publisher        *string         `json:"publisher"`
	Titles           []string        `json:"titles"`
	Identifiers      []identifierRow `json:"identifiers"`
}

type issueRow struct {
	UID              string       `json:"uid"`
	Source           string       `json:"source"`
	SourceIdentifier string       `json:"source_identifier"`
	Titles           []literalRow `json:"titles"`
	Volume           *string      `json:"volume"`
	Number           []string     `json:"number"`
	Rights           *string      `json:"rights"`
	Date             *string      `json:"date"`
	Journal          journalRow   `json:"journal"`
}

type contributionRow struct {
	Position    int     `json:"position"`
	Rank        *int    `json:"rank"`
	Name        string  `json:"name"`
	Affiliation *string `json:"affiliation"`
}

type documentTypeRow struct {
	URI   string  `json:"uri"`
	Label *string `json:"label"`
}

type recordRow struct {
	UID              string            `json:"uid"`
	SourceIdentifier string            `json:"source_identifier"`
	Harvester        string            `json:"harvester"`
	Titles           []literalRow      `json:"titles"`
	Abstracts        []literalRow      `json:"abstracts"`
	Identifiers      []identifierRow   `json:"identifiers"`
	Subjects         []conceptRow      `json:"subjects"`
	DocumentTypes    []documentTypeRow `json:"document_types"`
	Contributions    []contributionRow `json:"contributions"`
	Issues           []issueRow        `json:"issues"`
}

func decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (rows literalRows) toModel() []model.Literal {
	sorted := append(literalRows(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	out := make([]model.Literal, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, model.Literal{Value: r.Value, Language: str(r.Language)})
	}
	return out
}

func identifiers(rows []identifierRow) []model.Identifier {
	out := make([]model.Identifier, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Identifier{Type: r.Type, Value: r.Value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func (r personRow) toModel() model.Person {
	p := model.Person{UID: r.UID, Identifiers: identifiers(r.Identifiers)}
	names := append([]personNameRow(nil), r.Names...)
	sort.SliceStable(names, func(i, j int) bool { return names[i].Position < names[j].Position })
	for _, n := range names {
		p.Names = append(p.Names, model.PersonName{
			FirstNames: literalRows(n.FirstNames).toModel(),
			LastNames:  literalRows(n.LastNames).toModel(),
			OtherNames: literalRows(n.OtherNames).toModel(),
		})
	}
	sort.SliceStable(r.Memberships, func(i, j int) bool {
		return r.Memberships[i].EntityUID < r.Memberships[j].EntityUID
	})
	for _, m := range r.Memberships {
		rs := m.Structure.toModel()
		p.Memberships = append(p.Memberships, model.Membership{
			EntityUID:         m.EntityUID,
			ResearchStructure: &rs,
			StartDate:         str(m.StartDate),
			EndDate:           str(m.EndDate),
			Past:              m.Past,
			Future:            m.Future,
		})
	}
	return p
}

func (r structureRow) toModel() model.ResearchStructure {
	return model.ResearchStructure{
		UID:          r.UID,
		Acronym:      str(r.Acronym),
		Names:        literalRows(r.Names).toModel(),
		Descriptions: literalRows(r.Descriptions).toModel(),
		Identifiers:  identifiers(r.Identifiers),
	}
}

func (r conceptRow) toModel() model.Concept {
	return model.Concept{
		URI:        str(r.URI),
		PrefLabels: literalRows(r.PrefLabels).toModel(),
		AltLabels:  literalRows(r.AltLabels).toModel(),
	}
}

func (r journalRow) toModel() model.SourceJournal {
	return model.SourceJournal{
		UID:              r.UID,
		Source:           r.Source,
		SourceIdentifier: r.SourceIdentifier,
		Publisher:        str(r.Publisher),
		Titles:           r.Titles,
		Identifiers:      identifiers(r.Identifiers),
	}
}

func (r recordRow) toModel() model.SourceRecord {
	rec := model.SourceRecord{
		UID:              r.UID,
		SourceIdentifier: r.SourceIdentifier,
		Harvester:        r.Harvester,
		Titles:           literalRows(r.Titles).toModel(),
		Abstracts:        literalRows(r.Abstracts).toModel(),
		Identifiers:      identifiers(r.Identifiers),
	}
	for _, c := range r.Subjects {
		rec.Subjects = append(rec.Subjects, c.toModel())
	}
	for _, d := range r.DocumentTypes {
		rec.DocumentTypes = append(rec.DocumentTypes, model.DocumentType{URI: d.URI, Label: str(d.Label)})
	}
	contributions := append([]contributionRow(nil), r.Contributions...)
	sort.SliceStable(contributions, func(i, j int) bool { return contributions[i].Position < contributions[j].Position })
	for _, c := range contributions {
		rec.Contributions = append(rec.Contributions, model.Contribution{
			Rank:        c.Rank,
			Contributor: model.Contributor{Name: c.Name, Affiliation: str(c.Affiliation)},
		})
	}
	if len(r.Issues) > 0 {
		in := r.Issues[0]
		rec.Issue = &model.SourceIssue{
			UID:              in.UID,
			Source:           in.Source,
			SourceIdentifier: in.SourceIdentifier,
			Titles:           literalRows(in.Titles).toModel(),
			Volume:           str(in.Volume),
			Number:           in.Number,
			Rights:           str(in.Rights),
			Date:             str(in.Date),
			Journal:          in.Journal.toModel(),
		}
	}
	return rec
}

func literalParams(list []model.Literal) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for i, l := range list {
		out = append(out, map[string]any{
			"position": i,
			"value":    l.Value,
			"language": nullable(l.Language),
		})
	}
	return out
}

func identifierParams(list []model.Identifier) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, id := range list {
		out = append(out, map[string]any{"type": id.Type, "value": id.Value})
	}
	return out
}
