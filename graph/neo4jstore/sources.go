package neo4jstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

const conceptProjection = `{
	uri: c.uri,
	pref_labels: [(c)-[r:HAS_PREF_LABEL]->(l:Literal) | ` + literalProjection + `],
	alt_labels: [(c)-[r:HAS_ALT_LABEL]->(l:Literal) | ` + literalProjection + `]
}`

const journalProjection = `{
	uid: j.uid,
	source: j.source,
	source_identifier: j.source_identifier,
	publisher: j.publisher,
	titles: j.titles,
	identifiers: [(j)-[:HAS_IDENTIFIER]->(i:JournalIdentifier) | {type: i.type, value: i.value}]
}`

const recordQuery = `
MATCH (rec:SourceRecord {uid: $uid})
RETURN {
	uid: rec.uid,
	source_identifier: rec.source_identifier,
	harvester: rec.harvester,
	titles: [(rec)-[r:HAS_TITLE]->(l:Literal) | ` + literalProjection + `],
	abstracts: [(rec)-[r:HAS_ABSTRACT]->(l:Literal) | ` + literalProjection + `],
	identifiers: [(rec)-[:HAS_IDENTIFIER]->(i:PublicationIdentifier) | {type: i.type, value: i.value}],
	subjects: [(rec)-[:HAS_SUBJECT]->(c:Concept) | ` + conceptProjection + `],
	document_types: [(rec)-[:HAS_TYPE]->(d:DocumentType) | {uri: d.uri, label: d.label}],
	contributions: [(rec)-[hc:HAS_CONTRIBUTION]->(k:Contributor) | {
		position: hc.position, rank: hc.rank, name: k.name, affiliation: k.affiliation
	}],
	issues: [(rec)-[:PUBLISHED_IN]->(iss:SourceIssue)-[:ISSUED_IN]->(j:SourceJournal) | {
		uid: iss.uid,
		source: iss.source,
		source_identifier: iss.source_identifier,
		titles: [(iss)-[r:HAS_TITLE]->(l:Literal) | ` + literalProjection + `],
		volume: iss.volume,
		number: iss.number,
		rights: iss.rights,
		date: iss.date,
		journal: ` + journalProjection + `
	}]
} AS record`

type conceptDAO struct{ s *Store }

func decodeConcept(v any) (model.Concept, error) {
	var row conceptRow
	if err := decode(v, &row); err != nil {
		return model.Concept{}, errors.Storage(err, "neo4jstore", "GetConcept", "decode row")
	}
	return row.toModel(), nil
}

func (d conceptDAO) Get(ctx context.Context, uri string) (model.Concept, error) {
	var c model.Concept
	err := d.s.read(ctx, "GetConcept", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := single(ctx, tx, `
MATCH (c:Concept {uri: $uri})
RETURN `+conceptProjection+` AS concept`, map[string]any{"uri": uri})
		if err != nil {
			return err
		}
		if !ok || uri == "" {
			return errors.NotFoundf("Concept with uri %s does not exist", uri)
		}
		c, err = decodeConcept(v)
		return err
	})
	return c, err
}

func (d conceptDAO) FindByPrefLabel(ctx context.Context, label model.Literal) (model.Concept, error) {
	var c model.Concept
	err := d.s.read(ctx, "FindConcept", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := findStub(ctx, tx, label)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("no concept labelled %q", label.Value)
		}
		c, err = decodeConcept(v)
		return err
	})
	return c, err
}

// findStub matches uri-less concepts on their single preferred label
func findStub(ctx context.Context, tx neo4j.ManagedTransaction, label model.Literal) (any, bool, error) {
	return single(ctx, tx, `
MATCH (c:Concept)-[:HAS_PREF_LABEL]->(l:Literal)
WHERE c.uri IS NULL AND l.value = $value AND coalesce(l.language, '') = $language
RETURN `+conceptProjection+` AS concept LIMIT 1`,
		map[string]any{"value": label.Value, "language": label.Language})
}

func (d conceptDAO) Create(ctx context.Context, c model.Concept) error {
	if c.URI == "" && len(c.PrefLabels) == 0 {
		return errors.Validationf("concept has neither uri nor pref_label")
	}
	return d.s.write(ctx, "CreateConcept", func(tx neo4j.ManagedTransaction) error {
		var found bool
		var err error
		if c.URI != "" {
			found, err = exists(ctx, tx, `MATCH (c:Concept {uri: $uri}) RETURN count(c)`, map[string]any{"uri": c.URI})
		} else {
			_, found, err = findStub(ctx, tx, c.PrefLabels[0])
		}
		if err != nil {
			return err
		}
		if found {
			return errors.Conflictf("Concept %s already exists", c.URI)
		}
		return run(ctx, tx, `
CREATE (c:Concept {uri: $uri})
FOREACH (l IN $pref_labels | CREATE (c)-[:HAS_PREF_LABEL {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN $alt_labels | CREATE (c)-[:HAS_ALT_LABEL {position: l.position}]->(:Literal {value: l.value, language: l.language}))`,
			conceptParams(c))
	})
}

func (d conceptDAO) Update(ctx context.Context, c model.Concept) error {
	return d.s.write(ctx, "UpdateConcept", func(tx neo4j.ManagedTransaction) error {
		found, err := exists(ctx, tx, `MATCH (c:Concept {uri: $uri}) RETURN count(c)`, map[string]any{"uri": c.URI})
		if err != nil {
			return err
		}
		if !found || c.URI == "" {
			return errors.NotFoundf("Concept with uri %s does not exist", c.URI)
		}
		if err := run(ctx, tx, `
MATCH (:Concept {uri: $uri})-[:HAS_PREF_LABEL|HAS_ALT_LABEL]->(l:Literal)
DETACH DELETE l`, map[string]any{"uri": c.URI}); err != nil {
			return err
		}
		return run(ctx, tx, `
MATCH (c:Concept {uri: $uri})
FOREACH (l IN $pref_labels | CREATE (c)-[:HAS_PREF_LABEL {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN $alt_labels | CREATE (c)-[:HAS_ALT_LABEL {position: l.position}]->(:Literal {value: l.value, language: l.language}))`,
			conceptParams(c))
	})
}

func conceptParams(c model.Concept) map[string]any {
	return map[string]any{
		"uri":         nullable(c.URI),
		"pref_labels": literalParams(c.PrefLabels),
		"alt_labels":  literalParams(c.AltLabels),
	}
}

type journalDAO struct{ s *Store }

func journalExists(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (bool, error) {
	return exists(ctx, tx, `MATCH (j:SourceJournal {uid: $uid}) RETURN count(j)`, map[string]any{"uid": uid})
}

func (d journalDAO) Exists(ctx context.Context, uid string) (bool, error) {
	var found bool
	err := d.s.read(ctx, "JournalExists", func(tx neo4j.ManagedTransaction) error {
		var err error
		found, err = journalExists(ctx, tx, uid)
		return err
	})
	return found, err
}

func (d journalDAO) Create(ctx context.Context, j model.SourceJournal) error {
	return d.s.write(ctx, "CreateJournal", func(tx neo4j.ManagedTransaction) error {
		found, err := journalExists(ctx, tx, j.UID)
		if err != nil {
			return err
		}
		if found {
			return errors.Conflictf("Source journal with uid %s already exists", j.UID)
		}
		if err := run(ctx, tx, `CREATE (:SourceJournal {uid: $uid})`, map[string]any{"uid": j.UID}); err != nil {
			return err
		}
		return writeJournal(ctx, tx, j)
	})
}

func (d journalDAO) Update(ctx context.Context, j model.SourceJournal) error {
	return d.s.write(ctx, "UpdateJournal", func(tx neo4j.ManagedTransaction) error {
		found, err := journalExists(ctx, tx, j.UID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFoundf("Source journal with uid %s does not exist", j.UID)
		}
		return writeJournal(ctx, tx, j)
	})
}

func writeJournal(ctx context.Context, tx neo4j.ManagedTransaction, j model.SourceJournal) error {
	return run(ctx, tx, `
MATCH (j:SourceJournal {uid: $uid})
SET j.source = $source, j.source_identifier = $source_identifier, j.publisher = $publisher, j.titles = $titles
WITH j
OPTIONAL MATCH (j)-[old:HAS_IDENTIFIER]->(:JournalIdentifier)
DELETE old
WITH DISTINCT j
UNWIND $identifiers AS ident
MERGE (i:JournalIdentifier {type: ident.type, value: ident.value})
MERGE (j)-[:HAS_IDENTIFIER]->(i)`, map[string]any{
		"uid":               j.UID,
		"source":            j.Source,
		"source_identifier": j.SourceIdentifier,
		"publisher":         nullable(j.Publisher),
		"titles":            stringList(j.Titles),
		"identifiers":       identifierParams(j.Identifiers),
	})
}

func (d journalDAO) Get(ctx context.Context, uid string) (model.SourceJournal, error) {
	var j model.SourceJournal
	err := d.s.read(ctx, "GetJournal", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := single(ctx, tx, `
MATCH (j:SourceJournal {uid: $uid})
RETURN `+journalProjection+` AS journal`, map[string]any{"uid": uid})
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("Source journal with uid %s does not exist", uid)
		}
		var row journalRow
		if err := decode(v, &row); err != nil {
			return errors.Storage(err, "neo4jstore", "GetJournal", "decode row")
		}
		j = row.toModel()
		return nil
	})
	return j, err
}

type recordDAO struct{ s *Store }

func recordExists(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (bool, error) {
	return exists(ctx, tx, `MATCH (r:SourceRecord {uid: $uid}) RETURN count(r)`, map[string]any{"uid": uid})
}

func (d recordDAO) Exists(ctx context.Context, uid string) (bool, error) {
	var found bool
	err := d.s.read(ctx, "SourceRecordExists", func(tx neo4j.ManagedTransaction) error {
		var err error
		found, err = recordExists(ctx, tx, uid)
		return err
	})
	return found, err
}

func (d recordDAO) Create(ctx context.Context, r model.SourceRecord, ownerUID string) error {
	return d.s.write(ctx, "CreateSourceRecord", func(tx neo4j.ManagedTransaction) error {
		if err := checkOwner(ctx, tx, ownerUID); err != nil {
			return err
		}
		found, err := recordExists(ctx, tx, r.UID)
		if err != nil {
			return err
		}
		if found {
			return errors.Conflictf("Source record with uid %s already exists", r.UID)
		}
		if err := run(ctx, tx, `CREATE (:SourceRecord {uid: $uid})`, map[string]any{"uid": r.UID}); err != nil {
			return err
		}
		return writeRecord(ctx, tx, r, ownerUID)
	})
}

func (d recordDAO) Update(ctx context.Context, r model.SourceRecord, ownerUID string) error {
	return d.s.write(ctx, "UpdateSourceRecord", func(tx neo4j.ManagedTransaction) error {
		found, err := recordExists(ctx, tx, r.UID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFoundf("Source record with uid %s does not exist", r.UID)
		}
		if err := checkOwner(ctx, tx, ownerUID); err != nil {
			return err
		}
		if err := run(ctx, tx, `
MATCH (rec:SourceRecord {uid: $uid})
OPTIONAL MATCH (rec)-[:HAS_TITLE|HAS_ABSTRACT]->(l:Literal)
OPTIONAL MATCH (rec)-[:HAS_CONTRIBUTION]->(k:Contributor)
DETACH DELETE l, k
WITH DISTINCT rec
OPTIONAL MATCH (rec)-[old:HAS_IDENTIFIER|HAS_SUBJECT|HAS_TYPE|PUBLISHED_IN]->()
DELETE old`, map[string]any{"uid": r.UID}); err != nil {
			return err
		}
		return writeRecord(ctx, tx, r, ownerUID)
	})
}

func checkOwner(ctx context.Context, tx neo4j.ManagedTransaction, ownerUID string) error {
	found, err := personExists(ctx, tx, ownerUID)
	if err != nil {
		return err
	}
	if !found {
		return errors.ReferenceOwnerNotFoundf("Person with uid %s does not exist", ownerUID)
	}
	return nil
}

// writeRecord writes the properties and relations of an existing record
// node. Subjects link only to concepts already in the graph.
func writeRecord(ctx context.Context, tx neo4j.ManagedTransaction, r model.SourceRecord, ownerUID string) error {
	contributions := make([]map[string]any, 0, len(r.Contributions))
	for i, c := range r.Contributions {
		var rank any
		if c.Rank != nil {
			rank = *c.Rank
		}
		contributions = append(contributions, map[string]any{
			"position":    i,
			"rank":        rank,
			"name":        c.Contributor.Name,
			"affiliation": nullable(c.Contributor.Affiliation),
		})
	}
	documentTypes := make([]map[string]any, 0, len(r.DocumentTypes))
	for _, dt := range r.DocumentTypes {
		documentTypes = append(documentTypes, map[string]any{"uri": dt.URI, "label": nullable(dt.Label)})
	}

	params := map[string]any{
		"uid":               r.UID,
		"owner_uid":         ownerUID,
		"source_identifier": r.SourceIdentifier,
		"harvester":         r.Harvester,
		"titles":            literalParams(r.Titles),
		"abstracts":         literalParams(r.Abstracts),
		"contributions":     contributions,
		"document_types":    documentTypes,
		"identifiers":       identifierParams(r.Identifiers),
	}
	if err := run(ctx, tx, `
MATCH (rec:SourceRecord {uid: $uid}), (owner:Person {uid: $owner_uid})
SET rec.source_identifier = $source_identifier, rec.harvester = $harvester
MERGE (rec)-[:HARVESTED_FOR]->(owner)
FOREACH (l IN $titles | CREATE (rec)-[:HAS_TITLE {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN $abstracts | CREATE (rec)-[:HAS_ABSTRACT {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (c IN $contributions | CREATE (rec)-[:HAS_CONTRIBUTION {position: c.position, rank: c.rank}]->(:Contributor {name: c.name, affiliation: c.affiliation}))
FOREACH (dt IN $document_types | MERGE (d:DocumentType {uri: dt.uri}) SET d.label = dt.label MERGE (rec)-[:HAS_TYPE]->(d))
FOREACH (ident IN $identifiers | MERGE (i:PublicationIdentifier {type: ident.type, value: ident.value}) MERGE (rec)-[:HAS_IDENTIFIER]->(i))`,
		params); err != nil {
		return err
	}

	if err := linkSubjects(ctx, tx, r); err != nil {
		return err
	}
	if r.Issue != nil {
		return linkIssue(ctx, tx, r.UID, *r.Issue)
	}
	return nil
}

func linkSubjects(ctx context.Context, tx neo4j.ManagedTransaction, r model.SourceRecord) error {
	var uris []string
	var stubs []map[string]any
	for _, c := range r.Subjects {
		if c.URI != "" {
			uris = append(uris, c.URI)
		} else if len(c.PrefLabels) == 1 {
			stubs = append(stubs, map[string]any{"value": c.PrefLabels[0].Value, "language": c.PrefLabels[0].Language})
		}
	}
	if err := run(ctx, tx, `
MATCH (rec:SourceRecord {uid: $uid})
UNWIND $uris AS uri
MATCH (c:Concept {uri: uri})
MERGE (rec)-[:HAS_SUBJECT]->(c)`, map[string]any{"uid": r.UID, "uris": stringList(uris)}); err != nil {
		return err
	}
	return run(ctx, tx, `
MATCH (rec:SourceRecord {uid: $uid})
UNWIND $stubs AS stub
MATCH (c:Concept)-[:HAS_PREF_LABEL]->(l:Literal)
WHERE c.uri IS NULL AND l.value = stub.value AND coalesce(l.language, '') = stub.language
MERGE (rec)-[:HAS_SUBJECT]->(c)`, map[string]any{"uid": r.UID, "stubs": stubsOrEmpty(stubs)})
}

func linkIssue(ctx context.Context, tx neo4j.ManagedTransaction, recordUID string, issue model.SourceIssue) error {
	found, err := journalExists(ctx, tx, issue.Journal.UID)
	if err != nil {
		return err
	}
	if !found {
		return errors.Validationf("journal %s of issue %s is not persisted", issue.Journal.UID, issue.UID)
	}

	params := map[string]any{
		"record_uid":        recordUID,
		"journal_uid":       issue.Journal.UID,
		"uid":               issue.UID,
		"source":            issue.Source,
		"source_identifier": issue.SourceIdentifier,
		"volume":            nullable(issue.Volume),
		"number":            stringList(issue.Number),
		"rights":            nullable(issue.Rights),
		"date":              nullable(issue.Date),
		"titles":            literalParams(issue.Titles),
	}
	if err := run(ctx, tx, `
MERGE (iss:SourceIssue {uid: $uid})
SET iss.source = $source, iss.source_identifier = $source_identifier, iss.volume = $volume,
	iss.number = $number, iss.rights = $rights, iss.date = $date
WITH iss
OPTIONAL MATCH (iss)-[:HAS_TITLE]->(old:Literal)
DETACH DELETE old`, params); err != nil {
		return err
	}
	return run(ctx, tx, `
MATCH (iss:SourceIssue {uid: $uid}), (j:SourceJournal {uid: $journal_uid}), (rec:SourceRecord {uid: $record_uid})
MERGE (iss)-[:ISSUED_IN]->(j)
MERGE (rec)-[:PUBLISHED_IN]->(iss)
FOREACH (l IN $titles | CREATE (iss)-[:HAS_TITLE {position: l.position}]->(:Literal {value: l.value, language: l.language}))`,
		params)
}

func (d recordDAO) Get(ctx context.Context, uid string) (model.SourceRecord, error) {
	var r model.SourceRecord
	err := d.s.read(ctx, "GetSourceRecord", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := single(ctx, tx, recordQuery, map[string]any{"uid": uid})
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("Source record with uid %s does not exist", uid)
		}
		var row recordRow
		if err := decode(v, &row); err != nil {
			return errors.Storage(err, "neo4jstore", "GetSourceRecord", "decode row")
		}
		r = row.toModel()
		return nil
	})
	return r, err
}

func (d recordDAO) Owners(ctx context.Context, uid string) ([]string, error) {
	var owners []string
	err := d.s.read(ctx, "SourceRecordOwners", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := single(ctx, tx, `
MATCH (rec:SourceRecord {uid: $uid})
RETURN [(rec)-[:HARVESTED_FOR]->(p:Person) | p.uid] AS owners`, map[string]any{"uid": uid})
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("Source record with uid %s does not exist", uid)
		}
		return decode(v, &owners)
	})
	return owners, err
}

// stringList keeps empty lists from being sent as null
func stringList(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func stubsOrEmpty(list []map[string]any) []map[string]any {
	if list == nil {
		return []map[string]any{}
	}
	return list
}
