package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

const literalProjection = `{position: r.position, value: l.value, language: l.language}`

const structureProjection = `{
	uid: s.uid,
	acronym: s.acronym,
	names: [(s)-[r:HAS_NAME]->(l:Literal) | ` + literalProjection + `],
	descriptions: [(s)-[r:HAS_DESCRIPTION]->(l:Literal) | ` + literalProjection + `],
	identifiers: [(s)-[:HAS_IDENTIFIER]->(i:AgentIdentifier) | {type: i.type, value: i.value}]
}`

const personQuery = `
MATCH (p:Person {uid: $uid})
RETURN {
	uid: p.uid,
	identifiers: [(p)-[:HAS_IDENTIFIER]->(i:AgentIdentifier) | {type: i.type, value: i.value}],
	names: [(p)-[hn:HAS_NAME]->(n:PersonName) | {
		position: hn.position,
		first_names: [(n)-[r:HAS_FIRST_NAME]->(l:Literal) | ` + literalProjection + `],
		last_names: [(n)-[r:HAS_LAST_NAME]->(l:Literal) | ` + literalProjection + `],
		other_names: [(n)-[r:HAS_OTHER_NAME]->(l:Literal) | ` + literalProjection + `]
	}],
	memberships: [(p)-[:HAS_MEMBERSHIP]->(m:Membership)-[:MEMBER_OF]->(s:ResearchStructure) | {
		entity_uid: m.entity_uid,
		start_date: m.start_date,
		end_date: m.end_date,
		past: m.past,
		future: m.future,
		structure: ` + structureProjection + `
	}]
} AS person`

const structureQuery = `
MATCH (s:ResearchStructure {uid: $uid})
RETURN ` + structureProjection + ` AS structure`

// linkIdentifiers is formatted with the agent label. It merges the
// identifier nodes of the agent and unlinks identifiers no longer listed.
const linkIdentifiers = `
MATCH (a:%s {uid: $uid})
OPTIONAL MATCH (a)-[old:HAS_IDENTIFIER]->(i:AgentIdentifier)
WHERE NOT any(x IN $identifiers WHERE x.type = i.type AND x.value = i.value)
DELETE old
WITH DISTINCT a
UNWIND $identifiers AS ident
MERGE (i:AgentIdentifier {type: ident.type, value: ident.value})
MERGE (a)-[:HAS_IDENTIFIER]->(i)`

const deleteOrphanIdentifiers = `
MATCH (i:AgentIdentifier)
WHERE NOT (i)<-[:HAS_IDENTIFIER]-()
DELETE i`

func agentIdentifiers(ctx context.Context, tx neo4j.ManagedTransaction, label, uid string) ([]model.Identifier, error) {
	v, _, err := single(ctx, tx, fmt.Sprintf(`
MATCH (a:%s {uid: $uid})
RETURN [(a)-[:HAS_IDENTIFIER]->(i:AgentIdentifier) | {type: i.type, value: i.value}]`, label),
		map[string]any{"uid": uid})
	if err != nil {
		return nil, err
	}
	var rows []identifierRow
	if err := decode(v, &rows); err != nil {
		return nil, err
	}
	return identifiers(rows), nil
}

func writeIdentifiers(ctx context.Context, tx neo4j.ManagedTransaction, label, uid string, ids []model.Identifier) error {
	params := map[string]any{"uid": uid, "identifiers": identifierParams(ids)}
	if err := run(ctx, tx, fmt.Sprintf(linkIdentifiers, label), params); err != nil {
		return err
	}
	return run(ctx, tx, deleteOrphanIdentifiers, nil)
}

type peopleDAO struct{ s *Store }

func (d peopleDAO) Exists(ctx context.Context, uid string) (bool, error) {
	var found bool
	err := d.s.read(ctx, "PersonExists", func(tx neo4j.ManagedTransaction) error {
		var err error
		found, err = personExists(ctx, tx, uid)
		return err
	})
	return found, err
}

func personExists(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (bool, error) {
	return exists(ctx, tx, `MATCH (p:Person {uid: $uid}) RETURN count(p)`, map[string]any{"uid": uid})
}

func (d peopleDAO) Create(ctx context.Context, p model.Person) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(ctx, "CreatePerson", func(tx neo4j.ManagedTransaction) error {
		found, err := personExists(ctx, tx, p.UID)
		if err != nil {
			return err
		}
		if found {
			return errors.Conflictf("Person with uid %s already exists", p.UID)
		}
		if err := run(ctx, tx, `CREATE (:Person {uid: $uid})`, map[string]any{"uid": p.UID}); err != nil {
			return err
		}
		result.UnlinkedMemberships, err = writePerson(ctx, tx, p)
		return err
	})
	return result, err
}

func (d peopleDAO) Update(ctx context.Context, p model.Person) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(ctx, "UpdatePerson", func(tx neo4j.ManagedTransaction) error {
		found, err := personExists(ctx, tx, p.UID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFoundf("Person with uid %s does not exist", p.UID)
		}
		result.PreviousIdentifiers, err = agentIdentifiers(ctx, tx, "Person", p.UID)
		if err != nil {
			return err
		}
		params := map[string]any{"uid": p.UID}
		if err := run(ctx, tx, `
MATCH (:Person {uid: $uid})-[:HAS_NAME]->(n:PersonName)
OPTIONAL MATCH (n)-->(l:Literal)
DETACH DELETE l, n`, params); err != nil {
			return err
		}
		if err := run(ctx, tx, `
MATCH (:Person {uid: $uid})-[:HAS_MEMBERSHIP]->(m:Membership)
DETACH DELETE m`, params); err != nil {
			return err
		}
		result.UnlinkedMemberships, err = writePerson(ctx, tx, p)
		return err
	})
	return result, err
}

// writePerson writes names, identifiers and memberships of an existing
// person node and returns the entity uids of unresolved memberships.
func writePerson(ctx context.Context, tx neo4j.ManagedTransaction, p model.Person) ([]string, error) {
	names := make([]map[string]any, 0, len(p.Names))
	for i, n := range p.Names {
		names = append(names, map[string]any{
			"position":    i,
			"first_names": literalParams(n.FirstNames),
			"last_names":  literalParams(n.LastNames),
			"other_names": literalParams(n.OtherNames),
		})
	}
	if err := run(ctx, tx, `
MATCH (p:Person {uid: $uid})
UNWIND $names AS name
CREATE (p)-[:HAS_NAME {position: name.position}]->(n:PersonName)
FOREACH (l IN name.first_names | CREATE (n)-[:HAS_FIRST_NAME {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN name.last_names | CREATE (n)-[:HAS_LAST_NAME {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN name.other_names | CREATE (n)-[:HAS_OTHER_NAME {position: l.position}]->(:Literal {value: l.value, language: l.language}))`,
		map[string]any{"uid": p.UID, "names": names}); err != nil {
		return nil, err
	}

	if err := writeIdentifiers(ctx, tx, "Person", p.UID, p.Identifiers); err != nil {
		return nil, err
	}

	var unlinked []string
	for _, m := range p.Memberships {
		m = m.Normalized()
		structureUID, ok, err := resolveStructure(ctx, tx, *m.ResearchStructure)
		if err != nil {
			return nil, err
		}
		if !ok {
			unlinked = append(unlinked, m.EntityUID)
			continue
		}
		if err := run(ctx, tx, `
MATCH (p:Person {uid: $uid}), (s:ResearchStructure {uid: $structure_uid})
CREATE (p)-[:HAS_MEMBERSHIP]->(m:Membership {
	entity_uid: $entity_uid, start_date: $start_date, end_date: $end_date, past: $past, future: $future
})-[:MEMBER_OF]->(s)`, map[string]any{
			"uid":           p.UID,
			"structure_uid": structureUID,
			"entity_uid":    m.EntityUID,
			"start_date":    nullable(m.StartDate),
			"end_date":      nullable(m.EndDate),
			"past":          m.Past,
			"future":        m.Future,
		}); err != nil {
			return nil, err
		}
	}
	return unlinked, nil
}

// resolveStructure finds a membership target by uid, then by each
// identifier in order.
func resolveStructure(ctx context.Context, tx neo4j.ManagedTransaction, target model.ResearchStructure) (string, bool, error) {
	if target.UID != "" {
		found, err := exists(ctx, tx, `MATCH (s:ResearchStructure {uid: $uid}) RETURN count(s)`,
			map[string]any{"uid": target.UID})
		if err != nil || found {
			return target.UID, found, err
		}
	}
	for _, id := range target.Identifiers {
		uid, ok, err := structureUIDByIdentifier(ctx, tx, id)
		if err != nil || ok {
			return uid, ok, err
		}
	}
	return "", false, nil
}

func structureUIDByIdentifier(ctx context.Context, tx neo4j.ManagedTransaction, id model.Identifier) (string, bool, error) {
	v, ok, err := single(ctx, tx, `
MATCH (s:ResearchStructure)-[:HAS_IDENTIFIER]->(:AgentIdentifier {type: $type, value: $value})
RETURN s.uid ORDER BY s.uid LIMIT 1`, map[string]any{"type": id.Type, "value": id.Value})
	if err != nil || !ok {
		return "", false, err
	}
	uid, _ := v.(string)
	return uid, uid != "", nil
}

func (d peopleDAO) Get(ctx context.Context, uid string) (model.Person, error) {
	var p model.Person
	err := d.s.read(ctx, "GetPerson", func(tx neo4j.ManagedTransaction) error {
		var err error
		p, err = getPerson(ctx, tx, uid)
		return err
	})
	return p, err
}

func getPerson(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (model.Person, error) {
	v, ok, err := single(ctx, tx, personQuery, map[string]any{"uid": uid})
	if err != nil {
		return model.Person{}, err
	}
	if !ok {
		return model.Person{}, errors.NotFoundf("Person with uid %s does not exist", uid)
	}
	var row personRow
	if err := decode(v, &row); err != nil {
		return model.Person{}, errors.Storage(err, "neo4jstore", "GetPerson", "decode row")
	}
	return row.toModel(), nil
}

func (d peopleDAO) FindByIdentifier(ctx context.Context, id model.Identifier) (model.Person, error) {
	var p model.Person
	err := d.s.read(ctx, "FindPerson", func(tx neo4j.ManagedTransaction) error {
		v, ok, err := single(ctx, tx, `
MATCH (p:Person)-[:HAS_IDENTIFIER]->(:AgentIdentifier {type: $type, value: $value})
RETURN p.uid ORDER BY p.uid LIMIT 1`, map[string]any{"type": id.Type, "value": id.Value})
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("no person with identifier %s %s", id.Type, id.Value)
		}
		uid, _ := v.(string)
		p, err = getPerson(ctx, tx, uid)
		return err
	})
	return p, err
}

type structureDAO struct{ s *Store }

func structureExists(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (bool, error) {
	return exists(ctx, tx, `MATCH (s:ResearchStructure {uid: $uid}) RETURN count(s)`, map[string]any{"uid": uid})
}

func (d structureDAO) Exists(ctx context.Context, uid string) (bool, error) {
	var found bool
	err := d.s.read(ctx, "StructureExists", func(tx neo4j.ManagedTransaction) error {
		var err error
		found, err = structureExists(ctx, tx, uid)
		return err
	})
	return found, err
}

func (d structureDAO) Create(ctx context.Context, rs model.ResearchStructure) error {
	return d.s.write(ctx, "CreateStructure", func(tx neo4j.ManagedTransaction) error {
		found, err := structureExists(ctx, tx, rs.UID)
		if err != nil {
			return err
		}
		if found {
			return errors.Conflictf("Research structure with uid %s already exists", rs.UID)
		}
		if err := run(ctx, tx, `CREATE (:ResearchStructure {uid: $uid})`, map[string]any{"uid": rs.UID}); err != nil {
			return err
		}
		return writeStructure(ctx, tx, rs)
	})
}

func (d structureDAO) Update(ctx context.Context, rs model.ResearchStructure) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(ctx, "UpdateStructure", func(tx neo4j.ManagedTransaction) error {
		found, err := structureExists(ctx, tx, rs.UID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFoundf("Research structure with uid %s does not exist", rs.UID)
		}
		result.PreviousIdentifiers, err = agentIdentifiers(ctx, tx, "ResearchStructure", rs.UID)
		if err != nil {
			return err
		}
		if err := run(ctx, tx, `
MATCH (:ResearchStructure {uid: $uid})-[:HAS_NAME|HAS_DESCRIPTION]->(l:Literal)
DETACH DELETE l`, map[string]any{"uid": rs.UID}); err != nil {
			return err
		}
		return writeStructure(ctx, tx, rs)
	})
	return result, err
}

func writeStructure(ctx context.Context, tx neo4j.ManagedTransaction, rs model.ResearchStructure) error {
	if err := run(ctx, tx, `
MATCH (s:ResearchStructure {uid: $uid})
SET s.acronym = $acronym
FOREACH (l IN $names | CREATE (s)-[:HAS_NAME {position: l.position}]->(:Literal {value: l.value, language: l.language}))
FOREACH (l IN $descriptions | CREATE (s)-[:HAS_DESCRIPTION {position: l.position}]->(:Literal {value: l.value, language: l.language}))`,
		map[string]any{
			"uid":          rs.UID,
			"acronym":      nullable(rs.Acronym),
			"names":        literalParams(rs.Names),
			"descriptions": literalParams(rs.Descriptions),
		}); err != nil {
		return err
	}
	return writeIdentifiers(ctx, tx, "ResearchStructure", rs.UID, rs.Identifiers)
}

func (d structureDAO) Get(ctx context.Context, uid string) (model.ResearchStructure, error) {
	var rs model.ResearchStructure
	err := d.s.read(ctx, "GetStructure", func(tx neo4j.ManagedTransaction) error {
		var err error
		rs, err = getStructure(ctx, tx, uid)
		return err
	})
	return rs, err
}

func getStructure(ctx context.Context, tx neo4j.ManagedTransaction, uid string) (model.ResearchStructure, error) {
	v, ok, err := single(ctx, tx, structureQuery, map[string]any{"uid": uid})
	if err != nil {
		return model.ResearchStructure{}, err
	}
	if !ok {
		return model.ResearchStructure{}, errors.NotFoundf("Research structure with uid %s does not exist", uid)
	}
	var row structureRow
	if err := decode(v, &row); err != nil {
		return model.ResearchStructure{}, errors.Storage(err, "neo4jstore", "GetStructure", "decode row")
	}
	return row.toModel(), nil
}

func (d structureDAO) FindByIdentifier(ctx context.Context, id model.Identifier) (model.ResearchStructure, error) {
	var rs model.ResearchStructure
	err := d.s.read(ctx, "FindStructure", func(tx neo4j.ManagedTransaction) error {
		uid, ok, err := structureUIDByIdentifier(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("no research structure with identifier %s %s", id.Type, id.Value)
		}
		rs, err = getStructure(ctx, tx, uid)
		return err
	})
	return rs, err
}
