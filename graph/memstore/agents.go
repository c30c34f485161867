package memstore

import (
	"context"
	"sort"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

type peopleDAO struct{ s *Store }

func (d peopleDAO) Exists(_ context.Context, uid string) (bool, error) {
	var ok bool
	err := d.s.read(func(st *state) error {
		_, ok = st.people[uid]
		return nil
	})
	return ok, err
}

func (d peopleDAO) Create(_ context.Context, p model.Person) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(func(st *state) error {
		if _, exists := st.people[p.UID]; exists {
			return errors.Conflictf("Person with uid %s already exists", p.UID)
		}
		var node personNode
		node, result.UnlinkedMemberships = newPersonNode(st, p)
		st.people[p.UID] = node
		return nil
	})
	return result, err
}

func (d peopleDAO) Update(_ context.Context, p model.Person) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(func(st *state) error {
		current, exists := st.people[p.UID]
		if !exists {
			return errors.NotFoundf("Person with uid %s does not exist", p.UID)
		}
		result.PreviousIdentifiers = deepCopy(current.person.Identifiers)
		var node personNode
		node, result.UnlinkedMemberships = newPersonNode(st, p)
		st.people[p.UID] = node
		return nil
	})
	return result, err
}

func newPersonNode(st *state, p model.Person) (personNode, []string) {
	var unlinked []string
	node := personNode{person: deepCopy(p)}
	node.person.Memberships = nil

	for _, m := range p.Memberships {
		m = m.Normalized()
		uid, ok := findStructure(st, *m.ResearchStructure)
		if !ok {
			unlinked = append(unlinked, m.EntityUID)
			continue
		}
		edge := membershipEdge{structureUID: uid, membership: m}
		edge.membership.ResearchStructure = nil
		node.memberships = append(node.memberships, edge)
	}
	return node, unlinked
}

func (d peopleDAO) Get(_ context.Context, uid string) (model.Person, error) {
	var p model.Person
	err := d.s.read(func(st *state) error {
		node, ok := st.people[uid]
		if !ok {
			return errors.NotFoundf("Person with uid %s does not exist", uid)
		}
		p = hydratePerson(st, node)
		return nil
	})
	return p, err
}

func (d peopleDAO) FindByIdentifier(_ context.Context, id model.Identifier) (model.Person, error) {
	var p model.Person
	err := d.s.read(func(st *state) error {
		var matches []string
		for uid, node := range st.people {
			for _, candidate := range node.person.Identifiers {
				if candidate == id {
					matches = append(matches, uid)
					break
				}
			}
		}
		if len(matches) == 0 {
			return errors.NotFoundf("no person with identifier %s %s", id.Type, id.Value)
		}
		sort.Strings(matches)
		p = hydratePerson(st, st.people[matches[0]])
		return nil
	})
	return p, err
}

func hydratePerson(st *state, node personNode) model.Person {
	p := deepCopy(node.person)
	p.Memberships = nil
	for _, edge := range node.memberships {
		rs, ok := st.structures[edge.structureUID]
		if !ok {
			continue
		}
		m := deepCopy(edge.membership)
		linked := deepCopy(rs)
		m.ResearchStructure = &linked
		p.Memberships = append(p.Memberships, m)
	}
	return p
}

type structureDAO struct{ s *Store }

func (d structureDAO) Exists(_ context.Context, uid string) (bool, error) {
	var ok bool
	err := d.s.read(func(st *state) error {
		_, ok = st.structures[uid]
		return nil
	})
	return ok, err
}

func (d structureDAO) Create(_ context.Context, rs model.ResearchStructure) error {
	return d.s.write(func(st *state) error {
		if _, exists := st.structures[rs.UID]; exists {
			return errors.Conflictf("Research structure with uid %s already exists", rs.UID)
		}
		st.structures[rs.UID] = deepCopy(rs)
		return nil
	})
}

func (d structureDAO) Update(_ context.Context, rs model.ResearchStructure) (graph.WriteResult, error) {
	var result graph.WriteResult
	err := d.s.write(func(st *state) error {
		current, exists := st.structures[rs.UID]
		if !exists {
			return errors.NotFoundf("Research structure with uid %s does not exist", rs.UID)
		}
		result.PreviousIdentifiers = deepCopy(current.Identifiers)
		st.structures[rs.UID] = deepCopy(rs)
		return nil
	})
	return result, err
}

func (d structureDAO) Get(_ context.Context, uid string) (model.ResearchStructure, error) {
	var rs model.ResearchStructure
	err := d.s.read(func(st *state) error {
		found, ok := st.structures[uid]
		if !ok {
			return errors.NotFoundf("Research structure with uid %s does not exist", uid)
		}
		rs = deepCopy(found)
		return nil
	})
	return rs, err
}

func (d structureDAO) FindByIdentifier(_ context.Context, id model.Identifier) (model.ResearchStructure, error) {
	var rs model.ResearchStructure
	err := d.s.read(func(st *state) error {
		uid, ok := structureByIdentifier(st, id)
		if !ok {
			return errors.NotFoundf("no research structure with identifier %s %s", id.Type, id.Value)
		}
		rs = deepCopy(st.structures[uid])
		return nil
	})
	return rs, err
}
