package memstore

import (
	"context"
	"slices"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

type conceptDAO struct{ s *Store }

func (d conceptDAO) Get(_ context.Context, uri string) (model.Concept, error) {
	var c model.Concept
	err := d.s.read(func(st *state) error {
		found, ok := st.concepts[uri]
		if !ok || uri == "" {
			return errors.NotFoundf("Concept with uri %s does not exist", uri)
		}
		c = deepCopy(found)
		return nil
	})
	return c, err
}

func (d conceptDAO) FindByPrefLabel(_ context.Context, label model.Literal) (model.Concept, error) {
	var c model.Concept
	err := d.s.read(func(st *state) error {
		found, ok := st.concepts[labelKey(label)]
		if !ok {
			return errors.NotFoundf("no concept labelled %q", label.Value)
		}
		c = deepCopy(found)
		return nil
	})
	return c, err
}

func (d conceptDAO) Create(_ context.Context, c model.Concept) error {
	key := conceptKey(c)
	if key == "" {
		return errors.Validationf("concept has neither uri nor pref_label")
	}
	return d.s.write(func(st *state) error {
		if _, exists := st.concepts[key]; exists {
			return errors.Conflictf("Concept %s already exists", c.URI)
		}
		st.concepts[key] = deepCopy(c)
		return nil
	})
}

func (d conceptDAO) Update(_ context.Context, c model.Concept) error {
	return d.s.write(func(st *state) error {
		if _, exists := st.concepts[c.URI]; !exists || c.URI == "" {
			return errors.NotFoundf("Concept with uri %s does not exist", c.URI)
		}
		st.concepts[c.URI] = deepCopy(c)
		return nil
	})
}

type journalDAO struct{ s *Store }

func (d journalDAO) Exists(_ context.Context, uid string) (bool, error) {
	var ok bool
	err := d.s.read(func(st *state) error {
		_, ok = st.journals[uid]
		return nil
	})
	return ok, err
}

func (d journalDAO) Create(_ context.Context, j model.SourceJournal) error {
	return d.s.write(func(st *state) error {
		if _, exists := st.journals[j.UID]; exists {
			return errors.Conflictf("Source journal with uid %s already exists", j.UID)
		}
		st.journals[j.UID] = deepCopy(j)
		return nil
	})
}

func (d journalDAO) Update(_ context.Context, j model.SourceJournal) error {
	return d.s.write(func(st *state) error {
		if _, exists := st.journals[j.UID]; !exists {
			return errors.NotFoundf("Source journal with uid %s does not exist", j.UID)
		}
		st.journals[j.UID] = deepCopy(j)
		return nil
	})
}

func (d journalDAO) Get(_ context.Context, uid string) (model.SourceJournal, error) {
	var j model.SourceJournal
	err := d.s.read(func(st *state) error {
		found, ok := st.journals[uid]
		if !ok {
			return errors.NotFoundf("Source journal with uid %s does not exist", uid)
		}
		j = deepCopy(found)
		return nil
	})
	return j, err
}

type recordDAO struct{ s *Store }

func (d recordDAO) Exists(_ context.Context, uid string) (bool, error) {
	var ok bool
	err := d.s.read(func(st *state) error {
		_, ok = st.records[uid]
		return nil
	})
	return ok, err
}

func (d recordDAO) Create(_ context.Context, r model.SourceRecord, ownerUID string) error {
	return d.s.write(func(st *state) error {
		if _, exists := st.records[r.UID]; exists {
			return errors.Conflictf("Source record with uid %s already exists", r.UID)
		}
		node, err := newRecordNode(st, r, ownerUID)
		if err != nil {
			return err
		}
		st.records[r.UID] = node
		return nil
	})
}

func (d recordDAO) Update(_ context.Context, r model.SourceRecord, ownerUID string) error {
	return d.s.write(func(st *state) error {
		current, exists := st.records[r.UID]
		if !exists {
			return errors.NotFoundf("Source record with uid %s does not exist", r.UID)
		}
		node, err := newRecordNode(st, r, ownerUID)
		if err != nil {
			return err
		}
		for _, owner := range current.owners {
			if !slices.Contains(node.owners, owner) {
				node.owners = append(node.owners, owner)
			}
		}
		st.records[r.UID] = node
		return nil
	})
}

func newRecordNode(st *state, r model.SourceRecord, ownerUID string) (recordNode, error) {
	if _, ok := st.people[ownerUID]; !ok {
		return recordNode{}, errors.ReferenceOwnerNotFoundf("Person with uid %s does not exist", ownerUID)
	}

	node := recordNode{record: deepCopy(r), owners: []string{ownerUID}}
	node.record.Subjects = nil
	node.record.Issue = nil

	for _, subject := range r.Subjects {
		key := conceptKey(subject)
		if _, ok := st.concepts[key]; ok && !slices.Contains(node.subjectKeys, key) {
			node.subjectKeys = append(node.subjectKeys, key)
		}
	}

	if r.Issue != nil {
		if _, ok := st.journals[r.Issue.Journal.UID]; !ok {
			return recordNode{}, errors.Validationf("journal %s of issue %s is not persisted",
				r.Issue.Journal.UID, r.Issue.UID)
		}
		issue := deepCopy(*r.Issue)
		issue.Journal = model.SourceJournal{}
		st.issues[r.Issue.UID] = issueNode{issue: issue, journalUID: r.Issue.Journal.UID}
		node.issueUID = r.Issue.UID
	}

	return node, nil
}

func (d recordDAO) Get(_ context.Context, uid string) (model.SourceRecord, error) {
	var r model.SourceRecord
	err := d.s.read(func(st *state) error {
		node, ok := st.records[uid]
		if !ok {
			return errors.NotFoundf("Source record with uid %s does not exist", uid)
		}
		r = deepCopy(node.record)
		for _, key := range node.subjectKeys {
			if c, ok := st.concepts[key]; ok {
				r.Subjects = append(r.Subjects, deepCopy(c))
			}
		}
		if in, ok := st.issues[node.issueUID]; ok {
			issue := deepCopy(in.issue)
			issue.Journal = deepCopy(st.journals[in.journalUID])
			r.Issue = &issue
		}
		return nil
	})
	return r, err
}

func (d recordDAO) Owners(_ context.Context, uid string) ([]string, error) {
	var owners []string
	err := d.s.read(func(st *state) error {
		node, ok := st.records[uid]
		if !ok {
			return errors.NotFoundf("Source record with uid %s does not exist", uid)
		}
		owners = slices.Clone(node.owners)
		return nil
	})
	return owners, err
}
