// Package identifier derives uids from agent identifiers.
//
// A uid is "<type>-<value>" built from the first identifier type of the
// configured priority list that the agent carries. The same list order is
// used when looking an agent up by its identifiers.
package identifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

// Service computes and inverts uids according to per-kind priority lists
type Service struct {
	priorities map[model.Kind][]string
}

// NewService creates a service from the people and structure priority lists.
// Unknown identifier types are rejected.
func NewService(people, structures []string) (*Service, error) {
	priorities := map[model.Kind][]string{
		model.KindPerson:            slices.Clone(people),
		model.KindResearchStructure: slices.Clone(structures),
	}
	for kind, order := range priorities {
		if len(order) == 0 {
			return nil, errors.WrapFatal(fmt.Errorf("empty priority list for %s", kind),
				"identifier", "NewService", "check priorities")
		}
		for _, t := range order {
			if !model.IsIdentifierType(kind, t) {
				return nil, errors.WrapFatal(fmt.Errorf("unknown %s identifier type %q", kind, t),
					"identifier", "NewService", "check priorities")
			}
		}
	}
	return &Service{priorities: priorities}, nil
}

// Priority returns the configured priority list of an agent kind
func (s *Service) Priority(kind model.Kind) []string {
	return slices.Clone(s.priorities[kind])
}

// ComputeUID returns the uid of agent from its highest-priority identifier
func (s *Service) ComputeUID(agent model.Agent) (string, error) {
	ids := agent.AgentIdentifiers()
	for _, t := range s.priorities[agent.Kind()] {
		for _, id := range ids {
			if id.Type == t {
				return id.Type + model.UIDSeparator + id.Value, nil
			}
		}
	}
	return "", errors.MissingIdentifierf("%s has none of the identifier types %s",
		agent.Kind(), strings.Join(s.priorities[agent.Kind()], ", "))
}

// IdentifierFromUID splits uid on its first separator. The type must be a
// valid identifier type for kind.
func (s *Service) IdentifierFromUID(kind model.Kind, uid string) (model.Identifier, error) {
	t, v, ok := strings.Cut(uid, model.UIDSeparator)
	if !ok || t == "" || v == "" {
		return model.Identifier{}, errors.InvalidUIDFormatf("uid %q has no type separator", uid)
	}
	if !model.IsIdentifierType(kind, t) {
		return model.Identifier{}, errors.InvalidUIDFormatf("uid %q: %q is not a %s identifier type", uid, t, kind)
	}
	return model.Identifier{Type: t, Value: v}, nil
}

// IdentifiersAreIdentical reports whether a and b hold the same
// (type, value) pairs, in any order.
func IdentifiersAreIdentical(a, b []model.Identifier) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[model.Identifier]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		if counts[id] == 0 {
			return false
		}
		counts[id]--
	}
	return true
}

// Diff returns the identifiers of current missing from incoming and the
// identifiers of incoming missing from current.
func Diff(current, incoming []model.Identifier) (removed, added []model.Identifier) {
	for _, id := range current {
		if !slices.Contains(incoming, id) {
			removed = append(removed, id)
		}
	}
	for _, id := range incoming {
		if !slices.Contains(current, id) {
			added = append(added, id)
		}
	}
	return removed, added
}
