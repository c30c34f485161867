package model

import "github.com/CRISalid-esr/crisalid-ikg/errors"

// Concept is a SKOS-like subject. A concept without uri is an unresolved
// term and carries exactly one preferred label and no alternative label.
type Concept struct {
	URI        string    `json:"uri,omitempty"`
	PrefLabels []Literal `json:"pref_labels" validate:"dive"`
	AltLabels  []Literal `json:"alt_labels" validate:"dive"`
}

// Validate checks the labels and the uri-less invariant
func (c Concept) Validate() error {
	if err := checkStruct(KindConcept, c); err != nil {
		return err
	}
	if c.URI == "" && (len(c.PrefLabels) != 1 || len(c.AltLabels) != 0) {
		return errors.Validationf(
			"a concept without uri must have exactly one pref_label and no alt_label, got %d and %d",
			len(c.PrefLabels), len(c.AltLabels))
	}
	return nil
}

// Merge returns the concept resulting from applying incoming onto c.
// Preferred labels are replaced per language: an incoming label overwrites
// the existing label of the same language and is appended otherwise.
// Alternative labels only grow: an incoming label is appended unless an
// identical one exists.
func (c Concept) Merge(incoming Concept) Concept {
	merged := Concept{
		URI:        c.URI,
		PrefLabels: append([]Literal(nil), c.PrefLabels...),
		AltLabels:  append([]Literal(nil), c.AltLabels...),
	}
	if merged.URI == "" {
		merged.URI = incoming.URI
	}

	for _, label := range incoming.PrefLabels {
		replaced := false
		for i, existing := range merged.PrefLabels {
			if existing.Language == label.Language {
				merged.PrefLabels[i] = label
				replaced = true
				break
			}
		}
		if !replaced {
			merged.PrefLabels = append(merged.PrefLabels, label)
		}
	}

	for _, label := range incoming.AltLabels {
		if !containsLiteral(merged.AltLabels, label) {
			merged.AltLabels = append(merged.AltLabels, label)
		}
	}

	return merged
}

func containsLiteral(list []Literal, l Literal) bool {
	for _, existing := range list {
		if existing.SameAs(l) {
			return true
		}
	}
	return false
}
