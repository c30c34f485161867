// Package envelope validates and decodes inbound event envelopes
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
)

// EventType is the type field of an inbound event
type EventType string

// Event types sent by the directory and the harvesters
const (
	Created   EventType = "created"
	Updated   EventType = "updated"
	Unchanged EventType = "unchanged"
	Deleted   EventType = "deleted"
)

// Schema is a compiled JSON schema for one envelope shape
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile compiles source and panics if it is not a valid schema.
// Schemas are package-level literals, so a failure is a programming error.
func MustCompile(name, source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("envelope: compile %s schema: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Decode validates data against the schema, then unmarshals it into out.
// Both failures are validation errors.
func (s *Schema) Decode(data []byte, out any) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.Validationf("%s envelope is not valid JSON: %v", s.name, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.Validationf("%s envelope rejected: %s", s.name, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Validationf("%s envelope cannot be decoded: %v", s.name, err)
	}
	return nil
}

// EventSchema builds the schema of an envelope whose event object sits under
// eventKey and carries its entity under dataKey. Extra top-level required
// keys are listed in required.
func EventSchema(eventKey, dataKey string, required ...string) string {
	req := append([]string{eventKey}, required...)
	quoted := make([]string, len(req))
	for i, r := range req {
		quoted[i] = fmt.Sprintf("%q", r)
	}

	return fmt.Sprintf(`{
  "type": "object",
  "required": [%s],
  "properties": {
    %q: {
      "type": "object",
      "required": ["type", %q],
      "properties": {
        "type": {"type": "string", "enum": ["created", "updated", "unchanged", "deleted"]},
        %q: {"type": "object"}
      }
    }
  }
}`, strings.Join(quoted, ", "), eventKey, dataKey, dataKey)
}
