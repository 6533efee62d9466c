// Package schema validates submitted events against the embedded
// artifact.submitted.v1 JSON Schema before anything acts on them. A message
// that fails here will never become valid through redelivery.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/artifactchain/relay/pkg/domain"
)

//go:embed artifact.submitted.v1.schema.json
var submittedSchemaJSON []byte

const schemaName = "artifact.submitted.v1.schema.json"

type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema once. Compilation failure means
// the binary itself is broken, so callers treat an error here as fatal.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(submittedSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse embedded schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := compiler.Compile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Validate checks one message body against the schema and decodes it.
// The returned error distinguishes malformed JSON from a schema violation
// only in its text; both are terminal for the message.
func (v *Validator) Validate(body []byte) (*domain.ArtifactSubmittedEvent, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	var ev domain.ArtifactSubmittedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}
