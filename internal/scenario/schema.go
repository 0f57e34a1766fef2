package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"dronenav/internal/model"
)

//go:embed scenario.schema.json
var schemaJSON string

// SchemaJSON returns the JSON schema uploads are checked against.
func SchemaJSON() string { return schemaJSON }

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("scenario.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// ValidateJSON checks a raw scenario document against the schema.
func ValidateJSON(b []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

// DecodeJSON validates b against the schema and the model rules and
// returns the scenario ready to plan.
func DecodeJSON(b []byte) (model.Scenario, error) {
	if err := ValidateJSON(b); err != nil {
		return model.Scenario{}, err
	}
	var sc model.Scenario
	if err := json.Unmarshal(b, &sc); err != nil {
		return model.Scenario{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := sc.Validate(); err != nil {
		return model.Scenario{}, err
	}
	sc.Reset()
	return sc, nil
}
