package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaID identifies the scenario file schema.
const SchemaID = "https://github.com/teranos/longtake/schemas/scenarios-v1.json"

// Schema produces the JSON Schema (Draft 2020-12) for YAML scenario files,
// reflected from FileDoc.
func Schema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&FileDoc{})
	s.ID = SchemaID
	s.Title = "longtake scenarios v1"
	s.Description = "Browser verification scenarios: ordered navigate, wait_for, click, assert and screenshot steps"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    PhaseSemantic,
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// validateSemantic checks a decoded document against the generated schema.
func validateSemantic(doc *FileDoc) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}

	schemaJSON, err := Schema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(SchemaID, schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile(SchemaID)
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return semanticError("unmarshal document: %v", err)
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semanticError("%v", err)
	}
	var errs []*ValidationError
	for _, cause := range leafErrors(ve) {
		errs = append(errs, &ValidationError{
			Phase:    PhaseSemantic,
			Path:     strings.Join(cause.InstanceLocation, "/"),
			Message:  fmt.Sprintf("%v", cause.ErrorKind),
			Severity: "error",
		})
	}
	return errs
}

func leafErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leafErrors(cause)...)
	}
	return flat
}
