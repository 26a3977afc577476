package assert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaErrors lists every violation found in one document.
type SchemaErrors []error

func (e SchemaErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schema []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

// ValidateSchema checks body against schema. Violations are returned as
// SchemaErrors.
func ValidateSchema(schema *jsonschema.Schema, body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		return flatten(ve)
	}
	return SchemaErrors{err}
}

func flatten(ve *jsonschema.ValidationError) SchemaErrors {
	var errs SchemaErrors
	if ve.Message != "" && len(ve.Causes) == 0 {
		errs = append(errs, fmt.Errorf("%s: %s", location(ve.InstanceLocation), ve.Message))
	}
	for _, cause := range ve.Causes {
		errs = append(errs, flatten(cause)...)
	}
	return errs
}

func location(ptr string) string {
	if ptr == "" {
		return "/"
	}
	return ptr
}
