package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/eventsearch/mcp-server/internal/assets"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Violation is a single schema violation found in a document
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError reports every violation found in a document
type ValidationError struct {
	ID         string      `json:"id,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Message)
	}
	if e.ID != "" {
		return fmt.Sprintf("event %q is invalid: %s", e.ID, strings.Join(parts, "; "))
	}
	return "event is invalid: " + strings.Join(parts, "; ")
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		content, err := assets.EventSchema()
		if err != nil {
			schemaErr = fmt.Errorf("read event schema: %w", err)
			return
		}

		var schemaDoc interface{}
		if err := json.Unmarshal(content, &schemaDoc); err != nil {
			schemaErr = fmt.Errorf("parse event schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(assets.EventSchemaURL, schemaDoc); err != nil {
			schemaErr = fmt.Errorf("add event schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(assets.EventSchemaURL)
	})
	return schema, schemaErr
}

// Validate checks a raw JSON document against the event schema.
// It returns a *ValidationError when the document does not conform.
func Validate(doc []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	var instance interface{}
	if err := json.Unmarshal(doc, &instance); err != nil {
		return &ValidationError{Violations: []Violation{{Path: "$", Message: "invalid JSON: " + err.Error()}}}
	}

	if err := sch.Validate(instance); err != nil {
		verr := &ValidationError{}
		if obj, ok := instance.(map[string]interface{}); ok {
			verr.ID, _ = obj[FieldID].(string)
		}

		var schemaErr *jsonschema.ValidationError
		if errors.As(err, &schemaErr) {
			verr.Violations = collectViolations(schemaErr)
		}
		if len(verr.Violations) == 0 {
			verr.Violations = []Violation{{Path: "$", Message: err.Error()}}
		}
		return verr
	}
	return nil
}

// ValidateEvent marshals e and validates the result
func ValidateEvent(e Event) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return Validate(doc)
}

// collectViolations flattens the leaf causes of a schema validation error
func collectViolations(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		path := "$"
		if len(ve.InstanceLocation) > 0 {
			path = "$." + strings.Join(ve.InstanceLocation, ".")
		}
		return []Violation{{Path: path, Message: ve.Error()}}
	}

	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
