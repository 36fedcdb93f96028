// Package schema validates decoded wire payloads against declarative JSON
// Schema documents. A Validator is compiled once and is safe for concurrent
// use.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks values against a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// ValidationError lists every violation found in a value.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("value does not conform to schema: %s", strings.Join(e.Issues, "; "))
}

// Compile parses a JSON Schema document.
func Compile(doc string) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustCompile is like Compile but panics on an invalid document. It is meant
// for package-level schemas.
func MustCompile(doc string) *Validator {
	v, err := Compile(doc)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks value, which must be a decoded JSON value (maps, slices,
// strings, numbers, booleans or nil).
func (v *Validator) Validate(value any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return fmt.Errorf("failed to validate value: %w", err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, re.String())
	}
	return &ValidationError{Issues: issues}
}

// Conforms reports whether value satisfies the schema. It never panics.
func (v *Validator) Conforms(value any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.Validate(value) == nil
}
