// Package schema validates flow documents before they are trusted.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is wrapped by every validation failure.
var ErrInvalidDocument = errors.New("invalid document")

var (
	//go:embed flow.schema.json
	flowSchema []byte

	//go:embed sample.schema.json
	sampleSchema []byte
)

var (
	flowValidator   = mustCompile(flowSchema)
	sampleValidator = mustCompile(sampleSchema)
)

// mustCompile parses an embedded schema. The schemas ship with the binary,
// so a failure here is a build defect.
func mustCompile(schema []byte) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}

	return compiled
}

// ValidateFlow checks raw JSON against the persisted flow record shape.
func ValidateFlow(raw []byte) error {
	return validate(flowValidator, raw)
}

// ValidateSample checks raw JSON against the fallback sample shape.
func ValidateSample(raw []byte) error {
	return validate(sampleValidator, raw)
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(errorMessages, "; "))
	}

	return nil
}
