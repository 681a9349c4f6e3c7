package parts

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidParts is returned when interchange input does not match the parts schema.
var ErrInvalidParts = errors.New("invalid parts")

const partsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "minProperties": 1,
    "properties": {
      "text": {"type": "string"},
      "inline_data": {"$ref": "#/definitions/blob"},
      "inlineData": {"$ref": "#/definitions/blob"},
      "executable_code": {"$ref": "#/definitions/code"},
      "executableCode": {"$ref": "#/definitions/code"},
      "code_execution_result": {"$ref": "#/definitions/result"},
      "codeExecutionResult": {"$ref": "#/definitions/result"},
      "functionCall": {"$ref": "#/definitions/call"},
      "function_call": {"$ref": "#/definitions/call"},
      "functionResponse": {"$ref": "#/definitions/response"},
      "function_response": {"$ref": "#/definitions/response"},
      "fileData": {"$ref": "#/definitions/file"},
      "file_data": {"$ref": "#/definitions/file"}
    }
  },
  "definitions": {
    "blob": {
      "type": "object",
      "required": ["data"],
      "properties": {
        "mime_type": {"type": "string"},
        "mimeType": {"type": "string"},
        "data": {"type": "string"}
      }
    },
    "code": {
      "type": "object",
      "required": ["language", "code"],
      "properties": {
        "language": {"enum": ["LANGUAGE_UNSPECIFIED", "PYTHON"]},
        "code": {"type": "string"}
      }
    },
    "result": {
      "type": "object",
      "required": ["outcome"],
      "properties": {
        "outcome": {"enum": ["OUTCOME_UNSPECIFIED", "OUTCOME_OK", "OUTCOME_FAILED", "OUTCOME_DEADLINE_EXCEEDED"]},
        "output": {"type": "string"}
      }
    },
    "call": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"}
      }
    },
    "response": {
      "type": "object",
      "required": ["name", "response"],
      "properties": {
        "id": {"type": "string"},
        "name": {"type": "string"}
      }
    },
    "file": {
      "type": "object",
      "properties": {
        "mimeType": {"type": "string"},
        "mime_type": {"type": "string"},
        "fileUrl": {"type": "string"},
        "fileUri": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(partsSchema))
	})
	return schema, schemaErr
}

// Validate checks that data is a JSON part sequence in the interchange form.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile parts schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParts, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidParts, strings.Join(msgs, "; "))
	}
	return nil
}
