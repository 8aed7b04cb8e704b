package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Schema is the JSON schema every plan document must satisfy.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "hitrun plan",
  "type": "object",
  "required": ["name"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "shell": {"type": "string"},
    "variables": {"type": "object"},
    "environments": {"type": "object", "additionalProperties": {"type": "object"}},
    "traits": {"$ref": "#/definitions/traits"},
    "fixtures": {"type": "array", "items": {"$ref": "#/definitions/fixture"}},
    "collections": {"type": "array", "items": {"$ref": "#/definitions/collection"}},
    "classes": {"type": "array", "items": {"$ref": "#/definitions/class"}}
  },
  "definitions": {
    "traits": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [
          {"type": "string"},
          {"type": "array", "items": {"type": "string"}}
        ]
      }
    },
    "fixture": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "setup": {"type": "string"},
        "teardown": {"type": "string"},
        "capture": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"}
      }
    },
    "collection": {
      "type": "object",
      "required": ["name", "classes"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "parallel": {"type": "boolean"},
        "traits": {"$ref": "#/definitions/traits"},
        "fixtures": {"type": "array", "items": {"$ref": "#/definitions/fixture"}},
        "classFixtures": {"type": "array", "items": {"$ref": "#/definitions/fixture"}},
        "order": {"$ref": "#/definitions/order"},
        "classes": {"type": "array", "items": {"$ref": "#/definitions/class"}}
      }
    },
    "class": {
      "type": "object",
      "required": ["name", "tests"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "traits": {"$ref": "#/definitions/traits"},
        "fixtures": {"type": "array", "items": {"$ref": "#/definitions/fixture"}},
        "setup": {"type": "string"},
        "teardown": {"type": "string"},
        "order": {"$ref": "#/definitions/order"},
        "tests": {"type": "array", "items": {"$ref": "#/definitions/test"}}
      }
    },
    "test": {
      "type": "object",
      "required": ["name", "run"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "run": {"type": "string"},
        "skip": {"type": "string"},
        "skipWhen": {"type": "string"},
        "explicit": {"type": "boolean"},
        "timeout": {"type": "string"},
        "traits": {"$ref": "#/definitions/traits"},
        "cases": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string"},
              "args": {"type": "object"},
              "skip": {"type": "string"}
            }
          }
        },
        "expect": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "exitCode": {"type": "integer"},
            "stdoutContains": {"type": "array", "items": {"type": "string"}},
            "stderrContains": {"type": "array", "items": {"type": "string"}},
            "json": {"type": "object"},
            "assert": {"type": "array", "items": {"$ref": "#/definitions/assert"}}
          }
        },
        "capture": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    },
    "assert": {
      "type": "object",
      "required": ["subject", "op"],
      "additionalProperties": false,
      "properties": {
        "subject": {"type": "string", "minLength": 1},
        "op": {"type": "string", "minLength": 1},
        "value": {}
      }
    },
    "order": {"enum": ["default", "displayName", "declaration", "random"]}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// SchemaError lists every violation found in a plan document.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("plan does not match schema:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// ValidateSchema checks a YAML plan document against Schema.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc == nil {
		return &SchemaError{Problems: []string{"document is empty"}}
	}

	// Round-trip through JSON so YAML-only scalar types become JSON ones.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("plan cannot be represented as JSON: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &SchemaError{Problems: problems}
}
