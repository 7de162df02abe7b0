package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for the authored workflow
// definition format. Embedded as a constant to avoid filesystem
// dependencies. Back-compatibility matters: existing authored
// definitions must keep validating, so additions here stay permissive.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://gobby.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "type": { "type": "string", "enum": ["step", "lifecycle", "pipeline"] },
    "description": { "type": "string" },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "triggers": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": { "$ref": "#/$defs/action" }
      }
    },
    "variables": { "type": "object" },
    "exit_condition": { "type": "string" },
    "on_premature_stop": {
      "type": "array",
      "items": { "$ref": "#/$defs/action" }
    },
    "sources": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "status_message": { "type": "string" },
        "transitions": {
          "type": "array",
          "items": { "$ref": "#/$defs/transition" }
        },
        "on_enter": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "on_exit": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "allowed_tools": { "$ref": "#/$defs/tool_list" },
        "blocked_tools": { "type": "array", "items": { "type": "string" } },
        "allowed_mcp_tools": { "$ref": "#/$defs/tool_list" },
        "blocked_mcp_tools": { "type": "array", "items": { "type": "string" } },
        "on_mcp_success": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "on_mcp_error": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "rules": { "type": "array", "items": { "$ref": "#/$defs/rule" } },
        "exit_conditions": {
          "type": "array",
          "items": { "$ref": "#/$defs/exit_condition" }
        }
      },
      "additionalProperties": false
    },
    "transition": {
      "type": "object",
      "required": ["to"],
      "properties": {
        "to": { "type": "string", "minLength": 1 },
        "when": { "type": "string" }
      },
      "additionalProperties": false
    },
    "rule": {
      "type": "object",
      "required": ["when", "action"],
      "properties": {
        "name": { "type": "string" },
        "when": { "type": "string" },
        "action": {
          "type": "string",
          "enum": ["block", "require_approval", "warn", "allow"]
        },
        "reason": { "type": "string" }
      },
      "additionalProperties": false
    },
    "exit_condition": {
      "oneOf": [
        { "type": "string" },
        {
          "type": "object",
          "required": ["when"],
          "properties": {
            "id": { "type": "string" },
            "when": { "type": "string" },
            "requires_approval": { "type": "boolean" },
            "prompt": { "type": "string" },
            "timeout_seconds": { "type": "integer", "minimum": 0 }
          },
          "additionalProperties": false
        }
      ]
    },
    "tool_list": {
      "oneOf": [
        { "type": "null" },
        { "type": "string", "const": "all" },
        { "type": "array", "items": { "type": "string" } }
      ]
    },
    "action": {
      "type": "object",
      "required": ["action"],
      "properties": {
        "action": { "type": "string", "minLength": 1 },
        "when": { "type": "string" }
      }
    }
  }
}`

// schemaValidator checks a definition against the embedded JSON Schema.
// Safe for concurrent use after construction.
type schemaValidator struct {
	compiled *jsonschema.Schema
}

// newSchemaValidator compiles the embedded workflow schema.
func newSchemaValidator() (*schemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://gobby.dev/schemas/workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	compiled, err := c.Compile("https://gobby.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &schemaValidator{compiled: compiled}, nil
}

// check validates the definition, appending SCHEMA_VIOLATION findings.
func (v *schemaValidator) check(def *schema.WorkflowDefinition, ev *schema.WorkflowEvaluation) {
	doc, err := toJSONValue(def)
	if err != nil {
		ev.AddError(schema.FindingSchemaViolation, "failed to serialize workflow definition: "+err.Error(), "")
		return
	}

	if err := v.compiled.Validate(doc); err != nil {
		for _, violation := range collectViolations(err) {
			ev.AddError(schema.FindingSchemaViolation, violation, "")
		}
	}
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and collects leaf
// messages with their instance locations.
func collectViolations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
