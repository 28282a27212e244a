package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// The core only ever trusts JSON-shape-valid model output; anything that
// fails validation against these schemas is dropped and treated as an empty
// result rather than surfaced as an error (§4.10).

const extractedTasksSchemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title", "category", "estimated_minutes", "source_card_index"],
    "properties": {
      "title": {"type": "string", "minLength": 1},
      "category": {
        "type": "string",
        "enum": ["assignment", "quiz", "email_reply", "application", "leetcode", "project", "admin"]
      },
      "due_at_local": {"type": ["string", "null"]},
      "estimated_minutes": {"type": "integer", "minimum": 1},
      "min_daily_minutes": {"type": "integer", "minimum": 0},
      "priority": {"type": "integer", "minimum": 1, "maximum": 5},
      "stress_weight": {"type": "number", "minimum": 0, "maximum": 1},
      "source_card_index": {"type": "integer", "minimum": 0}
    }
  }
}`

const editOperationSchemaText = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["create_block", "move_block", "resize_block", "delete_block", "mark_done", "lock_sleep", "regenerate_plan"]
    },
    "start_local": {"type": ["string", "null"]},
    "end_local": {"type": ["string", "null"]},
    "calendar_event_id": {"type": "string"},
    "fuzzy_title": {"type": "string"},
    "sleep_window_set": {"type": "boolean"},
    "requires_confirmation": {"type": "boolean"},
    "ambiguity_reason": {"type": "string"}
  }
}`

var (
	extractedTasksSchema = mustCompileSchema("extracted_tasks.json", extractedTasksSchemaText)
	editOperationSchema  = mustCompileSchema("edit_operation.json", editOperationSchemaText)
)

func mustCompileSchema(name, text string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(text)); err != nil {
		panic(fmt.Sprintf("llm: invalid embedded schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("llm: embedded schema %s does not compile: %v", name, err))
	}
	return schema
}

// validateJSON decodes raw and checks it against schema, returning the
// decoded value on success so callers don't have to unmarshal twice.
func validateJSON(schema *jsonschema.Schema, raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("model output failed schema validation: %w", err)
	}
	return v, nil
}
