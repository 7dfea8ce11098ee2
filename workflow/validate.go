package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/docuflow/workflow-engine/types"
)

// workflowSchemaJSON is the JSON Schema applied to workflow definitions at
// creation time. Silent execution-time no-ops (unrecognized transformation
// or operator) become authoring errors here.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://docuflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "trigger_type", "steps", "status"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": {
      "type": "string"
    },
    "trigger_type": {
      "type": "string",
      "enum": ["manual", "schedule", "webhook", "event"]
    },
    "schedule": {
      "type": "string"
    },
    "status": {
      "type": "string",
      "enum": ["draft", "active", "archived"]
    },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["ai_analysis", "data_fetch", "notification", "data_transform", "condition", "delay"]
        },
        "name": { "type": "string" },
        "config": { "type": "object" }
      },
      "allOf": [
        {
          "if": {
            "properties": { "type": { "const": "data_fetch" } },
            "required": ["type"]
          },
          "then": {
            "required": ["config"],
            "properties": {
              "config": {
                "type": "object",
                "required": ["source"],
                "properties": {
                  "source": { "type": "string", "minLength": 1 }
                }
              }
            }
          }
        },
        {
          "if": {
            "properties": { "type": { "const": "data_transform" } },
            "required": ["type"]
          },
          "then": {
            "required": ["config"],
            "properties": {
              "config": {
                "type": "object",
                "required": ["transformation"],
                "properties": {
                  "transformation": {
                    "type": "string",
                    "enum": ["json_extract", "filter", "map"]
                  }
                }
              }
            }
          }
        },
        {
          "if": {
            "properties": { "type": { "const": "condition" } },
            "required": ["type"]
          },
          "then": {
            "required": ["config"],
            "properties": {
              "config": {
                "type": "object",
                "anyOf": [
                  { "required": ["expression"] },
                  { "required": ["condition", "operator"] }
                ],
                "properties": {
                  "expression": { "type": "string", "minLength": 1 },
                  "condition": { "type": "string", "minLength": 1 },
                  "operator": {
                    "type": "string",
                    "enum": ["equals", "not_equals", "greater_than", "less_than", "contains"]
                  }
                }
              }
            }
          }
        },
        {
          "if": {
            "properties": { "type": { "const": "delay" } },
            "required": ["type"]
          },
          "then": {
            "required": ["config"],
            "properties": {
              "config": {
                "type": "object",
                "required": ["duration"],
                "properties": {
                  "duration": { "type": "number", "minimum": 0 }
                }
              }
            }
          }
        }
      ]
    }
  }
}`

// Validator checks workflow definitions at creation time.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the workflow JSON Schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := compiler.AddResource("https://docuflow.dev/schemas/workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	compiled, err := compiler.Compile("https://docuflow.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &Validator{schema: compiled}, nil
}

// ValidateWorkflow validates a definition against the workflow schema plus
// structural checks the schema cannot express.
func (v *Validator) ValidateWorkflow(wf types.Workflow) error {
	doc, err := toJSONValue(wf)
	if err != nil {
		return fmt.Errorf("failed to serialize workflow: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}

	if wf.TriggerType == types.TriggerSchedule {
		if wf.Schedule == "" {
			return fmt.Errorf("invalid workflow definition: trigger_type %q requires a schedule", types.TriggerSchedule)
		}
		if _, err := cron.ParseStandard(wf.Schedule); err != nil {
			return fmt.Errorf("invalid workflow definition: bad schedule %q: %w", wf.Schedule, err)
		}
	}

	return nil
}

// toJSONValue round-trips a value through JSON encoding so numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
}
