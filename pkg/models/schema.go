package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrConfigSchema = errors.New("node config does not match schema")

// NodeConfigSchemas holds the JSON schema of every built-in node type.
var NodeConfigSchemas = map[NodeType]map[string]any{
	NodeTypeTrigger: {
		"type": "object",
		"properties": map[string]any{
			"triggerType": map[string]any{
				"type": "string",
				"enum": triggerTypeNames(),
			},
			"cron": map[string]any{"type": "string"},
		},
	},
	NodeTypeAction: {
		"type": "object",
		"properties": map[string]any{
			"actionType":   map[string]any{"type": "string", "minLength": 1},
			"maxRetries":   map[string]any{"type": "integer", "minimum": 0, "maximum": 10},
			"retryDelayMs": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"actionType"},
	},
	NodeTypeCondition: {
		"type": "object",
		"properties": map[string]any{
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"field", "operator"},
	},
	NodeTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"durationMs": map[string]any{"type": "number", "minimum": 0},
			"duration":   map[string]any{"type": []string{"number", "string"}},
		},
	},
	NodeTypeAI: {
		"type": "object",
		"properties": map[string]any{
			"task":      map[string]any{"type": "string", "minLength": 1},
			"prompt":    map[string]any{"type": "string"},
			"input":     map[string]any{"type": "object"},
			"outputKey": map[string]any{"type": "string"},
		},
		"required": []string{"task"},
	},
}

// ValidateNodeConfig checks a raw node config against the schema registered
// for its type. Types without a schema are accepted as-is.
func ValidateNodeConfig(nodeType NodeType, config map[string]any) error {
	schema, ok := NodeConfigSchemas[nodeType]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrConfigSchema, strings.Join(msgs, "; "))
	}

	return nil
}

func triggerTypeNames() []string {
	names := make([]string, 0, len(TriggerTypes))
	for _, t := range TriggerTypes {
		names = append(names, string(t))
	}

	return names
}
