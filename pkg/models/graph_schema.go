package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// graphSchema is the minimal shape a graph snapshot must satisfy before a
// run is created against it. Node-type-specific config is the engine's
// concern and is not validated here.
const graphSchema = `{
	"type": "object",
	"required": ["nodes"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "data"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"data": {
						"type": "object",
						"required": ["type"],
						"properties": {
							"type": {"type": "string", "minLength": 1},
							"title": {"type": "string"}
						}
					}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source", "target"],
				"properties": {
					"source": {"type": "string"},
					"target": {"type": "string"}
				}
			}
		}
	}
}`

// ValidateGraph checks a serialized graph snapshot against the graph schema.
func ValidateGraph(graph json.RawMessage) error {
	if len(graph) == 0 {
		return fmt.Errorf("graph snapshot is empty")
	}

	schemaLoader := gojsonschema.NewStringLoader(graphSchema)
	dataLoader := gojsonschema.NewBytesLoader(graph)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate graph snapshot: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("graph schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
