// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks instance against the given JSON Schema document,
// returning an error instead of calling log.Fatal — see Load's doc
// comment for why.
func Validate(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("rtds-config.json", schema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: unmarshal instance: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}

// configSchema describes the three top-level config sheets (§3, §6).
const configSchema = `{
	"type": "object",
	"description": "RTDS runtime configuration: connectors, tags, and scripts.",
	"properties": {
		"connectors": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"cycle": {"type": "number", "exclusiveMinimum": 0},
					"connection_string": {"type": "string"},
					"is_read_only": {"type": "boolean"},
					"description": {"type": "string"}
				},
				"required": ["name", "cycle", "connection_string"]
			}
		},
		"tags": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"type": {"type": "string", "enum": ["bool", "int", "float", "array"]},
					"source": {"type": "string"},
					"min": {"type": "number"},
					"max": {"type": "number"},
					"is_log": {"type": "boolean"},
					"connector_name": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["name", "type", "source"]
			}
		},
		"scripts": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"cycle": {"type": "number", "exclusiveMinimum": 0},
					"is_active": {"type": "boolean"},
					"body": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["name", "cycle", "body"]
			}
		}
	},
	"required": ["connectors", "tags"]
}`
