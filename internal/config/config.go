// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config implements the connector/tag/script config loader
// (§6 `[FULL]`): a JSON-backed implementation carrying the same three
// logical sheets (connectors, tags, scripts) as top-level arrays,
// validated against an embedded JSON Schema document via
// internal/config/validate.go.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ConnectorConfig is one row of the "connectors" sheet.
type ConnectorConfig struct {
	Name             string  `json:"name"`
	Cycle            float64 `json:"cycle"`
	ConnectionString string  `json:"connection_string"`
	IsReadOnly       bool    `json:"is_read_only"`
	Description      string  `json:"description"`
}

// TagConfig is one row of the "tags" sheet.
type TagConfig struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Source        string  `json:"source"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	IsLog         bool    `json:"is_log"`
	ConnectorName string  `json:"connector_name"`
	Description   string  `json:"description"`
}

// ScriptConfig is one row of the "scripts" sheet.
type ScriptConfig struct {
	Name        string  `json:"name"`
	Cycle       float64 `json:"cycle"`
	IsActive    bool    `json:"is_active"`
	Body        string  `json:"body"`
	Description string  `json:"description"`
}

// Config is the full set of configured connectors, tags, and scripts
// (§3's three config tables).
type Config struct {
	Connectors []ConnectorConfig `json:"connectors"`
	Tags       []TagConfig       `json:"tags"`
	Scripts    []ScriptConfig    `json:"scripts"`
}

// Loader is the narrow interface the scan loop depends on to (re)load
// configuration — satisfied by JSONLoader here and by the database-backed
// StoreLoader in storeloader.go.
type Loader interface {
	Load(ctx context.Context) (*Config, error)
}

// JSONLoader reads a JSON document from a file path and validates it
// against configSchema before decoding.
type JSONLoader struct {
	Path string
}

// NewJSONLoader builds a loader rooted at path.
func NewJSONLoader(path string) *JSONLoader {
	return &JSONLoader{Path: path}
}

// Load implements Loader. It returns an error rather than calling
// log.Fatal on a bad config: §7 requires RELOAD
// to keep the previous configuration intact when the new one fails to
// validate or parse, so the scan loop — not this package — decides
// whether a load failure is fatal (startup) or recoverable (reload).
func (l *JSONLoader) Load(_ context.Context) (*Config, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", l.Path, err)
	}

	if err := Validate(configSchema, raw); err != nil {
		return nil, fmt.Errorf("config: validate %q: %w", l.Path, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", l.Path, err)
	}

	return &cfg, nil
}
