// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantdata/rtds/internal/store"
)

// configStore is the narrow slice of *store.Store a StoreLoader needs,
// kept as an interface so tests can fake it without a real database.
type configStore interface {
	GetConfig(ctx context.Context) (store.Config, error)
}

// StoreLoader adapts the config tables POST /api/config writes through
// (§6) into a Loader, so that the documented POST /api/config ->
// POST /api/reload workflow (§4.5) actually changes what the scan loop
// runs: both ends now read and write the same store-backed config
// instead of a JSON file untouched by the HTTP API.
type StoreLoader struct {
	Store configStore
}

// NewStoreLoader builds a Loader backed by st's config tables.
func NewStoreLoader(st configStore) *StoreLoader {
	return &StoreLoader{Store: st}
}

// Load implements Loader. It re-validates the assembled document against
// configSchema, the same check JSONLoader applies, so a config table
// populated by something other than postConfig (a manual migration, a
// hand-edited row) still can't push the scan loop into an invalid state.
func (l *StoreLoader) Load(ctx context.Context) (*Config, error) {
	cfg, err := l.Store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: load from store: %w", err)
	}

	out := &Config{
		Connectors: make([]ConnectorConfig, len(cfg.Connectors)),
		Tags:       make([]TagConfig, len(cfg.Tags)),
		Scripts:    make([]ScriptConfig, len(cfg.Scripts)),
	}
	for i, c := range cfg.Connectors {
		out.Connectors[i] = ConnectorConfig{
			Name:             c.ID,
			Cycle:            c.Cycle,
			ConnectionString: c.ConnectionString,
			IsReadOnly:       c.IsReadOnly,
			Description:      c.Description,
		}
	}
	for i, t := range cfg.Tags {
		out.Tags[i] = TagConfig{
			Name:          t.ID,
			Type:          t.Type,
			Source:        t.Source,
			Min:           t.Min,
			Max:           t.Max,
			IsLog:         t.IsLog,
			ConnectorName: t.ConnectorName,
			Description:   t.Description,
		}
	}
	for i, sc := range cfg.Scripts {
		out.Scripts[i] = ScriptConfig{
			Name:        sc.ID,
			Cycle:       sc.Cycle,
			IsActive:    sc.IsActive,
			Body:        sc.Script,
			Description: sc.Description,
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("config: marshal store config: %w", err)
	}
	if err := Validate(configSchema, raw); err != nil {
		return nil, fmt.Errorf("config: validate store config: %w", err)
	}

	return out, nil
}

// SeedFromJSON loads path through a JSONLoader and writes its contents
// into st via SetConfig, letting an operator bootstrap the store-backed
// config from the same document shape -apply-config validates (§6). It
// is a one-shot import, not a standing config source: once seeded, the
// scan loop and the HTTP API both read and write through st exclusively.
func SeedFromJSON(ctx context.Context, path string, st interface {
	SetConfig(ctx context.Context, cfg store.Config) error
}) error {
	cfg, err := NewJSONLoader(path).Load(ctx)
	if err != nil {
		return err
	}

	seeded := store.Config{
		Connectors: make([]store.ConnectorRow, len(cfg.Connectors)),
		Tags:       make([]store.TagRow, len(cfg.Tags)),
		Scripts:    make([]store.ScriptRow, len(cfg.Scripts)),
	}
	for i, c := range cfg.Connectors {
		seeded.Connectors[i] = store.ConnectorRow{
			ID:               c.Name,
			Cycle:            c.Cycle,
			IsReadOnly:       c.IsReadOnly,
			ConnectionString: c.ConnectionString,
			Description:      c.Description,
		}
	}
	for i, t := range cfg.Tags {
		seeded.Tags[i] = store.TagRow{
			ID:            t.Name,
			Type:          t.Type,
			Min:           t.Min,
			Max:           t.Max,
			IsLog:         t.IsLog,
			ConnectorName: t.ConnectorName,
			Source:        t.Source,
			Description:   t.Description,
		}
	}
	for i, sc := range cfg.Scripts {
		seeded.Scripts[i] = store.ScriptRow{
			ID:          sc.Name,
			Cycle:       sc.Cycle,
			IsActive:    sc.IsActive,
			Script:      sc.Body,
			Description: sc.Description,
		}
	}

	return st.SetConfig(ctx, seeded)
}
