// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
)

// Config is the full set of config-table rows exchanged by SetConfig and
// GetConfig (§4.11, §6's /api/config).
type Config struct {
	Connectors []ConnectorRow `json:"connectors"`
	Tags       []TagRow       `json:"tags"`
	Scripts    []ScriptRow    `json:"scripts"`
}

// SetConfig drops and recreates the three config tables and bulk-inserts
// cfg's rows, then publishes tag_counter/connector_counter to state. This
// is the config replace path behind POST /api/config and -seed-config
// (§9 Open Question #3): unlike GetConfig, it does update state, scoped
// down to just the counters rather than every table. An engine reload
// only reads the config tables through GetConfig.
func (s *Store) SetConfig(ctx context.Context, cfg Config) error {
	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin SetConfig: %w", err)
	}

	for _, stmt := range resetConfigTablesSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: reset config tables: %w", err)
		}
	}

	insertConnector := `INSERT INTO connectors (id, cycle, is_read_only, connection_string, description, updated_at)
		VALUES (:id, :cycle, :is_read_only, :connection_string, :description, :updated_at)`
	for _, c := range cfg.Connectors {
		if _, err := tx.NamedExecContext(ctx, insertConnector, c); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert connector %s: %w", c.ID, err)
		}
	}

	insertScript := `INSERT INTO scripts (id, cycle, is_active, script, description, updated_at)
		VALUES (:id, :cycle, :is_active, :script, :description, :updated_at)`
	for _, sc := range cfg.Scripts {
		if _, err := tx.NamedExecContext(ctx, insertScript, sc); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert script %s: %w", sc.ID, err)
		}
	}

	insertTag := `INSERT INTO tags (id, type, min, max, is_log, connector_name, source, description, updated_at)
		VALUES (:id, :type, :min, :max, :is_log, :connector_name, :source, :description, :updated_at)`
	for _, t := range cfg.Tags {
		if _, err := tx.NamedExecContext(ctx, insertTag, t); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert tag %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit SetConfig: %w", err)
	}

	if err := s.SetState(ctx, "tag_counter", strconv.Itoa(len(cfg.Tags)), "number of configured tags"); err != nil {
		return err
	}
	if err := s.SetState(ctx, "connector_counter", strconv.Itoa(len(cfg.Connectors)), "number of configured connectors"); err != nil {
		return err
	}
	return nil
}

// GetConfig is a pure export of the config tables: GET /api/config does
// not touch state (§9 Open Question #3's resolution drops the source's
// get_config state side effect entirely).
func (s *Store) GetConfig(ctx context.Context) (Config, error) {
	var cfg Config

	connQuery, connArgs, err := sq.Select("id", "cycle", "is_read_only", "connection_string", "description", "updated_at").
		From("connectors").OrderBy("id ASC").ToSql()
	if err != nil {
		return cfg, fmt.Errorf("store: build GetConfig connectors: %w", err)
	}
	if err := s.conn.DB.SelectContext(ctx, &cfg.Connectors, connQuery, connArgs...); err != nil {
		return cfg, fmt.Errorf("store: GetConfig connectors: %w", err)
	}

	scriptQuery, scriptArgs, err := sq.Select("id", "cycle", "is_active", "script", "description", "updated_at").
		From("scripts").OrderBy("id ASC").ToSql()
	if err != nil {
		return cfg, fmt.Errorf("store: build GetConfig scripts: %w", err)
	}
	if err := s.conn.DB.SelectContext(ctx, &cfg.Scripts, scriptQuery, scriptArgs...); err != nil {
		return cfg, fmt.Errorf("store: GetConfig scripts: %w", err)
	}

	tagQuery, tagArgs, err := sq.Select("id", "type", "min", "max", "is_log", "connector_name", "source", "description", "updated_at").
		From("tags").OrderBy("id ASC").ToSql()
	if err != nil {
		return cfg, fmt.Errorf("store: build GetConfig tags: %w", err)
	}
	if err := s.conn.DB.SelectContext(ctx, &cfg.Tags, tagQuery, tagArgs...); err != nil {
		return cfg, fmt.Errorf("store: GetConfig tags: %w", err)
	}

	return cfg, nil
}
