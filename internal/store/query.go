// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// GetHistory returns up to size history rows with tag_time > startTime,
// oldest first, grounded on internal/repository/query.go's squirrel
// idiom. A malformed startTime is the caller's concern (§6: the HTTP
// adapter rejects it with 400 before ever reaching here).
func (s *Store) GetHistory(ctx context.Context, startTime time.Time, size int) ([]HistoryRow, error) {
	if size <= 0 {
		size = s.batchSize
	}
	query, args, err := sq.Select("history.id", "history.tag_id", "history.tag_time", "history.status",
		"history.bool_value", "history.int_value", "history.float_value", "history.str_value",
		"COALESCE(tags.type, '') AS type").
		From("history").
		LeftJoin("tags ON tags.id = history.tag_id").
		Where(sq.Gt{"history.tag_time": startTime}).
		OrderBy("history.tag_time ASC").
		Limit(uint64(size)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build GetHistory: %w", err)
	}

	var rows []HistoryRow
	if err := s.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: GetHistory: %w", err)
	}
	return rows, nil
}

// GetHistorySince returns up to size history rows with id > afterID,
// oldest first — the cursor-based read the forwarder (§4.8) uses instead
// of GetHistory's time-based window, since the forwarder must never skip
// or re-deliver a row regardless of clock skew between tag_time values.
func (s *Store) GetHistorySince(ctx context.Context, afterID int64, size int) ([]HistoryRow, error) {
	if size <= 0 {
		size = s.batchSize
	}
	query, args, err := sq.Select("id", "tag_id", "tag_time", "status", "bool_value", "int_value", "float_value", "str_value").
		From("history").
		Where(sq.Gt{"id": afterID}).
		OrderBy("id ASC").
		Limit(uint64(size)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build GetHistorySince: %w", err)
	}

	var rows []HistoryRow
	if err := s.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: GetHistorySince: %w", err)
	}
	return rows, nil
}

// GetCurrent returns every row of the current table (§6: GET /api/current).
func (s *Store) GetCurrent(ctx context.Context) ([]CurrentRow, error) {
	query, args, err := sq.Select("current.tag_id", "current.tag_time", "current.status",
		"current.bool_value", "current.int_value", "current.float_value", "current.str_value",
		"COALESCE(tags.type, '') AS type").
		From("current").
		LeftJoin("tags ON tags.id = current.tag_id").
		OrderBy("current.tag_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build GetCurrent: %w", err)
	}

	var rows []CurrentRow
	if err := s.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: GetCurrent: %w", err)
	}
	return rows, nil
}

// GetState returns every row of the state table (§6: GET /api/state).
func (s *Store) GetState(ctx context.Context) ([]StateRow, error) {
	query, args, err := sq.Select("id", "value", "description").From("state").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build GetState: %w", err)
	}

	var rows []StateRow
	if err := s.conn.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: GetState: %w", err)
	}
	return rows, nil
}

// SetState upserts a single state row. Used by the forwarder to persist
// its delivery cursor (§4.8) and by SetConfig to publish tag/connector
// counts (§9 Open Question #3).
func (s *Store) SetState(ctx context.Context, id, value, description string) error {
	query := s.upsertStateSQL()
	_, err := s.conn.DB.ExecContext(ctx, query, id, value, description)
	if err != nil {
		return fmt.Errorf("store: SetState %s: %w", id, err)
	}
	return nil
}

func (s *Store) upsertStateSQL() string {
	if s.driver == "mysql" {
		return `INSERT INTO state (id, value, description) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE value=VALUES(value), description=VALUES(description)`
	}
	return `INSERT INTO state (id, value, description) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET value=excluded.value, description=excluded.description`
}
