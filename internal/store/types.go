// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/plantdata/rtds/internal/tag"
)

// A tag's name is used as its history/current/connector/script foreign
// key throughout this package — RTDS has no separate integer tag
// identity, so the natural unique key (the tag name, per §3's "Identity:
// name") doubles as tag_id.

// HistoryRow is one append-only observation (§3).
type HistoryRow struct {
	ID         int64           `db:"id"`
	TagID      string          `db:"tag_id"`
	TagTime    time.Time       `db:"tag_time"`
	Status     int             `db:"status"`
	BoolValue  sql.NullBool    `db:"bool_value"`
	IntValue   sql.NullInt64   `db:"int_value"`
	FloatValue sql.NullFloat64 `db:"float_value"`
	StrValue   sql.NullString  `db:"str_value"`
	Type       string          `db:"type"` // populated on read via join with tags
}

// CurrentRow is the latest-value row for one tag_id (§3).
type CurrentRow struct {
	TagID      string          `db:"tag_id"`
	TagTime    time.Time       `db:"tag_time"`
	Status     int             `db:"status"`
	BoolValue  sql.NullBool    `db:"bool_value"`
	IntValue   sql.NullInt64   `db:"int_value"`
	FloatValue sql.NullFloat64 `db:"float_value"`
	StrValue   sql.NullString  `db:"str_value"`
	Type       string          `db:"type"`
}

// StateRow is a singleton key/value row (§3).
type StateRow struct {
	ID          string `db:"id"`
	Value       string `db:"value"`
	Description string `db:"description"`
}

// ConnectorRow/ScriptRow/TagRow are the config-table projections used by
// SetConfig/GetConfig.
type ConnectorRow struct {
	ID               string  `db:"id" json:"id"`
	Cycle            float64 `db:"cycle" json:"cycle"`
	IsReadOnly       bool    `db:"is_read_only" json:"is_read_only"`
	ConnectionString string  `db:"connection_string" json:"connection_string"`
	Description      string  `db:"description" json:"description"`
	UpdatedAt        string  `db:"updated_at" json:"updated_at"`
}

type ScriptRow struct {
	ID          string  `db:"id" json:"id"`
	Cycle       float64 `db:"cycle" json:"cycle"`
	IsActive    bool    `db:"is_active" json:"is_active"`
	Script      string  `db:"script" json:"script"`
	Description string  `db:"description" json:"description"`
	UpdatedAt   string  `db:"updated_at" json:"updated_at"`
}

type TagRow struct {
	ID            string  `db:"id" json:"id"`
	Type          string  `db:"type" json:"type"`
	Min           float64 `db:"min" json:"min"`
	Max           float64 `db:"max" json:"max"`
	IsLog         bool    `db:"is_log" json:"is_log"`
	ConnectorName string  `db:"connector_name" json:"connector_name"`
	Source        string  `db:"source" json:"source"`
	Description   string  `db:"description" json:"description"`
	UpdatedAt     string  `db:"updated_at" json:"updated_at"`
}

// toHistoryRow projects a tag.TagValue into the type-slot layout §4.7
// requires: one populated value slot per type, array values comma-joined
// into the string slot.
func toHistoryRow(v tag.TagValue) HistoryRow {
	row := HistoryRow{
		TagID:   v.Name,
		TagTime: v.UpdateTime,
		Status:  v.Status,
	}
	populateValueSlots(&row.BoolValue, &row.IntValue, &row.FloatValue, &row.StrValue, v)
	return row
}

func toCurrentRow(v tag.TagValue) CurrentRow {
	row := CurrentRow{
		TagID:   v.Name,
		TagTime: v.UpdateTime,
		Status:  v.Status,
	}
	populateValueSlots(&row.BoolValue, &row.IntValue, &row.FloatValue, &row.StrValue, v)
	return row
}

func populateValueSlots(b *sql.NullBool, i *sql.NullInt64, f *sql.NullFloat64, s *sql.NullString, v tag.TagValue) {
	switch v.Type {
	case tag.Bool:
		*b = sql.NullBool{Bool: v.Value.Bool, Valid: true}
	case tag.Int:
		*i = sql.NullInt64{Int64: v.Value.Int, Valid: true}
	case tag.Float:
		*f = sql.NullFloat64{Float64: v.Value.Float, Valid: true}
	case tag.Array:
		parts := make([]string, len(v.Value.Array))
		for idx, e := range v.Value.Array {
			parts[idx] = strconv.FormatFloat(e, 'g', -1, 64)
		}
		*s = sql.NullString{String: strings.Join(parts, ","), Valid: true}
	}
}
