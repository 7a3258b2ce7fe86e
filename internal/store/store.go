// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/plantdata/rtds/pkg/log"
)

// MetricsSink receives store-operation timing, grounded on §4.10's
// per-component histogram rule.
type MetricsSink interface {
	ObserveStoreDuration(method, status string, seconds float64)
}

// ArchiveBackend persists a copy of history rows before they are deleted
// by retention (§4.7's archive-before-delete enrichment). A nil backend
// means retention deletes without archiving.
type ArchiveBackend interface {
	Archive(ctx context.Context, rows []HistoryRow) error
}

const defaultBatchSize = 200

// Store owns the database handle and implements the historization loop
// (§4.7): batched history insert, current-value UPSERT, and time-based
// retention with optional pre-delete archival.
type Store struct {
	conn         *Connection
	driver       string
	batchSize    int
	historyHours float64
	archive      ArchiveBackend
	metrics      MetricsSink
}

// New builds a Store. historyHours is STORE_HISTORY_HOURS (§6); archive
// may be nil.
func New(conn *Connection, driver string, historyHours float64, archive ArchiveBackend, metrics MetricsSink) *Store {
	return &Store{
		conn:         conn,
		driver:       driver,
		batchSize:    defaultBatchSize,
		historyHours: historyHours,
		archive:      archive,
		metrics:      metrics,
	}
}

// Run drains input until it is closed or ctx is cancelled, implementing
// §4.7's loop: accumulate history/current rows, flush a batch once it
// reaches batchSize or the channel has momentarily drained, and run
// retention after every flush.
func (s *Store) Run(ctx context.Context, input <-chan tag.TagValue) {
	var historyBatch []HistoryRow
	currents := make(map[string]CurrentRow)

	flush := func() {
		if len(historyBatch) > 0 {
			s.timed("batch_write", func() error { return s.batchWrite(ctx, historyBatch) })
			historyBatch = historyBatch[:0]
		}
		if len(currents) > 0 {
			s.timed("currents_write", func() error { return s.currentsWrite(ctx, currents) })
			currents = make(map[string]CurrentRow)
		}
		s.timed("delete_old_history", func() error { return s.deleteOldHistory(ctx) })
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case v, ok := <-input:
			if !ok {
				flush()
				return
			}
			historyBatch = append(historyBatch, toHistoryRow(v))
			currents[v.Name] = toCurrentRow(v)

			if len(historyBatch) >= s.batchSize || len(input) == 0 {
				flush()
			}
		case <-time.After(100 * time.Millisecond):
			// channel empty for a full tick: nothing to flush, loop again.
		}
	}
}

func (s *Store) timed(method string, f func() error) {
	start := time.Now()
	err := f()
	status := "ok"
	if err != nil {
		status = "error"
		log.Errorf("store: %s: %v", method, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveStoreDuration(method, status, time.Since(start).Seconds())
	}
}

// batchWrite bulk-inserts history rows in a single transaction, grounded
// on internal/repository/transaction.go's batched-insert idiom.
func (s *Store) batchWrite(ctx context.Context, rows []HistoryRow) error {
	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch_write: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx,
		`INSERT INTO history (tag_id, tag_time, status, bool_value, int_value, float_value, str_value)
		 VALUES (:tag_id, :tag_time, :status, :bool_value, :int_value, :float_value, :str_value)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare batch_write: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: exec batch_write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch_write: %w", err)
	}
	return nil
}

// InsertHistoryBatch bulk-inserts history rows, silently skipping any
// row that collides with an existing (tag_id, tag_time) pair. The
// consumer (§4.9) uses this for its secondary store: at-least-once bus
// delivery means the same row can arrive twice, and spec.md §9 requires
// that be tolerated rather than surfaced as an error.
func (s *Store) InsertHistoryBatch(ctx context.Context, rows []HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin InsertHistoryBatch: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, s.insertIgnoreHistorySQL())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: prepare InsertHistoryBatch: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: exec InsertHistoryBatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit InsertHistoryBatch: %w", err)
	}
	return nil
}

func (s *Store) insertIgnoreHistorySQL() string {
	if s.driver == "mysql" {
		return `INSERT IGNORE INTO history (tag_id, tag_time, status, bool_value, int_value, float_value, str_value)
			 VALUES (:tag_id, :tag_time, :status, :bool_value, :int_value, :float_value, :str_value)`
	}
	return `INSERT OR IGNORE INTO history (tag_id, tag_time, status, bool_value, int_value, float_value, str_value)
		 VALUES (:tag_id, :tag_time, :status, :bool_value, :int_value, :float_value, :str_value)`
}

// currentsWrite performs an atomic UPSERT per tag_id (§4.7, §3 invariant
// "current holds exactly one row per tag").
func (s *Store) currentsWrite(ctx context.Context, currents map[string]CurrentRow) error {
	tx, err := s.conn.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin currents_write: %w", err)
	}

	query := s.upsertCurrentSQL()
	for _, row := range currents {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: exec currents_write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit currents_write: %w", err)
	}
	return nil
}

func (s *Store) upsertCurrentSQL() string {
	if s.driver == "mysql" {
		return `INSERT INTO current (tag_id, tag_time, status, bool_value, int_value, float_value, str_value)
			 VALUES (:tag_id, :tag_time, :status, :bool_value, :int_value, :float_value, :str_value)
			 ON DUPLICATE KEY UPDATE tag_time=VALUES(tag_time), status=VALUES(status),
			   bool_value=VALUES(bool_value), int_value=VALUES(int_value),
			   float_value=VALUES(float_value), str_value=VALUES(str_value)`
	}
	return `INSERT INTO current (tag_id, tag_time, status, bool_value, int_value, float_value, str_value)
		 VALUES (:tag_id, :tag_time, :status, :bool_value, :int_value, :float_value, :str_value)
		 ON CONFLICT(tag_id) DO UPDATE SET tag_time=excluded.tag_time, status=excluded.status,
		   bool_value=excluded.bool_value, int_value=excluded.int_value,
		   float_value=excluded.float_value, str_value=excluded.str_value`
}

// RunRetention runs the delete_old_history step on demand, independent of
// the per-flush trigger inside Run. The scheduler package calls this on a
// daily cadence so retention still fires during periods with no tag
// traffic (when Run's flush-triggered retention never executes).
func (s *Store) RunRetention(ctx context.Context) error {
	return s.deleteOldHistory(ctx)
}

// deleteOldHistory implements §4.7's retention rule: delete history rows
// older than STORE_HISTORY_HOURS, archiving them first if a backend is
// configured.
func (s *Store) deleteOldHistory(ctx context.Context) error {
	if s.historyHours <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-time.Duration(s.historyHours * float64(time.Hour)))

	if s.archive != nil {
		var expired []HistoryRow
		q, args, err := squirrel.Select("id", "tag_id", "tag_time", "status", "bool_value", "int_value", "float_value", "str_value").
			From("history").Where(squirrel.Lt{"tag_time": cutoff}).ToSql()
		if err != nil {
			return fmt.Errorf("store: build archive select: %w", err)
		}
		if err := s.conn.DB.SelectContext(ctx, &expired, q, args...); err != nil {
			return fmt.Errorf("store: select expired history: %w", err)
		}
		if len(expired) > 0 {
			if err := s.archive.Archive(ctx, expired); err != nil {
				return fmt.Errorf("store: archive expired history: %w", err)
			}
		}
	}

	res, err := s.conn.DB.ExecContext(ctx, `DELETE FROM history WHERE tag_time < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("store: delete old history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Debugf("store: retention deleted %d history rows older than %s", n, cutoff)
	}
	return nil
}
