// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"testing"
	"time"

	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	conn, err := Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBatchWriteAndCurrentsWriteRoundTrip(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	v := tag.TagValue{Name: "temp", Type: tag.Float, Status: 0, UpdateTime: now, Value: tag.Value{Float: 21.5}}

	require.NoError(t, s.batchWrite(ctx, []HistoryRow{toHistoryRow(v)}))
	require.NoError(t, s.currentsWrite(ctx, map[string]CurrentRow{v.Name: toCurrentRow(v)}))

	hist, err := s.GetHistory(ctx, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "temp", hist[0].TagID)
	assert.InDelta(t, 21.5, hist[0].FloatValue.Float64, 1e-9)

	cur, err := s.GetCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, cur, 1)
	assert.Equal(t, "temp", cur[0].TagID)
}

func TestCurrentsWriteUpsertsSingleRowPerTag(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx := context.Background()

	first := tag.TagValue{Name: "p", Type: tag.Int, UpdateTime: time.Now().UTC(), Value: tag.Value{Int: 1}}
	second := tag.TagValue{Name: "p", Type: tag.Int, UpdateTime: time.Now().UTC(), Value: tag.Value{Int: 2}}

	require.NoError(t, s.currentsWrite(ctx, map[string]CurrentRow{"p": toCurrentRow(first)}))
	require.NoError(t, s.currentsWrite(ctx, map[string]CurrentRow{"p": toCurrentRow(second)}))

	cur, err := s.GetCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, cur, 1)
	assert.EqualValues(t, 2, cur[0].IntValue.Int64)
}

func TestDeleteOldHistoryRemovesOnlyExpiredRows(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 1, nil, nil) // STORE_HISTORY_HOURS=1
	ctx := context.Background()

	old := tag.TagValue{Name: "a", Type: tag.Int, UpdateTime: time.Now().UTC().Add(-2 * time.Hour), Value: tag.Value{Int: 1}}
	recent := tag.TagValue{Name: "a", Type: tag.Int, UpdateTime: time.Now().UTC(), Value: tag.Value{Int: 2}}

	require.NoError(t, s.batchWrite(ctx, []HistoryRow{toHistoryRow(old), toHistoryRow(recent)}))
	require.NoError(t, s.deleteOldHistory(ctx))

	hist, err := s.GetHistory(ctx, time.Now().UTC().Add(-24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.EqualValues(t, 2, hist[0].IntValue.Int64)
}

type recordingArchive struct{ rows []HistoryRow }

func (a *recordingArchive) Archive(_ context.Context, rows []HistoryRow) error {
	a.rows = append(a.rows, rows...)
	return nil
}

func TestDeleteOldHistoryArchivesBeforeDeleteWhenBackendConfigured(t *testing.T) {
	conn := newTestConnection(t)
	archive := &recordingArchive{}
	s := New(conn, "sqlite3", 1, archive, nil)
	ctx := context.Background()

	old := tag.TagValue{Name: "a", Type: tag.Int, UpdateTime: time.Now().UTC().Add(-2 * time.Hour), Value: tag.Value{Int: 7}}
	require.NoError(t, s.batchWrite(ctx, []HistoryRow{toHistoryRow(old)}))
	require.NoError(t, s.deleteOldHistory(ctx))

	require.Len(t, archive.rows, 1)
	assert.EqualValues(t, 7, archive.rows[0].IntValue.Int64)
}

func TestRunFlushesWhenInputDrains(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	input := make(chan tag.TagValue, 4)
	input <- tag.TagValue{Name: "x", Type: tag.Int, UpdateTime: time.Now().UTC(), Value: tag.Value{Int: 42}}

	done := make(chan struct{})
	go func() {
		s.Run(ctx, input)
		close(done)
	}()

	require.Eventually(t, func() bool {
		cur, err := s.GetCurrent(context.Background())
		return err == nil && len(cur) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestSetConfigResetsOnlyConfigTablesAndGetConfigIsPure(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx := context.Background()

	v := tag.TagValue{Name: "keep", Type: tag.Int, UpdateTime: time.Now().UTC(), Value: tag.Value{Int: 5}}
	require.NoError(t, s.batchWrite(ctx, []HistoryRow{toHistoryRow(v)}))

	cfg := Config{
		Connectors: []ConnectorRow{{ID: "sim1", Cycle: 1, ConnectionString: "connector=simulator", UpdatedAt: "2026-01-01T00:00:00Z"}},
		Tags: []TagRow{{ID: "keep", Type: "int", Min: 0, Max: 100, ConnectorName: "sim1", Source: "func=line;scale=5",
			UpdatedAt: "2026-01-01T00:00:00Z"}},
	}
	require.NoError(t, s.SetConfig(ctx, cfg))

	hist, err := s.GetHistory(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "SetConfig must not touch history")

	got, err := s.GetConfig(ctx)
	require.NoError(t, err)
	require.Len(t, got.Connectors, 1)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "sim1", got.Connectors[0].ID)

	state, err := s.GetState(ctx)
	require.NoError(t, err)
	found := map[string]string{}
	for _, row := range state {
		found[row.ID] = row.Value
	}
	assert.Equal(t, "1", found["tag_counter"])
	assert.Equal(t, "1", found["connector_counter"])
}

func TestGetHistoryExcludesRowAtExactStartTime(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx := context.Background()

	boundary := time.Now().UTC().Truncate(time.Second)
	atBoundary := tag.TagValue{Name: "a", Type: tag.Int, UpdateTime: boundary, Value: tag.Value{Int: 1}}
	afterBoundary := tag.TagValue{Name: "a", Type: tag.Int, UpdateTime: boundary.Add(time.Second), Value: tag.Value{Int: 2}}

	require.NoError(t, s.batchWrite(ctx, []HistoryRow{toHistoryRow(atBoundary), toHistoryRow(afterBoundary)}))

	hist, err := s.GetHistory(ctx, boundary, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1, "tag_time == startTime must be excluded (strict >)")
	assert.EqualValues(t, 2, hist[0].IntValue.Int64)
}

func TestSetAndGetState(t *testing.T) {
	conn := newTestConnection(t)
	s := New(conn, "sqlite3", 24, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.SetState(ctx, "producer_last_id", "0", "forwarder cursor"))
	require.NoError(t, s.SetState(ctx, "producer_last_id", "42", "forwarder cursor"))

	rows, err := s.GetState(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "42", rows[0].Value)
}
