// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	fail      bool
	published [][]byte
}

func (b *fakeBus) PublishSync(_ string, data []byte) error {
	if b.fail {
		return fmt.Errorf("fake bus: publish refused")
	}
	b.published = append(b.published, data)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := store.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return store.New(conn, "sqlite3", 24, nil, nil)
}

func seedHistory(t *testing.T, st *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	ch := make(chan tag.TagValue, n+1)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		ch <- tag.TagValue{Name: "t", Type: tag.Int, Status: 0, UpdateTime: now.Add(time.Duration(i) * time.Millisecond), Value: tag.Value{Int: int64(i)}}
	}
	runCtx, cancel := context.WithCancel(ctx)
	go st.Run(runCtx, ch)
	require.Eventually(t, func() bool {
		hist, err := st.GetHistory(ctx, now.Add(-time.Minute), n+1)
		return err == nil && len(hist) == n
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}

func TestCycleForwardsBatchAndAdvancesCursor(t *testing.T) {
	st := newTestStore(t)
	seedHistory(t, st, 3)

	bus := &fakeBus{}
	f := New(st, bus, "rtds.history", 10, nil)

	sent, err := f.cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, bus.published, 1)

	var msgs []Message
	require.NoError(t, json.Unmarshal(bus.published[0], &msgs))
	assert.Len(t, msgs, 3)
	assert.Equal(t, "t", msgs[0].Tg)
	require.NotNil(t, msgs[0].Iv)
	assert.Equal(t, int64(0), *msgs[0].Iv)

	cursor, err := f.loadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor)

	sent, err = f.cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "nothing new past the cursor")
}

func TestCycleDoesNotAdvanceCursorOnPublishFailure(t *testing.T) {
	st := newTestStore(t)
	seedHistory(t, st, 2)

	bus := &fakeBus{fail: true}
	f := New(st, bus, "rtds.history", 10, nil)

	_, err := f.cycle(context.Background())
	require.Error(t, err)

	cursor, err := f.loadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor, "cursor must not advance on a failed publish")
}
