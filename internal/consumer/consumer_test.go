// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/plantdata/rtds/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	subject, group string
	handler        func(subject string, data []byte) (ack bool)
}

func (b *fakeBus) SubscribeDurable(subject, group string, handler func(subject string, data []byte) (ack bool)) error {
	b.subject, b.group, b.handler = subject, group, handler
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := store.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return store.New(conn, "sqlite3", 24, nil, nil)
}

func TestRunRegistersDurableSubscription(t *testing.T) {
	st := newTestStore(t)
	bus := &fakeBus{}
	c := New(st, bus, "rtds.history", "rtds-consumer")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return bus.handler != nil }, time.Second, time.Millisecond)
	assert.Equal(t, "rtds.history", bus.subject)
	assert.Equal(t, "rtds-consumer", bus.group)

	cancel()
	require.NoError(t, <-done)
}

func TestHandleInsertsPlainJSONArrayAndAcks(t *testing.T) {
	st := newTestStore(t)
	c := New(st, &fakeBus{}, "rtds.history", "rtds-consumer")

	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	payload, err := json.Marshal([]message{{Tg: "p1", Tm: now, St: 0, Fv: floatPtr(12.5)}})
	require.NoError(t, err)

	assert.True(t, c.handle("rtds.history", payload))

	rows, err := st.GetHistory(context.Background(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].TagID)
	assert.InDelta(t, 12.5, rows[0].FloatValue.Float64, 1e-9)
}

func TestHandleDecodesLegacyDoubleEncodedPayload(t *testing.T) {
	st := newTestStore(t)
	c := New(st, &fakeBus{}, "rtds.history", "rtds-consumer")

	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	inner, err := json.Marshal([]message{{Tg: "legacy", Tm: now, St: 0, Av: strPtr("on")}})
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)

	assert.True(t, c.handle("rtds.history", outer))

	rows, err := st.GetHistory(context.Background(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "legacy", rows[0].TagID)
	assert.Equal(t, "on", rows[0].StrValue.String)
}

func TestHandleNaksOnInsertFailure(t *testing.T) {
	conn, err := store.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, conn.Close()) // force every subsequent query to fail
	st := store.New(conn, "sqlite3", 24, nil, nil)
	c := New(st, &fakeBus{}, "rtds.history", "rtds-consumer")

	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	payload, err := json.Marshal([]message{{Tg: "p1", Tm: now, St: 0, Iv: intPtr(1)}})
	require.NoError(t, err)

	assert.False(t, c.handle("rtds.history", payload), "an insert failure must nak for redelivery")
}

func TestHandleAcksAwayAnUndecodableMessage(t *testing.T) {
	st := newTestStore(t)
	c := New(st, &fakeBus{}, "rtds.history", "rtds-consumer")

	assert.True(t, c.handle("rtds.history", []byte("not json at all")))
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int64) *int64       { return &i }
func strPtr(s string) *string     { return &s }
