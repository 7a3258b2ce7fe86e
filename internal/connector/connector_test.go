// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingImpl struct {
	reads   int32
	failOpen bool
}

func (c *countingImpl) Open(context.Context) error {
	if c.failOpen {
		return assertErr
	}
	return nil
}
func (c *countingImpl) Close() error { return nil }
func (c *countingImpl) Write(context.Context, tag.TagValue) error { return nil }
func (c *countingImpl) Read(context.Context) ([]tag.TagValue, error) {
	atomic.AddInt32(&c.reads, 1)
	return []tag.TagValue{{Name: "t1", Type: tag.Float, Value: tag.Value{Float: 1}}}, nil
}

type testErr struct{}

func (testErr) Error() string { return "boom" }

var assertErr error = testErr{}

func TestParseConnectionStringRequiresConnectorFirst(t *testing.T) {
	_, _, err := ParseConnectionString("host=1.2.3.4;connector=modbus")
	assert.Error(t, err)

	kind, params, err := ParseConnectionString("connector=modbus;host=1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "modbus", kind)
	assert.Equal(t, "1.2.3.4", params["host"])
}

func TestParseSourceTriplet(t *testing.T) {
	area, addr, count, err := ParseSourceTriplet("RH:10:2")
	require.NoError(t, err)
	assert.Equal(t, "RH", area)
	assert.Equal(t, 10, addr)
	assert.Equal(t, 2, count)

	_, _, _, err = ParseSourceTriplet("bad")
	assert.Error(t, err)
}

func TestRunEmitsToReadQueueEachCycle(t *testing.T) {
	impl := &countingImpl{}
	c := New("c1", 5*time.Millisecond, "connector=simulator", true, impl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	select {
	case v := <-c.ReadQueue:
		assert.Equal(t, "t1", v.Name)
	case <-time.After(time.Second):
		t.Fatal("expected a value on the read queue")
	}
	cancel()
}

type recordingMetrics struct {
	mu       sync.Mutex
	statuses []string
}

func (m *recordingMetrics) ObserveConnectorDuration(_, method, status string, _ float64) {
	if method != "cycle" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *recordingMetrics) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.statuses))
	copy(out, m.statuses)
	return out
}

func TestRunRecordsCycleErrorWhenOpenFails(t *testing.T) {
	impl := &countingImpl{failOpen: true}
	metrics := &recordingMetrics{}
	c := New("c1", 5*time.Millisecond, "connector=simulator", true, impl, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		return len(metrics.snapshot()) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()

	for _, status := range metrics.snapshot() {
		assert.Equal(t, "error", status, "every cycle observation must be \"error\" while open() keeps failing")
	}
}

func TestRunRecordsCycleOkWhenEveryStepSucceeds(t *testing.T) {
	impl := &countingImpl{}
	metrics := &recordingMetrics{}
	c := New("c1", 5*time.Millisecond, "connector=simulator", true, impl, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		return len(metrics.snapshot()) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()

	for _, status := range metrics.snapshot() {
		assert.Equal(t, "ok", status)
	}
}

func TestRunSurvivesOpenFailure(t *testing.T) {
	impl := &countingImpl{failOpen: true}
	c := New("c1", 5*time.Millisecond, "connector=simulator", true, impl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	// The connector keeps cycling (self-healing) even though open fails
	// every time; read still executes and produces values.
	select {
	case <-c.ReadQueue:
	case <-time.After(time.Second):
		t.Fatal("connector should keep running despite open() failing")
	}
	cancel()
}
