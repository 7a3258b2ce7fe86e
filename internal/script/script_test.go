// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package script

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	values     map[string]float64
	panicOnSet bool
}

func (f *fakeHost) Get(name string) (float64, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f *fakeHost) Set(name string, value float64) error {
	if f.panicOnSet {
		panic("host set failed catastrophically")
	}
	if f.values == nil {
		f.values = map[string]float64{}
	}
	f.values[name] = value
	return nil
}

func TestScriptRunsAndMutatesHost(t *testing.T) {
	host := &fakeHost{values: map[string]float64{"a": 2, "b": 3}}
	s, err := New("s1", time.Millisecond, `set("c", get("a") + get("b"))`, true, "", host, nil)
	require.NoError(t, err)
	require.True(t, s.IsActive)

	s.Run()

	assert.Equal(t, 5.0, host.values["c"])
}

func TestScriptSkipsBeforeCycleElapses(t *testing.T) {
	host := &fakeHost{values: map[string]float64{}}
	s, err := New("s1", time.Hour, `set("c", 1)`, true, "", host, nil)
	require.NoError(t, err)

	s.Run()
	assert.Equal(t, 1.0, host.values["c"])

	host.values["c"] = 0
	s.Run() // cycle has not elapsed; should no-op
	assert.Equal(t, 0.0, host.values["c"])
}

func TestEmptyBodyIsConstructionError(t *testing.T) {
	_, err := New("s1", time.Second, "", true, "", &fakeHost{}, nil)
	assert.Error(t, err)
}

func TestCompileFailureMarksInactiveInsteadOfErroring(t *testing.T) {
	s, err := New("s1", time.Second, "this is not valid expr syntax {{{", true, "", &fakeHost{}, nil)
	require.NoError(t, err)
	assert.False(t, s.IsActive)
}

type panicMetrics struct{ calls int }

func (p *panicMetrics) ObserveScriptDuration(script, status string, seconds float64) {
	p.calls++
	if status != "error" {
		panic(fmt.Sprintf("expected error status, got %s", status))
	}
}

func TestBodyFailureDoesNotDeactivateScript(t *testing.T) {
	host := &fakeHost{values: map[string]float64{}, panicOnSet: true}
	m := &panicMetrics{}
	s, err := New("s1", time.Millisecond, `set("c", get("a"))`, true, "", host, m)
	require.NoError(t, err)

	s.Run()

	assert.True(t, s.IsActive)
	assert.Equal(t, 1, m.calls)
}
