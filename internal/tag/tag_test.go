// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetClampsOutOfRange(t *testing.T) {
	tg := &Tag{Name: "t1", Type: Float, Min: 0, Max: 10}

	v := tg.Set(Value{Float: 15}, 0)

	assert.Equal(t, 10.0, v.Value.Float)
	assert.Equal(t, -1, v.Status)
}

func TestSetNoClampWhenMinEqualsMax(t *testing.T) {
	tg := &Tag{Name: "t2", Type: Int, Min: 0, Max: 0}

	v := tg.Set(Value{Int: 42}, 0)

	assert.Equal(t, int64(42), v.Value.Int)
	assert.Equal(t, 0, v.Status)
}

func TestSetWithinBoundsPreservesStatus(t *testing.T) {
	tg := &Tag{Name: "t3", Type: Float, Min: 0, Max: 10}

	v := tg.Set(Value{Float: 5}, 0)

	assert.Equal(t, 5.0, v.Value.Float)
	assert.Equal(t, 0, v.Status)
}

func TestSetBelowMinClamps(t *testing.T) {
	tg := &Tag{Name: "t4", Type: Float, Min: 0, Max: 10}

	v := tg.Set(Value{Float: -5}, 0)

	assert.Equal(t, 0.0, v.Value.Float)
	assert.Equal(t, -1, v.Status)
}

func TestParseType(t *testing.T) {
	ty, err := ParseType("float")
	require.NoError(t, err)
	assert.Equal(t, Float, ty)

	_, err = ParseType("bogus")
	assert.Error(t, err)
}
