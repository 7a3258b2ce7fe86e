// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package modbus

import (
	"context"
	"testing"
	"time"

	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	holding map[uint16][]uint16
}

func (f *fakeClient) Connect(context.Context, string, int, byte, time.Duration) error { return nil }
func (f *fakeClient) Disconnect() error                                               { return nil }
func (f *fakeClient) ReadCoils(uint16, uint16) ([]bool, error)                         { return nil, nil }
func (f *fakeClient) ReadDiscreteInputs(uint16, uint16) ([]bool, error)                { return nil, nil }
func (f *fakeClient) ReadInputRegisters(uint16, uint16) ([]uint16, error)              { return nil, nil }
func (f *fakeClient) ReadHoldingRegisters(addr, count uint16) ([]uint16, error) {
	return f.holding[addr][:count], nil
}
func (f *fakeClient) WriteCoil(uint16, bool) error           { return nil }
func (f *fakeClient) WriteHoldingRegister(uint16, uint16) error { return nil }

func TestReadEmitsScalarForSingleCount(t *testing.T) {
	spec := connector.Spec{
		Name: "mb0",
		Tags: []*tag.Tag{{Name: "t1", Type: tag.Int, Source: "RH:0:1"}},
	}
	impl, err := build(spec, map[string]string{"host": "10.0.0.1"}, nil)
	require.NoError(t, err)

	m := impl.(*Modbus)
	m.SetClient(&fakeClient{holding: map[uint16][]uint16{0: {42}}})

	values, err := m.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, int64(42), values[0].Value.Int)
}

func TestReadEmitsArrayForMultiCount(t *testing.T) {
	spec := connector.Spec{
		Name: "mb0",
		Tags: []*tag.Tag{{Name: "t1", Type: tag.Array, Source: "RH:0:3"}},
	}
	impl, err := build(spec, map[string]string{"host": "10.0.0.1"}, nil)
	require.NoError(t, err)

	m := impl.(*Modbus)
	m.SetClient(&fakeClient{holding: map[uint16][]uint16{0: {1, 2, 3}}})

	values, err := m.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, []float64{1, 2, 3}, values[0].Value.Array)
}

func TestMalformedSourceIsConstructionError(t *testing.T) {
	spec := connector.Spec{
		Name: "mb0",
		Tags: []*tag.Tag{{Name: "t1", Type: tag.Int, Source: "bogus"}},
	}
	_, err := build(spec, map[string]string{"host": "10.0.0.1"}, nil)
	assert.Error(t, err)
}

func TestUnknownAreaIsConstructionError(t *testing.T) {
	spec := connector.Spec{
		Name: "mb0",
		Tags: []*tag.Tag{{Name: "t1", Type: tag.Int, Source: "Z:0:1"}},
	}
	_, err := build(spec, map[string]string{"host": "10.0.0.1"}, nil)
	assert.Error(t, err)
}
