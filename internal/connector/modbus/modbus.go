// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package modbus implements the Modbus/TCP poller connector (§4.4). The
// wire-level PDU encoding of the Modbus protocol itself is out of scope
// (treated through the narrow TransportClient interface below); what
// this package owns is the
// connection-string/source grammar, dispatch to the right register
// area, and scalar-vs-array emission, grounded on the original
// connectors/connector_modbus.py.
package modbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/tag"
)

func init() {
	connector.Register("modbus", build)
}

// TransportClient is the narrow seam the wire-level Modbus/TCP client
// implements; it is the "out of scope, interface only" collaborator
// named in §1. A production build wires a real TCP/RTU client here; this
// package ships no concrete implementation beyond what tests need.
type TransportClient interface {
	Connect(ctx context.Context, host string, port int, unitID byte, timeout time.Duration) error
	Disconnect() error
	ReadCoils(addr, count uint16) ([]bool, error)
	ReadDiscreteInputs(addr, count uint16) ([]bool, error)
	ReadInputRegisters(addr, count uint16) ([]uint16, error)
	ReadHoldingRegisters(addr, count uint16) ([]uint16, error)
	WriteCoil(addr uint16, value bool) error
	WriteHoldingRegister(addr uint16, value uint16) error
}

// area identifies which Modbus register space a tag's source string
// addresses.
type area string

const (
	areaCoils            area = "C"
	areaDiscreteInputs   area = "DI"
	areaInputRegisters   area = "RI"
	areaHoldingRegisters area = "RH"
)

type tagSource struct {
	tag   *tag.Tag
	area  area
	addr  uint16
	count uint16
}

// Modbus polls owned tags from a single device connection on each Read.
type Modbus struct {
	name       string
	host       string
	port       int
	unitID     byte
	timeout    time.Duration
	autoOpen   bool
	autoClose  bool
	sources    []tagSource
	client     TransportClient
	connected  bool
}

func build(spec connector.Spec, params map[string]string, _ connector.MetricsSink) (connector.Impl, error) {
	host, ok := params["host"]
	if !ok || host == "" {
		return nil, fmt.Errorf("modbus: missing host")
	}
	port, err := intParam(params, "port", 502)
	if err != nil {
		return nil, err
	}
	unitID, err := intParam(params, "unit_id", 1)
	if err != nil {
		return nil, err
	}
	timeoutSec, err := intParam(params, "timeout", 5)
	if err != nil {
		return nil, err
	}

	m := &Modbus{
		name:      spec.Name,
		host:      host,
		port:      port,
		unitID:    byte(unitID),
		timeout:   time.Duration(timeoutSec) * time.Second,
		autoOpen:  boolParam(params, "auto_open", true),
		autoClose: boolParam(params, "auto_close", false),
	}

	for _, t := range spec.Tags {
		a, addr, count, err := connector.ParseSourceTriplet(t.Source)
		if err != nil {
			return nil, fmt.Errorf("modbus: tag %s: %w", t.Name, err)
		}
		ar := area(a)
		switch ar {
		case areaCoils, areaDiscreteInputs, areaInputRegisters, areaHoldingRegisters:
		default:
			return nil, fmt.Errorf("modbus: tag %s: unknown area %q", t.Name, a)
		}
		m.sources = append(m.sources, tagSource{tag: t, area: ar, addr: uint16(addr), count: uint16(count)})
	}

	return m, nil
}

func intParam(params map[string]string, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("modbus: invalid %s %q", key, v)
	}
	return n, nil
}

func boolParam(params map[string]string, key string, def bool) bool {
	v, ok := params[key]
	if !ok {
		return def
	}
	return v == "1" || v == "true"
}

// SetClient overrides the transport client. Only the tests call it in
// this tree; with no client set, an auto-opening Open fails.
func (m *Modbus) SetClient(c TransportClient) { m.client = c }

func (m *Modbus) Open(ctx context.Context) error {
	if !m.autoOpen || m.connected {
		return nil
	}
	if m.client == nil {
		return fmt.Errorf("modbus: no transport client configured")
	}
	if err := m.client.Connect(ctx, m.host, m.port, m.unitID, m.timeout); err != nil {
		return err
	}
	m.connected = true
	return nil
}

func (m *Modbus) Close() error {
	if !m.connected {
		return nil
	}
	if m.autoClose {
		err := m.client.Disconnect()
		m.connected = false
		return err
	}
	return nil
}

// Read issues one read per owned tag source and emits a scalar TagValue
// when count==1, otherwise an array, per §4.4.
func (m *Modbus) Read(context.Context) ([]tag.TagValue, error) {
	if m.client == nil {
		return nil, fmt.Errorf("modbus: no transport client configured")
	}

	values := make([]tag.TagValue, 0, len(m.sources))
	var firstErr error

	for _, s := range m.sources {
		v, err := m.readOne(s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		values = append(values, v)
	}

	return values, firstErr
}

func (m *Modbus) readOne(s tagSource) (tag.TagValue, error) {
	switch s.area {
	case areaCoils:
		bits, err := m.client.ReadCoils(s.addr, s.count)
		if err != nil {
			return tag.TagValue{}, err
		}
		return boolResult(s, bits), nil
	case areaDiscreteInputs:
		bits, err := m.client.ReadDiscreteInputs(s.addr, s.count)
		if err != nil {
			return tag.TagValue{}, err
		}
		return boolResult(s, bits), nil
	case areaInputRegisters:
		regs, err := m.client.ReadInputRegisters(s.addr, s.count)
		if err != nil {
			return tag.TagValue{}, err
		}
		return registerResult(s, regs), nil
	case areaHoldingRegisters:
		regs, err := m.client.ReadHoldingRegisters(s.addr, s.count)
		if err != nil {
			return tag.TagValue{}, err
		}
		return registerResult(s, regs), nil
	default:
		return tag.TagValue{}, fmt.Errorf("modbus: unhandled area %q", s.area)
	}
}

func boolResult(s tagSource, bits []bool) tag.TagValue {
	if len(bits) == 1 {
		return tag.TagValue{Name: s.tag.Name, Type: s.tag.Type, Value: tag.Value{Bool: bits[0]}}
	}
	arr := make([]float64, len(bits))
	for i, b := range bits {
		if b {
			arr[i] = 1
		}
	}
	return tag.TagValue{Name: s.tag.Name, Type: tag.Array, Value: tag.Value{Array: arr}}
}

func registerResult(s tagSource, regs []uint16) tag.TagValue {
	if len(regs) == 1 {
		return tag.TagValue{Name: s.tag.Name, Type: s.tag.Type, Value: tag.Value{Int: int64(regs[0]), Float: float64(regs[0])}}
	}
	arr := make([]float64, len(regs))
	for i, r := range regs {
		arr[i] = float64(r)
	}
	return tag.TagValue{Name: s.tag.Name, Type: tag.Array, Value: tag.Value{Array: arr}}
}

// Write issues a single coil/register write for the tag the scan loop
// routed back to this connector. Per §1's non-goal, writable operations
// go no further than queue-and-emit: the actual wire write is delegated
// to TransportClient.
func (m *Modbus) Write(_ context.Context, v tag.TagValue) error {
	for _, s := range m.sources {
		if s.tag.Name != v.Name {
			continue
		}
		switch s.area {
		case areaCoils:
			return m.client.WriteCoil(s.addr, v.Value.Bool)
		case areaHoldingRegisters:
			return m.client.WriteHoldingRegister(s.addr, uint16(v.Value.Int))
		default:
			return fmt.Errorf("modbus: area %q is not writable", s.area)
		}
	}
	return fmt.Errorf("modbus: tag %q not owned by this connector", v.Name)
}
