// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package simulator implements the synthetic test connector (§4.3),
// grounded on the original connectors/connector_test.py but enriched
// with a sin/cos/rnd/line waveform function grammar.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/tag"
)

func init() {
	connector.Register("simulator", build)
}

type function int

const (
	funcLine function = iota
	funcRnd
	funcSin
	funcCos
)

type source struct {
	fn     function
	period float64 // seconds
	scale  float64
	phase  float64 // degrees, advances on every read
}

// Simulator emits synthetic readings for every tag it owns according to
// each tag's `func=...;period=...;scale=...` source string.
type Simulator struct {
	name    string
	cycle   float64
	tags    []*tag.Tag
	sources map[string]*source // keyed by tag name
	rng     *rand.Rand
}

func build(spec connector.Spec, _ map[string]string, _ connector.MetricsSink) (connector.Impl, error) {
	s := &Simulator{
		name:    spec.Name,
		cycle:   spec.Cycle,
		tags:    spec.Tags,
		sources: make(map[string]*source, len(spec.Tags)),
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}

	for _, t := range spec.Tags {
		src, err := parseSource(t.Source)
		if err != nil {
			return nil, fmt.Errorf("simulator: tag %s: %w", t.Name, err)
		}
		s.sources[t.Name] = src
	}

	return s, nil
}

// parseSource parses `func=sin|cos|rnd|line;period=<sec>;scale=<float>`
// per §4.3. period/scale default to 1 when absent (line and rnd only
// need scale; period is meaningless for them but harmless to default).
func parseSource(src string) (*source, error) {
	parts := strings.Split(src, ";")
	s := &source{period: 1, scale: 1}
	var fnSet bool

	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed source segment %q", p)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "func":
			fnSet = true
			switch val {
			case "line":
				s.fn = funcLine
			case "rnd":
				s.fn = funcRnd
			case "sin":
				s.fn = funcSin
			case "cos":
				s.fn = funcCos
			default:
				return nil, fmt.Errorf("unknown func %q", val)
			}
		case "period":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid period %q: %w", val, err)
			}
			s.period = f
		case "scale":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid scale %q: %w", val, err)
			}
			s.scale = f
		}
	}

	if !fnSet {
		return nil, fmt.Errorf("source %q missing func=", src)
	}
	return s, nil
}

func (s *Simulator) Open(context.Context) error  { return nil }
func (s *Simulator) Close() error                { return nil }
func (s *Simulator) Write(context.Context, tag.TagValue) error {
	return fmt.Errorf("simulator: write not supported")
}

// Read emits one value per owned tag according to its source function.
// sin/cos advance a per-tag phase, as required by end-to-end scenario 3
// (§8): after one read phi=0 -> emit 0; the phase then advances by
// (360*cycle)/(60*period) degrees, reduced mod 360.
func (s *Simulator) Read(context.Context) ([]tag.TagValue, error) {
	values := make([]tag.TagValue, 0, len(s.tags))

	for _, t := range s.tags {
		src := s.sources[t.Name]
		var f float64

		switch src.fn {
		case funcLine:
			f = src.scale
		case funcRnd:
			f = s.rng.Float64() * src.scale
		case funcSin:
			f = src.scale * math.Sin(src.phase*math.Pi/180)
			advancePhase(src, s.cycle)
		case funcCos:
			f = src.scale * math.Cos(src.phase*math.Pi/180)
			advancePhase(src, s.cycle)
		}

		values = append(values, tag.TagValue{
			Name: t.Name,
			Type: t.Type,
			Value: tag.Value{
				Bool:  f != 0,
				Int:   int64(f),
				Float: f,
			},
		})
	}

	return values, nil
}

func advancePhase(src *source, cycle float64) {
	if src.period <= 0 {
		return
	}
	src.phase += (360 * cycle) / (60 * src.period)
	src.phase = math.Mod(src.phase, 360)
	if src.phase < 0 {
		src.phase += 360
	}
}
