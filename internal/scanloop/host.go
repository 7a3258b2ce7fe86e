// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scanloop

import (
	"fmt"
	"time"

	"github.com/plantdata/rtds/internal/tag"
)

// snapshotHost adapts *tag.Snapshot to script.Host, converting between
// the snapshot's typed TagValue and the float64 a script body deals in
// (§4.6: "Scripts see the snapshot API (get, set) bound as their host
// context").
type snapshotHost struct {
	snapshot *tag.Snapshot
}

func (h snapshotHost) Get(name string) (float64, bool) {
	v, ok := h.snapshot.Get(name)
	if !ok {
		return 0, false
	}
	return scalarOf(v), true
}

func (h snapshotHost) Set(name string, value float64) error {
	t, ok := h.snapshot.Tag(name)
	if !ok {
		return fmt.Errorf("scanloop: script set on unknown tag %q", name)
	}

	v, err := valueFor(t.Type, value)
	if err != nil {
		return err
	}

	return h.snapshot.Set(tag.TagValue{
		Name:       name,
		Type:       t.Type,
		Status:     0,
		UpdateTime: time.Now().UTC(),
		Value:      v,
	})
}

func scalarOf(v tag.TagValue) float64 {
	switch v.Type {
	case tag.Bool:
		if v.Value.Bool {
			return 1
		}
		return 0
	case tag.Int:
		return float64(v.Value.Int)
	case tag.Float:
		return v.Value.Float
	default:
		return 0
	}
}

func valueFor(t tag.Type, f float64) (tag.Value, error) {
	switch t {
	case tag.Bool:
		return tag.Value{Bool: f != 0}, nil
	case tag.Int:
		return tag.Value{Int: int64(f)}, nil
	case tag.Float:
		return tag.Value{Float: f}, nil
	default:
		return tag.Value{}, fmt.Errorf("scanloop: script set does not support array tags")
	}
}
