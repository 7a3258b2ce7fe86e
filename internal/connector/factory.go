// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package connector

import (
	"fmt"
	"time"

	"github.com/plantdata/rtds/internal/tag"
)

// Spec is the fully-realized, config-loaded description of one
// connector, handed to the factory by the config loader (§9: "the
// loader is an external collaborator; the core consumes fully-realized
// structures").
type Spec struct {
	Name             string
	Cycle            float64 // seconds
	ConnectionString string
	IsReadOnly       bool
	Description      string
	Tags             []*tag.Tag // tags owned by this connector
}

// Builder constructs a connector Impl from a Spec and its parsed
// connection-string parameters. The tags the connector owns arrive as
// full Tags in spec.Tags, for implementations (like the simulator) that
// need more than each tag's source string.
type Builder func(spec Spec, params map[string]string, metrics MetricsSink) (Impl, error)

var registry = map[string]Builder{}

// Register adds a Builder for the given connection-string kind. Called
// from each concrete connector sub-package's init().
func Register(kind string, b Builder) {
	registry[kind] = b
}

// Build dispatches on `connector=<kind>` from the connection string and
// returns a ready-to-run *Connector, matching the original source's
// get_connector factory (connectors/connector_factory.py) and §4.2's
// "Unknown kinds are a construction error" rule.
func Build(spec Spec, metrics MetricsSink) (*Connector, error) {
	kind, params, err := ParseConnectionString(spec.ConnectionString)
	if err != nil {
		return nil, err
	}

	builder, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("connector: unknown kind %q", kind)
	}

	impl, err := builder(spec, params, metrics)
	if err != nil {
		return nil, fmt.Errorf("connector %s: %w", spec.Name, err)
	}

	cycle := spec.Cycle
	if cycle <= 0 {
		return nil, fmt.Errorf("connector %s: cycle must be positive", spec.Name)
	}

	return New(spec.Name, time.Duration(cycle*float64(time.Second)), spec.ConnectionString, spec.IsReadOnly, impl, metrics), nil
}
