// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package connector implements the connector runtime (§4.2, §9): a small
// interface any data-source implementation satisfies, a factory keyed by
// connection-string kind, and a base worker loop providing cycle pacing,
// failure isolation, and metrics that every concrete connector inherits
// unchanged.
package connector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plantdata/rtds/internal/tag"
	"github.com/plantdata/rtds/pkg/log"
)

// Impl is the small interface duck-typed connectors collapse into
// (§9): each method defaults to a no-op in concrete implementations
// that don't need it.
type Impl interface {
	// Open prepares the connection (dial a socket, register a subscription, ...).
	Open(ctx context.Context) error
	// Read performs one poll and returns the TagValues observed.
	Read(ctx context.Context) ([]tag.TagValue, error)
	// Write pushes a single value the scan loop routed back to this connector.
	Write(ctx context.Context, v tag.TagValue) error
	// Close releases any resource Open acquired.
	Close() error
}

// MetricsSink is the narrow interface connectors use to report
// CONNECTOR_DURATION without depending on the concrete metrics package.
type MetricsSink interface {
	ObserveConnectorDuration(connector, method, status string, seconds float64)
}

// DurationRecorderFunc adapts a func into MetricsSink for tests.
type DurationRecorderFunc func(connector, method, status string, seconds float64)

func (f DurationRecorderFunc) ObserveConnectorDuration(connector, method, status string, seconds float64) {
	f(connector, method, status, seconds)
}

// Connector wraps an Impl with the lifecycle, pacing, and queue plumbing
// common to every connector kind (§4.2).
type Connector struct {
	Name             string
	Cycle            time.Duration
	IsReadOnly       bool
	ConnectionString string

	// ReadQueue carries observed TagValues to the scan loop. The scan
	// loop drains it non-blockingly each cycle (§4.5); Read blocks when
	// it is full, which is the documented backpressure policy (§9).
	ReadQueue chan tag.TagValue

	// WriteQueue carries values the scan loop routed to this connector
	// instead of applying them to the snapshot directly. Nil when the
	// connector is read-only.
	WriteQueue chan tag.TagValue

	impl    Impl
	metrics MetricsSink
}

const defaultQueueSize = 256

// New wraps impl with the base Connector lifecycle.
func New(name string, cycle time.Duration, connStr string, isReadOnly bool, impl Impl, metrics MetricsSink) *Connector {
	c := &Connector{
		Name:             name,
		Cycle:            cycle,
		IsReadOnly:       isReadOnly,
		ConnectionString: connStr,
		ReadQueue:        make(chan tag.TagValue, defaultQueueSize),
		impl:             impl,
		metrics:          metrics,
	}
	if !isReadOnly {
		c.WriteQueue = make(chan tag.TagValue, defaultQueueSize)
	}
	return c
}

// Enqueue satisfies tag.WriteQueue: the snapshot hands a routed value
// back to the owning connector through this method.
func (c *Connector) Enqueue(v tag.TagValue) bool {
	if c.WriteQueue == nil {
		return false
	}
	select {
	case c.WriteQueue <- v:
		return true
	default:
		return false
	}
}

// Run executes the connector's cycle loop until ctx is cancelled,
// matching the lifecycle in §4.2: open, read, write, pause, with
// per-step duration metrics and unconditional close on every exit path.
// Any step failure is logged and recorded as an error metric; the
// connector proceeds to its next cycle rather than exiting (a connector
// is self-healing, never fatal to itself — only the supervisor in
// internal/scanloop treats a dead worker goroutine as fatal).
func (c *Connector) Run(ctx context.Context) {
	defer func() {
		if err := c.impl.Close(); err != nil {
			log.Warnf("connector %s: close: %v", c.Name, err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		failed := false

		if err := c.step(ctx, "open", c.impl.Open); err != nil {
			log.Warnf("connector %s: open: %v", c.Name, err)
			failed = true
		}

		if c.readStep(ctx) {
			failed = true
		}
		if c.writeStep(ctx) {
			failed = true
		}

		elapsed := time.Since(start)
		c.pause(ctx, elapsed)

		status := "ok"
		if failed {
			status = "error"
		}
		c.observe("cycle", status, time.Since(start).Seconds())
	}
}

func (c *Connector) step(ctx context.Context, method string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.observe(method, status, time.Since(start).Seconds())
	return err
}

func (c *Connector) readStep(ctx context.Context) (failed bool) {
	start := time.Now()
	values, err := c.impl.Read(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		failed = true
		log.Warnf("connector %s: read: %v", c.Name, err)
	}
	c.observe("read", status, time.Since(start).Seconds())

	for _, v := range values {
		select {
		case c.ReadQueue <- v:
		case <-ctx.Done():
			return failed
		}
	}
	return failed
}

func (c *Connector) writeStep(ctx context.Context) (failed bool) {
	if c.IsReadOnly || c.WriteQueue == nil {
		return false
	}

	start := time.Now()
	status := "ok"
	for {
		select {
		case v := <-c.WriteQueue:
			if err := c.impl.Write(ctx, v); err != nil {
				status = "error"
				failed = true
				log.Warnf("connector %s: write: %v", c.Name, err)
			}
		default:
			c.observe("write", status, time.Since(start).Seconds())
			return failed
		}
	}
}

func (c *Connector) pause(ctx context.Context, elapsed time.Duration) {
	remaining := c.Cycle - elapsed
	if remaining <= 0 {
		return
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (c *Connector) observe(method, status string, seconds float64) {
	if c.metrics != nil {
		c.metrics.ObserveConnectorDuration(c.Name, method, status, seconds)
	}
}

// ParseConnectionString splits a `k1=v1;k2=v2;...` connection string
// into a key->value map, validating that the first segment's key is
// `connector` as §4.2 requires. That first segment's value is returned
// separately as kind; the map itself does not record key order.
func ParseConnectionString(s string) (kind string, params map[string]string, err error) {
	parts := strings.Split(s, ";")
	if len(parts) == 0 || parts[0] == "" {
		return "", nil, fmt.Errorf("connector: empty connection string")
	}

	params = make(map[string]string, len(parts))
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return "", nil, fmt.Errorf("connector: malformed segment %q", p)
		}
		k, v := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if i == 0 {
			if k != "connector" {
				return "", nil, fmt.Errorf("connector: first key must be %q, got %q", "connector", k)
			}
			kind = v
		}
		params[k] = v
	}
	return kind, params, nil
}

// ParseSourceTriplet parses a Modbus-style `AREA:ADDR:COUNT` tag source
// string. Shared here because both the Modbus connector and its tests
// need it; kept connector-package-local since no other concern touches
// this grammar.
func ParseSourceTriplet(source string) (area string, addr, count int, err error) {
	parts := strings.Split(source, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("connector: malformed source %q", source)
	}
	area = parts[0]
	addr, err = strconv.Atoi(parts[1])
	if err != nil || addr < 0 {
		return "", 0, 0, fmt.Errorf("connector: invalid address in source %q", source)
	}
	count, err = strconv.Atoi(parts[2])
	if err != nil || count < 0 {
		return "", 0, 0, fmt.Errorf("connector: invalid count in source %q", source)
	}
	return area, addr, count, nil
}
