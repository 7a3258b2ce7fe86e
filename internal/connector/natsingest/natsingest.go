// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natsingest implements a push-based connector kind: instead of
// polling on a cycle, it subscribes once to a NATS subject carrying
// InfluxDB line-protocol encoded samples and decodes each message as it
// arrives. Grounded on pkg/nats's subscribe idiom and on the influxdata
// line-protocol/v2 decoder.
package natsingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/plantdata/rtds/pkg/log"
)

func init() {
	connector.Register("natsingest", build)
}

// Subscriber is the narrow seam onto the shared bus client (pkg/nats),
// kept separate so tests can inject a fake without a running broker.
type Subscriber interface {
	Subscribe(subject string, handler func(subject string, data []byte)) error
}

const decodedBuffer = 1024

// NatsIngest decodes line-protocol samples pushed over a NATS subject
// into TagValues, one per owned tag keyed by the line-protocol field
// name named in the tag's source string (`field=<name>`).
type NatsIngest struct {
	subject    string
	fieldToTag map[string]*tag.Tag // line-protocol field name -> tag

	sub     Subscriber
	decoded chan tag.TagValue

	mu sync.Mutex
}

func build(spec connector.Spec, params map[string]string, _ connector.MetricsSink) (connector.Impl, error) {
	subject, ok := params["subject"]
	if !ok || subject == "" {
		return nil, fmt.Errorf("natsingest: missing subject")
	}

	n := &NatsIngest{
		subject:    subject,
		fieldToTag: make(map[string]*tag.Tag, len(spec.Tags)),
		decoded:    make(chan tag.TagValue, decodedBuffer),
	}

	for _, t := range spec.Tags {
		name, err := parseFieldSource(t.Source)
		if err != nil {
			return nil, fmt.Errorf("natsingest: tag %s: %w", t.Name, err)
		}
		n.fieldToTag[name] = t
	}

	return n, nil
}

func parseFieldSource(source string) (string, error) {
	const prefix = "field="
	if len(source) <= len(prefix) || source[:len(prefix)] != prefix {
		return "", fmt.Errorf("source %q must be `field=<name>`", source)
	}
	return source[len(prefix):], nil
}

// SetSubscriber sets the bus subscription source Open registers with;
// Open fails until one is set. Only the tests call it in this tree.
func (n *NatsIngest) SetSubscriber(s Subscriber) { n.sub = s }

func (n *NatsIngest) Open(context.Context) error {
	if n.sub == nil {
		return fmt.Errorf("natsingest: no subscriber configured")
	}
	return n.sub.Subscribe(n.subject, n.handle)
}

func (n *NatsIngest) Close() error { return nil }

func (n *NatsIngest) Write(context.Context, tag.TagValue) error {
	return fmt.Errorf("natsingest: write not supported")
}

// Read drains whatever samples decoded since the last call. Unlike a
// polling connector, sources here are asynchronous; Read never blocks.
func (n *NatsIngest) Read(context.Context) ([]tag.TagValue, error) {
	var values []tag.TagValue
	for {
		select {
		case v := <-n.decoded:
			values = append(values, v)
		default:
			return values, nil
		}
	}
}

func (n *NatsIngest) handle(_ string, data []byte) {
	dec := lineprotocol.NewDecoderWithBytes(data)
	for dec.Next() {
		if _, err := dec.Measurement(); err != nil {
			log.Warnf("natsingest: decode measurement: %v", err)
			return
		}
		for {
			key, val, err := dec.NextField()
			if err != nil {
				log.Warnf("natsingest: decode field: %v", err)
				return
			}
			if key == nil {
				break
			}
			t, ok := n.fieldToTag[string(key)]
			if !ok {
				continue
			}
			n.emit(t, val)
		}
		if _, err := dec.Time(lineprotocol.Nanosecond, time.Time{}); err != nil {
			log.Warnf("natsingest: decode time: %v", err)
			return
		}
	}
}

func (n *NatsIngest) emit(t *tag.Tag, val lineprotocol.Value) {
	v := tag.TagValue{Name: t.Name, Type: t.Type}

	switch raw := val.Interface().(type) {
	case bool:
		v.Value.Bool = raw
		v.Value.Int = boolToInt(raw)
		v.Value.Float = boolToFloat(raw)
	case int64:
		v.Value.Int = raw
		v.Value.Float = float64(raw)
		v.Value.Bool = raw != 0
	case uint64:
		v.Value.Int = int64(raw)
		v.Value.Float = float64(raw)
	case float64:
		v.Value.Float = raw
		v.Value.Int = int64(raw)
	default:
		// string or unsupported kind: carry as a single-element array so
		// the tag is still observable rather than silently dropped.
		v.Type = tag.Array
		v.Value.Array = []float64{0}
	}

	select {
	case n.decoded <- v:
	default:
		log.Warnf("natsingest: decoded buffer full, dropping sample for %s", t.Name)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
