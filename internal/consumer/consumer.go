// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package consumer implements the bus-to-secondary-history sink (§4.9):
// a durable, queue-grouped subscription that decodes a batch of wire
// messages and inserts them into a second store, acking only on
// successful insert so a failure triggers JetStream redelivery (the
// Go-native equivalent of bypassing Kafka auto-commit by raising).
// Grounded on pkg/nats/client.go's SubscribeDurable and on
// internal/store's batch-insert idiom for the secondary history table.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
)

// message is the wire shape §4.9 documents: {tg,tm,tp,st,bv,iv,fv,av}.
// av is accepted as a deprecated alias of sv (the forwarder's field
// name) for the legacy producer format mentioned in spec.md §9.
type message struct {
	Tg string   `json:"tg"`
	Tm string   `json:"tm"`
	Tp string   `json:"tp"`
	St int      `json:"st"`
	Bv *bool    `json:"bv,omitempty"`
	Iv *int64   `json:"iv,omitempty"`
	Fv *float64 `json:"fv,omitempty"`
	Av *string  `json:"av,omitempty"`
	Sv *string  `json:"sv,omitempty"`
}

// BusSubscriber is the narrow seam the consumer needs from a bus
// client; satisfied by *pkg/nats.Client.
type BusSubscriber interface {
	SubscribeDurable(subject, durable string, handler func(subject string, data []byte) (ack bool)) error
}

// Consumer owns the secondary store, the bus subscription, and the
// one-time legacy-format deprecation warning.
type Consumer struct {
	st      *store.Store
	bus     BusSubscriber
	subject string
	group   string

	warnOnce sync.Once
}

// New builds a Consumer. st is a Store pointed at the secondary
// database (§4.9 is explicit this may differ from the primary store's
// DB); subject/group select the bus subject and durable queue group.
func New(st *store.Store, bus BusSubscriber, subject, group string) *Consumer {
	return &Consumer{st: st, bus: bus, subject: subject, group: group}
}

// Run registers the durable subscription and blocks until ctx is
// cancelled, at which point it returns (the underlying bus client is
// closed by the caller, per §4.8/§4.9's cancellation contract).
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.bus.SubscribeDurable(c.subject, c.group, c.handle); err != nil {
		return fmt.Errorf("consumer: subscribe: %w", err)
	}
	<-ctx.Done()
	return nil
}

// handle decodes one bus message and inserts its rows into the
// secondary store. A message that does not decode is logged and acked
// (true); only an insert failure returns false (nak, causing
// redelivery).
func (c *Consumer) handle(_ string, data []byte) bool {
	msgs, err := c.decode(data)
	if err != nil {
		log.Errorf("consumer: decode failed, message dropped: %v", err)
		return true // a malformed message will never decode on redelivery either; ack it away
	}

	rows := make([]store.HistoryRow, 0, len(msgs))
	for _, m := range msgs {
		row, err := toHistoryRow(m)
		if err != nil {
			log.Errorf("consumer: skipping malformed entry: %v", err)
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return true
	}

	if err := c.st.InsertHistoryBatch(context.Background(), rows); err != nil {
		log.Errorf("consumer: insert failed, message will be redelivered: %v", err)
		return false
	}
	return true
}

// decode accepts either a plain JSON array of messages or, for the
// legacy producer format (spec.md §9), a JSON string that itself
// contains that array. The legacy path is logged once per run, not per
// message, to avoid log storms.
func (c *Consumer) decode(data []byte) ([]message, error) {
	var msgs []message
	if err := json.Unmarshal(data, &msgs); err == nil {
		return msgs, nil
	}

	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, fmt.Errorf("not a JSON array or a JSON-encoded string: %w", err)
	}
	if err := json.Unmarshal([]byte(inner), &msgs); err != nil {
		return nil, fmt.Errorf("double-decoded payload is not a JSON array: %w", err)
	}

	c.warnOnce.Do(func() {
		log.Warn("consumer: received a double-JSON-encoded-string payload (deprecated legacy producer format)")
	})
	return msgs, nil
}

func toHistoryRow(m message) (store.HistoryRow, error) {
	t, err := parseWireTime(m.Tm)
	if err != nil {
		return store.HistoryRow{}, fmt.Errorf("tag %s: %w", m.Tg, err)
	}

	row := store.HistoryRow{TagID: m.Tg, TagTime: t, Status: m.St}
	switch {
	case m.Bv != nil:
		row.BoolValue.Bool, row.BoolValue.Valid = *m.Bv, true
	case m.Iv != nil:
		row.IntValue.Int64, row.IntValue.Valid = *m.Iv, true
	case m.Fv != nil:
		row.FloatValue.Float64, row.FloatValue.Valid = *m.Fv, true
	case m.Sv != nil:
		row.StrValue.String, row.StrValue.Valid = *m.Sv, true
	case m.Av != nil:
		row.StrValue.String, row.StrValue.Valid = *m.Av, true
	}
	return row, nil
}

// parseWireTime parses the ISO-8601 UTC timestamp the forwarder emits
// (with a trailing Z, millisecond precision) and tolerates the bare
// RFC3339 form other producers may send.
func parseWireTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed tm %q: %w", s, err)
	}
	return t, nil
}
