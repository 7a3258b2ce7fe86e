// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package forwarder implements the cursor-based history-to-bus producer
// (§4.8): read a batch of history rows past the last delivered id, send
// them to the external bus, and only then advance the persisted cursor.
// Grounded on pkg/nats/client.go's JetStream PublishSync for the
// wait-for-broker-ack step and on the cursor read/send/commit loop a
// Kafka-style producer implements, adapted to NATS since this codebase
// has no Kafka client dependency.
package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/plantdata/rtds/internal/metrics"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
	"golang.org/x/time/rate"
)

// maxCyclesPerSecond bounds how often Run's immediate-retry path (cycle
// found rows, so it skips the poll ticker) may re-enter cycle. Without
// this a forwarder working through a backlog (every cycle finds rows)
// would spin a tight read-publish loop against the store and the bus.
const maxCyclesPerSecond = 20

// stateCursorKey is the state row id the forwarder's delivery cursor is
// persisted under (§3's State row: "producer_last_id").
const stateCursorKey = "producer_last_id"

const pollInterval = 500 * time.Millisecond

// BusPublisher is the narrow seam the forwarder needs from a bus client;
// satisfied by *pkg/nats.Client.
type BusPublisher interface {
	PublishSync(subject string, data []byte) error
}

// Message is the wire shape §4.8 specifies: one populated value slot,
// tm as ISO-8601 UTC with a trailing Z.
type Message struct {
	Tg string   `json:"tg"`
	Tm string   `json:"tm"`
	St int      `json:"st"`
	Bv *bool    `json:"bv,omitempty"`
	Iv *int64   `json:"iv,omitempty"`
	Fv *float64 `json:"fv,omitempty"`
	Sv *string  `json:"sv,omitempty"`
}

// Forwarder owns the store handle, bus client, subject, and batch size.
type Forwarder struct {
	st        *store.Store
	bus       BusPublisher
	subject   string
	batchSize int
	metrics   *metrics.Sink
	limiter   *rate.Limiter
}

// New builds a Forwarder. subject is the bus subject/topic messages are
// published to; batchSize bounds how many history rows are read per
// cycle (§6's KAFKA_BATCH_SIZE).
func New(st *store.Store, bus BusPublisher, subject string, batchSize int, sink *metrics.Sink) *Forwarder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Forwarder{
		st: st, bus: bus, subject: subject, batchSize: batchSize, metrics: sink,
		limiter: rate.NewLimiter(rate.Limit(maxCyclesPerSecond), 1),
	}
}

// Run loops: load cursor, read a batch past it, send, advance cursor on
// success. It polls on an interval when there is nothing new to send,
// and exits when ctx is cancelled (§4.8's worker cancellation contract).
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		sent, err := f.cycle(ctx)
		if err != nil {
			log.Errorf("forwarder: cycle failed: %v", err)
		}

		if sent > 0 {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil // ctx cancelled while waiting
			}
			continue // look for more, bounded by the limiter instead of the poll ticker
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// cycle performs one read-send-commit step and returns how many rows
// were forwarded. A send or DB failure leaves the cursor untouched so
// the same batch is retried next cycle (§4.8 step 8).
func (f *Forwarder) cycle(ctx context.Context) (int, error) {
	lastID, err := f.loadCursor(ctx)
	if err != nil {
		f.record("error", 0)
		return 0, fmt.Errorf("forwarder: load cursor: %w", err)
	}

	rows, err := f.st.GetHistorySince(ctx, lastID, f.batchSize)
	if err != nil {
		f.record("error", 0)
		return 0, fmt.Errorf("forwarder: read batch: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	start := time.Now()
	payload, err := json.Marshal(toMessages(rows))
	if err != nil {
		f.record("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("forwarder: marshal batch: %w", err)
	}

	if err := f.bus.PublishSync(f.subject, payload); err != nil {
		f.record("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("forwarder: publish: %w", err)
	}

	maxID := rows[0].ID
	for _, r := range rows {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	if err := f.st.SetState(ctx, stateCursorKey, strconv.FormatInt(maxID, 10), "forwarder delivery cursor"); err != nil {
		f.record("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("forwarder: advance cursor: %w", err)
	}

	f.record("ok", time.Since(start).Seconds())
	return len(rows), nil
}

func (f *Forwarder) record(status string, seconds float64) {
	if f.metrics == nil {
		return
	}
	(metrics.ForwarderMetrics{Sink: f.metrics}).ObserveForwarderDuration(status, seconds)
}

func (f *Forwarder) loadCursor(ctx context.Context) (int64, error) {
	rows, err := f.st.GetState(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.ID == stateCursorKey {
			n, err := strconv.ParseInt(r.Value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("forwarder: malformed %s state value %q: %w", stateCursorKey, r.Value, err)
			}
			return n, nil
		}
	}
	return 0, nil
}

func toMessages(rows []store.HistoryRow) []Message {
	out := make([]Message, len(rows))
	for i, r := range rows {
		m := Message{
			Tg: r.TagID,
			Tm: r.TagTime.UTC().Format("2006-01-02T15:04:05.000Z"),
			St: r.Status,
		}
		if r.BoolValue.Valid {
			v := r.BoolValue.Bool
			m.Bv = &v
		}
		if r.IntValue.Valid {
			v := r.IntValue.Int64
			m.Iv = &v
		}
		if r.FloatValue.Valid {
			v := r.FloatValue.Float64
			m.Fv = &v
		}
		if r.StrValue.Valid {
			v := r.StrValue.String
			m.Sv = &v
		}
		out[i] = m
	}
	return out
}
