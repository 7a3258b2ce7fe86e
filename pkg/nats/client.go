// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nats wraps the nats.go client with connection management and
// JetStream publish/subscribe helpers for at-least-once delivery (§4.8,
// §4.9). Per §5's resource policy each worker (forwarder, consumer, NATS
// ingest connector) owns its own Client rather than sharing a
// package-level singleton, so this package does not memoize a global
// connection instance.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/plantdata/rtds/pkg/log"
)

// Client wraps a NATS connection with subscription management and an
// optional JetStream context for durable, acked delivery.
type Client struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// MessageHandler is a callback function for processing received messages.
type MessageHandler func(subject string, data []byte)

// NewClient connects to cfg.Address and enables JetStream.
func NewClient(cfg NatsConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("nats: address is required")
	}

	var opts []nats.Option

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("nats: error: %v", err)
		}),
	)

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect failed: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream context: %w", err)
	}

	log.Infof("nats: connected to %s", cfg.Address)

	return &Client{conn: nc, js: js, subscriptions: make([]*nats.Subscription, 0)}, nil
}

// Subscribe registers a handler for messages on the given subject.
func (c *Client) Subscribe(subject string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: subscribe to %q failed: %w", subject, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: subscribed to %q", subject)
	return nil
}

// SubscribeQueue registers a handler with a queue group for load-balanced
// message processing, so only one process in the group handles a given
// message. The consumer (§4.9) uses SubscribeDurable instead.
func (c *Client) SubscribeQueue(subject, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: queue subscribe to %q (queue %s) failed: %w", subject, queue, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: queue subscribed to %q (queue %s)", subject, queue)
	return nil
}

// Publish sends data to subject with no delivery guarantee.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish to %q failed: %w", subject, err)
	}
	return nil
}

// PublishSync sends data to subject through JetStream and waits for the
// broker to persist it, giving the forwarder (§4.8) the "ack before
// advancing the cursor" semantics at-least-once delivery requires.
func (c *Client) PublishSync(subject string, data []byte) error {
	_, err := c.js.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("nats: jetstream publish to %q failed: %w", subject, err)
	}
	return nil
}

// AckHandler is a callback for a durable JetStream delivery. It returns
// true to ack the message (advance the durable cursor) or false to leave
// it unacked for redelivery — the consumer (§4.9) uses this so an insert
// failure causes the broker to retry.
type AckHandler func(subject string, data []byte) (ack bool)

// SubscribeDurable creates (or reuses) a durable JetStream consumer on
// subject in the named queue group, delivering each message to handler
// and explicitly acking only on success.
func (c *Client) SubscribeDurable(subject, durable string, handler AckHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.js.QueueSubscribe(subject, durable, func(msg *nats.Msg) {
		if handler(msg.Subject, msg.Data) {
			if err := msg.Ack(); err != nil {
				log.Warnf("nats: ack failed for %q: %v", subject, err)
			}
			return
		}
		if err := msg.Nak(); err != nil {
			log.Warnf("nats: nak failed for %q: %v", subject, err)
		}
	}, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("nats: jetstream subscribe to %q (durable %s) failed: %w", subject, durable, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: jetstream subscribed to %q (durable %s)", subject, durable)
	return nil
}

// Request sends a request and waits for a response, bounded by ctx.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats: request to %q failed: %w", subject, err)
	}
	return msg.Data, nil
}

// Flush flushes the connection buffer to ensure all published messages
// are sent.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close unsubscribes all subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("nats: unsubscribe failed: %v", err)
		}
	}
	c.subscriptions = nil

	if c.conn != nil {
		c.conn.Close()
		log.Info("nats: connection closed")
	}
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Connection returns the underlying NATS connection for advanced usage.
func (c *Client) Connection() *nats.Conn {
	return c.conn
}
