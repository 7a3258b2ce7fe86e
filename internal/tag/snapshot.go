// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package tag

import "fmt"

// WriteQueue is the narrow interface a connector exposes for values the
// scan loop wants to route back to it instead of applying locally. It is
// satisfied by a connector's bounded write channel wrapper.
type WriteQueue interface {
	// Enqueue offers v to the connector's write queue. ok is false if the
	// queue has no room (the caller decides whether to drop or block).
	Enqueue(v TagValue) (ok bool)
}

// Snapshot is the process-wide, single-writer keyed store of tags. Per
// §9's re-architecture note, the source's global mutable dictionary is
// encapsulated behind this type: only the scan loop goroutine ever calls
// its mutating methods, so no internal locking is required for that
// path. Get returns a value copy, but it takes no lock either: its
// callers (the scan loop and the script host it drives) run on the scan
// loop goroutine.
type Snapshot struct {
	tags        map[string]*Tag
	writeQueues map[string]WriteQueue // keyed by connector name
	store       chan<- TagValue       // fan-out to the store loop, nil if store is not wired yet
}

// NewSnapshot builds an empty snapshot whose loggable tag changes are
// published to storeCh.
func NewSnapshot(storeCh chan<- TagValue) *Snapshot {
	return &Snapshot{
		tags:        make(map[string]*Tag),
		writeQueues: make(map[string]WriteQueue),
		store:       storeCh,
	}
}

// Add registers a tag by its unique name. A duplicate name overwrites
// the previous registration, matching the source's add().
func (s *Snapshot) Add(t *Tag) {
	s.tags[t.Name] = t
}

// BindWriteQueue associates a connector's write queue with its name so
// that Set can route values back to the owning connector instead of
// applying them locally.
func (s *Snapshot) BindWriteQueue(connectorName string, wq WriteQueue) {
	s.writeQueues[connectorName] = wq
}

// Get returns a value copy of the named tag, or false if it does not
// exist.
func (s *Snapshot) Get(name string) (TagValue, bool) {
	t, ok := s.tags[name]
	if !ok {
		return TagValue{}, false
	}
	return t.Snapshot(), true
}

// Tag returns the live tag registration itself (read-only use by the
// script runtime for bounds/metadata lookups).
func (s *Snapshot) Tag(name string) (*Tag, bool) {
	t, ok := s.tags[name]
	return t, ok
}

// Set implements spec §4.1's routing rule: if the tag is owned by a
// connector that has a write queue, the value is handed to that queue
// instead of being applied in-process; otherwise it is applied directly
// via set.
func (s *Snapshot) Set(v TagValue) error {
	t, ok := s.tags[v.Name]
	if !ok {
		return fmt.Errorf("tag: set on unknown tag %q", v.Name)
	}

	if t.ConnectorName != "" {
		if wq, ok := s.writeQueues[t.ConnectorName]; ok {
			wq.Enqueue(v)
			return nil
		}
	}
	return s.apply(v)
}

// apply is the internal "_set": always applies locally and, for loggable
// tags, emits a TagValue onto the store channel.
func (s *Snapshot) apply(v TagValue) error {
	t, ok := s.tags[v.Name]
	if !ok {
		return fmt.Errorf("tag: apply on unknown tag %q", v.Name)
	}

	if v.Type != t.Type {
		return fmt.Errorf("tag: value for %q has type %s, want %s", v.Name, v.Type, t.Type)
	}

	nv := t.Set(v.Value, v.Status)

	if t.IsLog && s.store != nil {
		select {
		case s.store <- nv:
		default:
			// Store channel full: the newest value is dropped and the
			// caller gets ErrStoreChannelFull. The scan loop logs it as a
			// warning; no metric is recorded for the drop.
			return errStoreChannelFull
		}
	}
	return nil
}

// Apply exposes the internal apply path to the scan loop for values
// drained directly off a connector's read queue (which bypass the
// connector-write-queue routing check, since they originate from the
// connector itself).
func (s *Snapshot) Apply(v TagValue) error {
	return s.apply(v)
}

// Names returns the set of registered tag names in no particular order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.tags))
	for n := range s.tags {
		names = append(names, n)
	}
	return names
}

// Len reports how many tags are registered.
func (s *Snapshot) Len() int { return len(s.tags) }

// errStoreChannelFull is a sentinel so callers can recognize the
// backpressure-drop case with errors.Is instead of string matching.
type storeChannelFullError struct{}

func (storeChannelFullError) Error() string { return "tag: store channel full, value dropped" }

var errStoreChannelFull error = storeChannelFullError{}

// ErrStoreChannelFull is the exported sentinel for errors.Is checks.
var ErrStoreChannelFull = errStoreChannelFull
