// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanloop implements the scan-loop server/supervisor (§4.5):
// the single goroutine that drains connector read queues into the
// snapshot, drives scripts under a bounded cycle budget, and supervises
// connector workers, restarting only them on RELOAD.
package scanloop

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plantdata/rtds/internal/config"
	"github.com/plantdata/rtds/internal/connector"
	"github.com/plantdata/rtds/internal/metrics"
	"github.com/plantdata/rtds/internal/script"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/internal/tag"
	"github.com/plantdata/rtds/pkg/log"
)

const (
	cycleSleep = 100 * time.Millisecond
	warmUp     = 200 * time.Millisecond
)

type workerHandle struct {
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Engine owns the snapshot, the connector/script sets, the store input
// channel, the reload command channel, and the worker handle map (§4.5's
// "State").
type Engine struct {
	loader  config.Loader
	st      *store.Store
	metrics *metrics.Sink

	snapshot   *tag.Snapshot
	storeCh    chan tag.TagValue
	connectors map[string]*connector.Connector
	scripts    map[string]*script.Script

	mu       sync.Mutex
	workers  map[string]*workerHandle
	reloadCh chan struct{}
}

// New builds an Engine. loader supplies connector/tag/script config; st
// is the already-migrated store this process' history/current flows
// into; sink is the shared metrics channel.
func New(loader config.Loader, st *store.Store, sink *metrics.Sink) *Engine {
	return &Engine{
		loader:     loader,
		st:         st,
		metrics:    sink,
		connectors: make(map[string]*connector.Connector),
		scripts:    make(map[string]*script.Script),
		workers:    make(map[string]*workerHandle),
		reloadCh:   make(chan struct{}, 1),
	}
}

// TriggerReload enqueues a RELOAD command, processed by the main loop
// between scan cycles (§4.5, §6's POST /api/reload).
func (e *Engine) TriggerReload() {
	select {
	case e.reloadCh <- struct{}{}:
	default:
		// a reload is already pending
	}
}

// Run performs the startup sequence and then the main scan loop until
// ctx is cancelled or a connector worker dies unexpectedly, in which
// case Run returns a fatal error (§4.5's supervisor contract; the
// caller, cmd/rtds, is responsible for process exit and restart).
func (e *Engine) Run(ctx context.Context) error {
	e.storeCh = make(chan tag.TagValue, 4096)

	if err := e.loadAndBuild(ctx); err != nil {
		return fmt.Errorf("scanloop: initial config load: %w", err)
	}

	storeCtx, storeCancel := context.WithCancel(ctx)
	defer storeCancel()
	var storeWG sync.WaitGroup
	storeWG.Add(1)
	go func() {
		defer storeWG.Done()
		e.st.Run(storeCtx, e.storeCh)
	}()

	e.startConnectors(ctx)
	time.Sleep(warmUp)
	e.publishCounters()

	defer func() {
		e.stopConnectors()
		storeCancel()
		storeWG.Wait()
	}()

	ticker := time.NewTicker(cycleSleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.reloadCh:
			if err := e.reload(ctx); err != nil {
				log.Errorf("scanloop: reload failed, keeping previous configuration: %v", err)
			}
		case <-ticker.C:
			if err := e.checkProcesses(); err != nil {
				return err
			}
			e.scanCycle()
		}
	}
}

// loadAndBuild loads config via e.loader and (re)builds the snapshot,
// connector set, and script set from it. It does not start any worker
// goroutine; callers decide when to do that (initial startup builds and
// starts together, reload builds before swapping in the new connectors).
func (e *Engine) loadAndBuild(ctx context.Context) error {
	cfg, err := e.loader.Load(ctx)
	if err != nil {
		return err
	}

	snapshot := tag.NewSnapshot(e.storeCh)
	connectorTags := make(map[string][]*tag.Tag)

	for _, tc := range cfg.Tags {
		typ, err := tag.ParseType(tc.Type)
		if err != nil {
			return fmt.Errorf("scanloop: tag %s: %w", tc.Name, err)
		}
		t := &tag.Tag{
			Name:          tc.Name,
			Type:          typ,
			Source:        tc.Source,
			Min:           tc.Min,
			Max:           tc.Max,
			IsLog:         tc.IsLog,
			ConnectorName: tc.ConnectorName,
			Description:   tc.Description,
		}
		snapshot.Add(t)
		if t.ConnectorName != "" {
			connectorTags[t.ConnectorName] = append(connectorTags[t.ConnectorName], t)
		}
	}

	connectorMetrics := metrics.ConnectorMetrics{Sink: e.metrics}
	connectors := make(map[string]*connector.Connector, len(cfg.Connectors))
	for _, cc := range cfg.Connectors {
		spec := connector.Spec{
			Name:             cc.Name,
			Cycle:            cc.Cycle,
			ConnectionString: cc.ConnectionString,
			IsReadOnly:       cc.IsReadOnly,
			Description:      cc.Description,
			Tags:             connectorTags[cc.Name],
		}
		built, err := connector.Build(spec, connectorMetrics)
		if err != nil {
			return fmt.Errorf("scanloop: connector %s: %w", cc.Name, err)
		}
		connectors[cc.Name] = built
		snapshot.BindWriteQueue(cc.Name, built)
	}

	scriptMetrics := metrics.ScriptMetrics{Sink: e.metrics}
	host := snapshotHost{snapshot: snapshot}
	scripts := make(map[string]*script.Script, len(cfg.Scripts))
	for _, sc := range cfg.Scripts {
		built, err := script.New(sc.Name, time.Duration(sc.Cycle*float64(time.Second)), sc.Body, sc.IsActive, sc.Description, host, scriptMetrics)
		if err != nil {
			return fmt.Errorf("scanloop: script %s: %w", sc.Name, err)
		}
		scripts[sc.Name] = built
	}

	e.snapshot = snapshot
	e.connectors = connectors
	e.scripts = scripts
	return nil
}

func (e *Engine) startConnectors(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, name := range e.sortedConnectorNames() {
		c := e.connectors[name]
		childCtx, cancel := context.WithCancel(ctx)
		stopped := make(chan struct{})
		e.workers[name] = &workerHandle{cancel: cancel, stopped: stopped}

		go func(c *connector.Connector) {
			defer close(stopped)
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("scanloop: connector %s panicked: %v", c.Name, r)
				}
			}()
			c.Run(childCtx)
		}(c)
	}
}

// stopConnectors cancels and joins every connector worker. Used both by
// reload (restart path) and by Run's shutdown defer.
func (e *Engine) stopConnectors() {
	e.mu.Lock()
	handles := e.workers
	e.workers = make(map[string]*workerHandle)
	e.mu.Unlock()

	for name, h := range handles {
		h.cancel()
		<-h.stopped
		log.Debugf("scanloop: connector %s worker joined", name)
	}
}

// checkProcesses detects a connector worker that exited without having
// been asked to (its stopped channel closed but it is still registered
// in e.workers, meaning stopConnectors/reload never ran) — the
// supervisor contract in §4.5 surfaces this as fatal.
func (e *Engine) checkProcesses() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, h := range e.workers {
		select {
		case <-h.stopped:
			return fmt.Errorf("scanloop: connector %s worker exited unexpectedly", name)
		default:
		}
	}
	return nil
}

// scanCycle drains every connector's read queue in key order, applying
// each TagValue to the snapshot, then runs every script in key order
// (§4.5's "For each connector in key order ... For each script in key
// order"). Cycle latency is recorded as SCAN_CYCLE_LATENCY.
func (e *Engine) scanCycle() {
	start := time.Now()

	for _, name := range e.sortedConnectorNames() {
		c := e.connectors[name]
	drainLoop:
		for {
			select {
			case v := <-c.ReadQueue:
				if err := e.snapshot.Apply(v); err != nil {
					log.Warnf("scanloop: apply %s: %v", v.Name, err)
				}
			default:
				break drainLoop
			}
		}
	}

	for _, name := range e.sortedScriptNames() {
		e.scripts[name].Run()
	}

	if e.metrics != nil {
		e.metrics.Chan() <- metrics.Metric{Name: metrics.ScanCycleLatency, Value: time.Since(start).Seconds()}
	}
}

func (e *Engine) publishCounters() {
	if e.metrics == nil {
		return
	}
	e.metrics.Chan() <- metrics.Metric{Name: metrics.TagCounter, Value: float64(e.snapshot.Len())}
	e.metrics.Chan() <- metrics.Metric{Name: metrics.ConnectorCounter, Value: float64(len(e.connectors))}
}

// reload implements §4.5's RELOAD contract: load and build the new
// config first, without touching any running connector worker, and
// only terminate/join/restart workers once that succeeds. If the new
// config fails to load or build, the old config and its still-running
// workers are left untouched (§7: "old config retained if new fails").
// Storage is untouched either way — e.storeCh and the store goroutine
// started in Run keep running across a reload.
func (e *Engine) reload(ctx context.Context) error {
	log.Info("scanloop: reload requested")

	if err := e.loadAndBuild(ctx); err != nil {
		return err
	}

	e.stopConnectors()
	e.startConnectors(ctx)
	e.publishCounters()
	log.Info("scanloop: reload complete")
	return nil
}

func (e *Engine) sortedConnectorNames() []string {
	names := make([]string, 0, len(e.connectors))
	for n := range e.connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) sortedScriptNames() []string {
	names := make([]string, 0, len(e.scripts))
	for n := range e.scripts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
