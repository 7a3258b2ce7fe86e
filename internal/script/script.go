// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package script implements the derivation-script runtime (§4.6). Per
// §9's re-architecture note, the source's arbitrary `exec()` of Python
// text is replaced with a restricted expression DSL compiled once via
// expr-lang/expr, grounded on internal/tagger's rule-compilation idiom
// (classifyJob.go: Variable/ruleVariable, compile-once *vm.Program,
// evaluate against an env map). A script's host context — get/set
// against the snapshot — is injected as plain functions in that env,
// rather than as free-floating globals, so a script cannot reach
// anything beyond those two calls.
package script

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/plantdata/rtds/pkg/log"
)

// Host is the narrow snapshot surface a script body may call.
type Host interface {
	Get(name string) (value float64, ok bool)
	Set(name string, value float64) error
}

// MetricsSink is the narrow metrics seam (mirrors connector.MetricsSink).
type MetricsSink interface {
	ObserveScriptDuration(script, status string, seconds float64)
}

// Script is a compiled-once, cadence-driven expression body.
type Script struct {
	Name        string
	Cycle       time.Duration
	IsActive    bool
	Description string

	program *vm.Program
	lastRun time.Time
	host    Host
	metrics MetricsSink
}

// New constructs a Script. Construction requires a non-empty body
// (§4.6); if isActive, the body is compiled immediately — a compile
// failure marks the script inactive and logs rather than failing
// construction outright, mirroring script_abc.py's recoverable-compile
// contract.
func New(name string, cycle time.Duration, body string, isActive bool, description string, host Host, metrics MetricsSink) (*Script, error) {
	if body == "" {
		return nil, fmt.Errorf("script %s: empty body", name)
	}

	s := &Script{
		Name:        name,
		Cycle:       cycle,
		IsActive:    isActive,
		Description: description,
		host:        host,
		metrics:     metrics,
	}

	if isActive {
		if err := s.compile(body); err != nil {
			log.Errorf("script %s: compile failed, marking inactive: %v", name, err)
			s.IsActive = false
		}
	}

	return s, nil
}

func (s *Script) compile(body string) error {
	env := s.env()
	program, err := expr.Compile(body, expr.Env(env))
	if err != nil {
		return err
	}
	s.program = program
	return nil
}

// env builds the expression environment: `get`/`set` bound to the host
// snapshot, matching classifyJob.go's pattern of injecting a map[string]any
// as the expr evaluation environment.
func (s *Script) env() map[string]any {
	return map[string]any{
		"get": func(name string) float64 {
			v, _ := s.host.Get(name)
			return v
		},
		"set": func(name string, value float64) bool {
			return s.host.Set(name, value) == nil
		},
	}
}

// Run executes the script body if it is active and its cycle has
// elapsed. last_run is set before execution (not after), matching
// script_abc.py; a body failure is caught and logged but does not
// deactivate the script, so it runs again next tick.
func (s *Script) Run() {
	if !s.IsActive || s.program == nil {
		return
	}
	if time.Since(s.lastRun) <= s.Cycle {
		return
	}
	s.lastRun = time.Now()

	start := time.Now()
	status := "ok"
	if err := s.execute(); err != nil {
		status = "error"
		log.Warnf("script %s: execution failed: %v", s.Name, err)
	}

	if s.metrics != nil {
		s.metrics.ObserveScriptDuration(s.Name, status, time.Since(start).Seconds())
	}
}

func (s *Script) execute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	_, err = expr.Run(s.program, s.env())
	return err
}
