// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler owns the process's gocron scheduler and the one
// background job RTDS needs outside the scan loop itself: a daily
// retention sweep. Grounded on internal/taskManager's package-level
// scheduler singleton and Start/Shutdown pair.
package scheduler

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
)

var sched gocron.Scheduler

// Start creates the scheduler and registers the retention job to run
// daily at retentionHour:retentionMinute in the scheduler's default
// (local) time zone.
func Start(st *store.Store, retentionHour, retentionMinute uint) error {
	var err error
	sched, err = gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("scheduler: create: %w", err)
	}

	if err := registerRetentionJob(st, retentionHour, retentionMinute); err != nil {
		return fmt.Errorf("scheduler: register retention job: %w", err)
	}

	sched.Start()
	log.Info("scheduler: started")
	return nil
}

// Shutdown stops the scheduler, waiting for any in-flight job.
func Shutdown() error {
	if sched == nil {
		return nil
	}
	return sched.Shutdown()
}
