// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"context"

	"github.com/go-co-op/gocron/v2"
	"github.com/plantdata/rtds/internal/store"
	"github.com/plantdata/rtds/pkg/log"
)

// registerRetentionJob schedules a daily run of the store's retention
// step. §4.7's delete_old_history already runs after every store flush; this
// job exists so retention still fires during idle periods with no tag
// traffic, when no flush ever happens.
func registerRetentionJob(st *store.Store, atHour, atMinute uint) error {
	_, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(atHour, atMinute, 0))),
		gocron.NewTask(func() {
			log.Info("scheduler: running scheduled history retention")
			if err := st.RunRetention(context.Background()); err != nil {
				log.Errorf("scheduler: retention run failed: %v", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	return nil
}
