// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"time"

	"github.com/plantdata/rtds/pkg/log"
)

type ctxKey string

const beginKey ctxKey = "begin"

// queryHooks satisfies the sqlhooks.Hooks interface, grounded verbatim
// on internal/repository/hooks.go: log the statement before execution,
// log the elapsed time after.
type queryHooks struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: SQL query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	begin, _ := ctx.Value(beginKey).(time.Time)
	log.Debugf("store: took %s", time.Since(begin))
	return ctx, nil
}
