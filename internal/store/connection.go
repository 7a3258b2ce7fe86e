// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the historization pipeline (§4.7): schema,
// batched history insert, current-value UPSERT, time-based retention
// with optional pre-delete archival, and the queries the HTTP adapter
// needs. Grounded on internal/repository's sqlx + golang-migrate +
// squirrel + sqlhooks plumbing, with the exact table/loop semantics
// taken from the original store/sqldb.py.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

// Connection wraps a database handle shared by every operation in this
// package. Per §5's resource policy each worker (scan loop, forwarder,
// consumer) owns its own Connection rather than sharing a package-level
// singleton, so Connect returns a fresh handle instead of memoizing one
// the way internal/repository's DBConnection does.
type Connection struct {
	DB *sqlx.DB
}

// Connect opens driver ("sqlite3" or "mysql") against dsn, wraps the
// driver with query-timing hooks, and applies pending migrations.
func Connect(driver, dsn string) (*Connection, error) {
	var dbHandle *sqlx.DB
	var err error

	switch driver {
	case "sqlite3":
		// sql.Register panics if called twice with the same name; guard
		// with a package-level once so tests that call Connect multiple
		// times in one process don't crash.
		registerSqliteOnce()
		dbHandle, err = sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite3: %w", err)
		}
		// sqlite3 does not multithread; one connection avoids lock waits.
		dbHandle.SetMaxOpenConns(1)
	case "mysql":
		dbHandle, err = sqlx.Open("mysql", fmt.Sprintf("%s?multiStatements=true&parseTime=true", dsn))
		if err != nil {
			return nil, fmt.Errorf("store: open mysql: %w", err)
		}
		dbHandle.SetConnMaxLifetime(3 * time.Minute)
		dbHandle.SetMaxOpenConns(10)
		dbHandle.SetMaxIdleConns(10)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	if err := migrateUp(driver, dbHandle.DB); err != nil {
		return nil, err
	}

	return &Connection{DB: dbHandle}, nil
}

var sqliteRegistered bool

func registerSqliteOnce() {
	if sqliteRegistered {
		return
	}
	sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryHooks{}))
	sqliteRegistered = true
}

// Close releases the underlying connection pool.
func (c *Connection) Close() error {
	return c.DB.Close()
}
