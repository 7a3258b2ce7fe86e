// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/plantdata/rtds/pkg/log"
)

//go:embed migrations/sqlite3/*.sql migrations/mysql/*.sql
var migrationFiles embed.FS

// migrateUp applies all pending schema migrations over the already-open
// db handle, grounded on internal/repository/migration.go's golang-migrate
// wiring. It deliberately uses WithInstance against the caller's *sql.DB
// rather than opening a second connection via a dsn URL: for an
// in-memory sqlite3 dsn, a second connection is a second, empty
// database, so migrations would land in a database the rest of the
// process never queries.
func migrateUp(driver string, db *sql.DB) error {
	var drv database.Driver
	var err error

	switch driver {
	case "sqlite3":
		drv, err = migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	case "mysql":
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		return fmt.Errorf("store: unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	d, err := iofs.New(migrationFiles, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, driver, drv)
	if err != nil {
		return fmt.Errorf("store: migration init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migration up: %w", err)
	}

	log.Info("store: schema migrations applied")
	return nil
}

// resetConfigTables drops and recreates only the config tables
// (connectors, scripts, tags), leaving history/current/state intact.
// The original set_config drops and recreates every table, erasing
// history; that is scoped here to the three config tables only so a
// config reset never discards recorded history.
var resetConfigTablesSQL = []string{
	`DROP TABLE IF EXISTS tags`,
	`DROP TABLE IF EXISTS scripts`,
	`DROP TABLE IF EXISTS connectors`,
	connectorsDDL,
	scriptsDDL,
	tagsDDL,
}

const connectorsDDL = `CREATE TABLE connectors (
	id                TEXT PRIMARY KEY,
	cycle             REAL NOT NULL,
	is_read_only      INTEGER NOT NULL DEFAULT 0,
	connection_string TEXT NOT NULL,
	description       TEXT,
	updated_at        TEXT NOT NULL
)`

const scriptsDDL = `CREATE TABLE scripts (
	id          TEXT PRIMARY KEY,
	cycle       REAL NOT NULL,
	is_active   INTEGER NOT NULL DEFAULT 0,
	script      TEXT NOT NULL,
	description TEXT,
	updated_at  TEXT NOT NULL
)`

const tagsDDL = `CREATE TABLE tags (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	min            REAL NOT NULL DEFAULT 0,
	max            REAL NOT NULL DEFAULT 0,
	is_log         INTEGER NOT NULL DEFAULT 0,
	connector_name TEXT,
	source         TEXT NOT NULL,
	description    TEXT,
	updated_at     TEXT NOT NULL
)`
