/*
 * Copyright (c) 2025, Flowplane Project.
 *
 * The Flowplane Project licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package storage persists Flowplane resources in SQLite or PostgreSQL.
//
// Canonical resources (clusters, route configurations, listeners) are
// versioned: every update inserts a new row sharing the entity id with
// version incremented, and reads return the latest version per name.
// History rows stay in place until the entity is deleted.
package storage

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// schemaVersion tracks the embedded SQLite schema via PRAGMA user_version.
const schemaVersion = 1

// defaultListLimit caps list queries when the caller does not page.
const defaultListLimit = 100

// Options selects and configures the storage backend.
type Options struct {
	// Driver is "sqlite" or "postgres". Empty defaults to "sqlite".
	Driver string
	// Path is the SQLite database file path.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// DB wraps the shared database handle together with the driver it was
// opened with. Stores rebind their queries through it so the same "?"
// placeholder SQL runs on both backends.
type DB struct {
	*sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the configured backend and initializes the schema.
func Open(opts Options, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var handle *sqlx.DB
	var err error

	switch driver {
	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite storage requires a database path")
		}
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=2000&_foreign_keys=ON", opts.Path)
		handle, err = sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY
		// churn under concurrent API writes.
		handle.SetMaxOpenConns(1)
		handle.SetMaxIdleConns(1)
		handle.SetConnMaxLifetime(0)

	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres storage requires a connection string")
		}
		handle, err = sqlx.Connect("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		handle.SetMaxOpenConns(10)
		handle.SetMaxIdleConns(5)
		handle.SetConnMaxLifetime(30 * time.Minute)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db := &DB{DB: handle, driver: driver, logger: logger}
	if err := db.initSchema(); err != nil {
		handle.Close()
		return nil, err
	}

	logger.Info("Storage ready", zap.String("driver", driver))
	return db, nil
}

// Driver reports which backend the handle was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Health reports whether the backing store is reachable.
func (d *DB) Health() error {
	if err := d.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	d.logger.Debug("Closing storage", zap.String("driver", d.driver))
	return d.DB.Close()
}

func (d *DB) initSchema() error {
	switch d.driver {
	case DriverSQLite:
		var version int
		if err := d.Get(&version, "PRAGMA user_version"); err != nil {
			return fmt.Errorf("failed to query schema version: %w", err)
		}
		if version >= schemaVersion {
			d.logger.Debug("Database schema already exists", zap.Int("version", version))
			return nil
		}
		d.logger.Info("Initializing database schema", zap.Int("version", schemaVersion))
		if _, err := d.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		if _, err := d.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}

	case DriverPostgres:
		// pgx's default exec mode rejects multi-statement strings, so the
		// idempotent schema runs one statement at a time.
		for _, stmt := range splitStatements(postgresSchema) {
			if _, err := d.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create schema: %w", err)
			}
		}
	}
	return nil
}

func splitStatements(schema string) []string {
	var stmts []string
	for _, stmt := range strings.Split(schema, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			stmts = append(stmts, trimmed)
		}
	}
	return stmts
}

// isUniqueConstraintError recognizes duplicate-key failures from both
// backends so stores can surface ErrConflict.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
