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

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/models"
)

// RouteRecord is one stored version of a route configuration. path_prefix
// and cluster_name summarize the first route rule for listings.
type RouteRecord struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	PathPrefix    string    `db:"path_prefix"`
	ClusterName   string    `db:"cluster_name"`
	Configuration string    `db:"configuration"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Spec decodes the stored configuration document.
func (r *RouteRecord) Spec() (*models.RouteConfigSpec, error) {
	var spec models.RouteConfigSpec
	if err := json.Unmarshal([]byte(r.Configuration), &spec); err != nil {
		return nil, fmt.Errorf("failed to decode route configuration: %w", err)
	}
	return &spec, nil
}

// RouteStore persists route configurations with version history.
type RouteStore struct {
	db     *DB
	logger *zap.Logger
}

// NewRouteStore creates a route store on the shared handle.
func NewRouteStore(db *DB, logger *zap.Logger) *RouteStore {
	return &RouteStore{db: db, logger: logger}
}

const routeColumns = "id, name, path_prefix, cluster_name, configuration, version, created_at, updated_at"

// Create inserts version 1 of a new route configuration. A configuration
// with the same name already present surfaces as ErrConflict.
func (s *RouteStore) Create(spec *models.RouteConfigSpec) (*RouteRecord, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode route configuration: %w", err)
	}

	now := time.Now().UTC()
	rec := &RouteRecord{
		ID:            uuid.NewString(),
		Name:          spec.Name,
		PathPrefix:    spec.PathPrefix(),
		ClusterName:   spec.ClusterTargets(),
		Configuration: string(payload),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := s.db.Rebind("INSERT INTO routes (" + routeColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := s.db.Exec(query, rec.ID, rec.Name, rec.PathPrefix, rec.ClusterName, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: route configuration %q", ErrConflict, spec.Name)
		}
		return nil, fmt.Errorf("failed to create route configuration: %w", err)
	}

	s.logger.Info("Created route configuration",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return rec, nil
}

// GetByName returns the latest version of the named route configuration.
func (s *RouteStore) GetByName(name string) (*RouteRecord, error) {
	var rec RouteRecord
	query := s.db.Rebind("SELECT " + routeColumns + " FROM routes WHERE name = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: route configuration %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load route configuration: %w", err)
	}
	return &rec, nil
}

// GetByID returns the latest version of the route configuration with the
// given id.
func (s *RouteStore) GetByID(id string) (*RouteRecord, error) {
	var rec RouteRecord
	query := s.db.Rebind("SELECT " + routeColumns + " FROM routes WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: route configuration %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load route configuration: %w", err)
	}
	return &rec, nil
}

// List returns the latest version of every route configuration ordered by
// name. A non-positive limit falls back to the default page size.
func (s *RouteStore) List(limit, offset int) ([]*RouteRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs := []*RouteRecord{}
	query := s.db.Rebind(`
		SELECT r.id, r.name, r.path_prefix, r.cluster_name, r.configuration, r.version, r.created_at, r.updated_at
		FROM routes r
		JOIN (SELECT name, MAX(version) AS version FROM routes GROUP BY name) latest
		  ON r.name = latest.name AND r.version = latest.version
		ORDER BY r.name
		LIMIT ? OFFSET ?`)
	if err := s.db.Select(&recs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list route configurations: %w", err)
	}
	return recs, nil
}

// ListAll returns the latest version of every route configuration without
// paging for snapshot assembly.
func (s *RouteStore) ListAll() ([]*RouteRecord, error) {
	recs := []*RouteRecord{}
	query := `
		SELECT r.id, r.name, r.path_prefix, r.cluster_name, r.configuration, r.version, r.created_at, r.updated_at
		FROM routes r
		JOIN (SELECT name, MAX(version) AS version FROM routes GROUP BY name) latest
		  ON r.name = latest.name AND r.version = latest.version
		ORDER BY r.name`
	if err := s.db.Select(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list route configurations: %w", err)
	}
	return recs, nil
}

// Update inserts a new version of an existing route configuration keeping
// its id and name.
func (s *RouteStore) Update(id string, spec *models.RouteConfigSpec) (*RouteRecord, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current RouteRecord
	query := tx.Rebind("SELECT " + routeColumns + " FROM routes WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := tx.Get(&current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: route configuration %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load route configuration: %w", err)
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode route configuration: %w", err)
	}

	rec := &RouteRecord{
		ID:            current.ID,
		Name:          current.Name,
		PathPrefix:    spec.PathPrefix(),
		ClusterName:   spec.ClusterTargets(),
		Configuration: string(payload),
		Version:       current.Version + 1,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	}

	insert := tx.Rebind("INSERT INTO routes (" + routeColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := tx.Exec(insert, rec.ID, rec.Name, rec.PathPrefix, rec.ClusterName, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update route configuration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit route configuration update: %w", err)
	}

	s.logger.Info("Updated route configuration",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Int64("version", rec.Version))
	return rec, nil
}

// Delete removes every version of the route configuration with the given id.
func (s *RouteStore) Delete(id string) error {
	query := s.db.Rebind("DELETE FROM routes WHERE id = ?")
	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete route configuration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete route configuration: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: route configuration %q", ErrNotFound, id)
	}

	s.logger.Info("Deleted route configuration", zap.String("id", id))
	return nil
}
