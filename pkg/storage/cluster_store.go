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

// ClusterRecord is one stored version of a cluster. The configuration
// column holds the canonical ClusterSpec JSON; the remaining columns are
// denormalized summaries for listings.
type ClusterRecord struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	ServiceName   string    `db:"service_name"`
	Configuration string    `db:"configuration"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Spec decodes the stored configuration document.
func (r *ClusterRecord) Spec() (*models.ClusterSpec, error) {
	var spec models.ClusterSpec
	if err := json.Unmarshal([]byte(r.Configuration), &spec); err != nil {
		return nil, fmt.Errorf("failed to decode cluster configuration: %w", err)
	}
	return &spec, nil
}

// ClusterStore persists cluster specifications with version history.
type ClusterStore struct {
	db     *DB
	logger *zap.Logger
}

// NewClusterStore creates a cluster store on the shared handle.
func NewClusterStore(db *DB, logger *zap.Logger) *ClusterStore {
	return &ClusterStore{db: db, logger: logger}
}

const clusterColumns = "id, name, service_name, configuration, version, created_at, updated_at"

// Create inserts version 1 of a new cluster. A cluster with the same name
// already present surfaces as ErrConflict.
func (s *ClusterStore) Create(spec *models.ClusterSpec) (*ClusterRecord, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cluster configuration: %w", err)
	}

	now := time.Now().UTC()
	rec := &ClusterRecord{
		ID:            uuid.NewString(),
		Name:          spec.Name,
		ServiceName:   spec.EffectiveServiceName(),
		Configuration: string(payload),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := s.db.Rebind("INSERT INTO clusters (" + clusterColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	if _, err := s.db.Exec(query, rec.ID, rec.Name, rec.ServiceName, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: cluster %q", ErrConflict, spec.Name)
		}
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}

	s.logger.Info("Created cluster",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return rec, nil
}

// GetByName returns the latest version of the named cluster.
func (s *ClusterStore) GetByName(name string) (*ClusterRecord, error) {
	var rec ClusterRecord
	query := s.db.Rebind("SELECT " + clusterColumns + " FROM clusters WHERE name = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cluster %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	return &rec, nil
}

// GetByID returns the latest version of the cluster with the given id.
func (s *ClusterStore) GetByID(id string) (*ClusterRecord, error) {
	var rec ClusterRecord
	query := s.db.Rebind("SELECT " + clusterColumns + " FROM clusters WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cluster %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}
	return &rec, nil
}

// List returns the latest version of every cluster ordered by name. A
// non-positive limit falls back to the default page size.
func (s *ClusterStore) List(limit, offset int) ([]*ClusterRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs := []*ClusterRecord{}
	query := s.db.Rebind(`
		SELECT c.id, c.name, c.service_name, c.configuration, c.version, c.created_at, c.updated_at
		FROM clusters c
		JOIN (SELECT name, MAX(version) AS version FROM clusters GROUP BY name) latest
		  ON c.name = latest.name AND c.version = latest.version
		ORDER BY c.name
		LIMIT ? OFFSET ?`)
	if err := s.db.Select(&recs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return recs, nil
}

// ListAll returns the latest version of every cluster without paging. The
// snapshot builder uses it to assemble complete xDS state.
func (s *ClusterStore) ListAll() ([]*ClusterRecord, error) {
	recs := []*ClusterRecord{}
	query := `
		SELECT c.id, c.name, c.service_name, c.configuration, c.version, c.created_at, c.updated_at
		FROM clusters c
		JOIN (SELECT name, MAX(version) AS version FROM clusters GROUP BY name) latest
		  ON c.name = latest.name AND c.version = latest.version
		ORDER BY c.name`
	if err := s.db.Select(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return recs, nil
}

// Update inserts a new version of an existing cluster. The entity keeps its
// id and name; version increments and created_at carries over.
func (s *ClusterStore) Update(id string, spec *models.ClusterSpec) (*ClusterRecord, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current ClusterRecord
	query := tx.Rebind("SELECT " + clusterColumns + " FROM clusters WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := tx.Get(&current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cluster %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load cluster: %w", err)
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cluster configuration: %w", err)
	}

	rec := &ClusterRecord{
		ID:            current.ID,
		Name:          current.Name,
		ServiceName:   spec.EffectiveServiceName(),
		Configuration: string(payload),
		Version:       current.Version + 1,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	}

	insert := tx.Rebind("INSERT INTO clusters (" + clusterColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	if _, err := tx.Exec(insert, rec.ID, rec.Name, rec.ServiceName, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update cluster: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cluster update: %w", err)
	}

	s.logger.Info("Updated cluster",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Int64("version", rec.Version))
	return rec, nil
}

// Delete removes every version of the cluster with the given id.
func (s *ClusterStore) Delete(id string) error {
	query := s.db.Rebind("DELETE FROM clusters WHERE id = ?")
	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: cluster %q", ErrNotFound, id)
	}

	s.logger.Info("Deleted cluster", zap.String("id", id))
	return nil
}
