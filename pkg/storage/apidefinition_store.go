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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/models"
)

// APIDefinitionRecord is a stored Platform API definition together with the
// identifiers of the native resources derived from it. Definitions are not
// versioned; updates rewrite the row in place.
type APIDefinitionRecord struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Version       string    `db:"version"`
	BasePath      string    `db:"base_path"`
	Configuration string    `db:"configuration"`
	ClusterID     string    `db:"cluster_id"`
	RouteConfigID string    `db:"route_config_id"`
	ListenerID    string    `db:"listener_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Definition decodes the stored configuration document.
func (r *APIDefinitionRecord) Definition() (*models.APIDefinition, error) {
	var def models.APIDefinition
	if err := json.Unmarshal([]byte(r.Configuration), &def); err != nil {
		return nil, fmt.Errorf("failed to decode API definition: %w", err)
	}
	return &def, nil
}

// APIDefinitionFilter narrows List results. Zero values are ignored.
type APIDefinitionFilter struct {
	Name    string
	Version string
	Limit   int
	Offset  int
}

// APIDefinitionStore persists Platform API definitions.
type APIDefinitionStore struct {
	db     *DB
	logger *zap.Logger
}

// NewAPIDefinitionStore creates an API definition store on the shared
// handle.
func NewAPIDefinitionStore(db *DB, logger *zap.Logger) *APIDefinitionStore {
	return &APIDefinitionStore{db: db, logger: logger}
}

const apiDefinitionColumns = "id, name, version, base_path, configuration, cluster_id, route_config_id, listener_id, created_at, updated_at"

// Create inserts a definition row. The caller supplies the entity id and
// the identifiers of its derived resources. A definition with the same name
// and version already present surfaces as ErrConflict; the same name at a
// different version is a new definition.
func (s *APIDefinitionStore) Create(id string, def *models.APIDefinition, clusterID, routeConfigID, listenerID string) (*APIDefinitionRecord, error) {
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode API definition: %w", err)
	}

	now := time.Now().UTC()
	rec := &APIDefinitionRecord{
		ID:            id,
		Name:          def.Name,
		Version:       def.Version,
		BasePath:      def.BasePath,
		Configuration: string(payload),
		ClusterID:     clusterID,
		RouteConfigID: routeConfigID,
		ListenerID:    listenerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := s.db.Rebind("INSERT INTO api_definitions (" + apiDefinitionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := s.db.Exec(query, rec.ID, rec.Name, rec.Version, rec.BasePath, rec.Configuration,
		rec.ClusterID, rec.RouteConfigID, rec.ListenerID, rec.CreatedAt, rec.UpdatedAt); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: API definition %q", ErrConflict, def.Name)
		}
		return nil, fmt.Errorf("failed to create API definition: %w", err)
	}

	s.logger.Info("Created API definition",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return rec, nil
}

// GetByID returns the definition with the given id.
func (s *APIDefinitionStore) GetByID(id string) (*APIDefinitionRecord, error) {
	var rec APIDefinitionRecord
	query := s.db.Rebind("SELECT " + apiDefinitionColumns + " FROM api_definitions WHERE id = ?")
	if err := s.db.Get(&rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: API definition %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load API definition: %w", err)
	}
	return &rec, nil
}

// GetByName returns the most recently created definition with the given
// name. Versions are opaque strings, so recency stands in for ordering.
func (s *APIDefinitionStore) GetByName(name string) (*APIDefinitionRecord, error) {
	var rec APIDefinitionRecord
	query := s.db.Rebind("SELECT " + apiDefinitionColumns + " FROM api_definitions WHERE name = ? ORDER BY created_at DESC, id LIMIT 1")
	if err := s.db.Get(&rec, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: API definition %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load API definition: %w", err)
	}
	return &rec, nil
}

// List returns definitions matching the filter ordered by name.
func (s *APIDefinitionStore) List(filter APIDefinitionFilter) ([]*APIDefinitionRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + apiDefinitionColumns + " FROM api_definitions"
	var conds []string
	var args []any
	if filter.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Version != "" {
		conds = append(conds, "version = ?")
		args = append(args, filter.Version)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	recs := []*APIDefinitionRecord{}
	if err := s.db.Select(&recs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list API definitions: %w", err)
	}
	return recs, nil
}

// Update rewrites the definition row in place. The derived resource
// identifiers are keyed off the stable entity id and never change.
func (s *APIDefinitionStore) Update(id string, def *models.APIDefinition) (*APIDefinitionRecord, error) {
	current, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode API definition: %w", err)
	}

	rec := &APIDefinitionRecord{
		ID:            current.ID,
		Name:          def.Name,
		Version:       def.Version,
		BasePath:      def.BasePath,
		Configuration: string(payload),
		ClusterID:     current.ClusterID,
		RouteConfigID: current.RouteConfigID,
		ListenerID:    current.ListenerID,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	}

	query := s.db.Rebind(`UPDATE api_definitions
		SET name = ?, version = ?, base_path = ?, configuration = ?, updated_at = ?
		WHERE id = ?`)
	if _, err := s.db.Exec(query, rec.Name, rec.Version, rec.BasePath, rec.Configuration, rec.UpdatedAt, rec.ID); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: API definition %q", ErrConflict, def.Name)
		}
		return nil, fmt.Errorf("failed to update API definition: %w", err)
	}

	s.logger.Info("Updated API definition",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return rec, nil
}

// Delete removes the definition row.
func (s *APIDefinitionStore) Delete(id string) error {
	query := s.db.Rebind("DELETE FROM api_definitions WHERE id = ?")
	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete API definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete API definition: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: API definition %q", ErrNotFound, id)
	}

	s.logger.Info("Deleted API definition", zap.String("id", id))
	return nil
}
