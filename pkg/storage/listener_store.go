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

// ListenerRecord is one stored version of a listener.
type ListenerRecord struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Address       string    `db:"address"`
	Port          int64     `db:"port"`
	Protocol      string    `db:"protocol"`
	Configuration string    `db:"configuration"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Spec decodes the stored configuration document.
func (r *ListenerRecord) Spec() (*models.ListenerSpec, error) {
	var spec models.ListenerSpec
	if err := json.Unmarshal([]byte(r.Configuration), &spec); err != nil {
		return nil, fmt.Errorf("failed to decode listener configuration: %w", err)
	}
	return &spec, nil
}

// ListenerStore persists listener specifications with version history.
type ListenerStore struct {
	db     *DB
	logger *zap.Logger
}

// NewListenerStore creates a listener store on the shared handle.
func NewListenerStore(db *DB, logger *zap.Logger) *ListenerStore {
	return &ListenerStore{db: db, logger: logger}
}

const listenerColumns = "id, name, address, port, protocol, configuration, version, created_at, updated_at"

// Create inserts version 1 of a new listener. A listener with the same name
// already present surfaces as ErrConflict.
func (s *ListenerStore) Create(spec *models.ListenerSpec) (*ListenerRecord, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listener configuration: %w", err)
	}

	now := time.Now().UTC()
	rec := &ListenerRecord{
		ID:            uuid.NewString(),
		Name:          spec.Name,
		Address:       spec.Address,
		Port:          int64(spec.Port),
		Protocol:      string(spec.EffectiveProtocol()),
		Configuration: string(payload),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := s.db.Rebind("INSERT INTO listeners (" + listenerColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := s.db.Exec(query, rec.ID, rec.Name, rec.Address, rec.Port, rec.Protocol, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: listener %q", ErrConflict, spec.Name)
		}
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	s.logger.Info("Created listener",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name))
	return rec, nil
}

// GetByName returns the latest version of the named listener.
func (s *ListenerStore) GetByName(name string) (*ListenerRecord, error) {
	var rec ListenerRecord
	query := s.db.Rebind("SELECT " + listenerColumns + " FROM listeners WHERE name = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: listener %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to load listener: %w", err)
	}
	return &rec, nil
}

// GetByID returns the latest version of the listener with the given id.
func (s *ListenerStore) GetByID(id string) (*ListenerRecord, error) {
	var rec ListenerRecord
	query := s.db.Rebind("SELECT " + listenerColumns + " FROM listeners WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := s.db.Get(&rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: listener %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load listener: %w", err)
	}
	return &rec, nil
}

// List returns the latest version of every listener ordered by name. A
// non-positive limit falls back to the default page size.
func (s *ListenerStore) List(limit, offset int) ([]*ListenerRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs := []*ListenerRecord{}
	query := s.db.Rebind(`
		SELECT l.id, l.name, l.address, l.port, l.protocol, l.configuration, l.version, l.created_at, l.updated_at
		FROM listeners l
		JOIN (SELECT name, MAX(version) AS version FROM listeners GROUP BY name) latest
		  ON l.name = latest.name AND l.version = latest.version
		ORDER BY l.name
		LIMIT ? OFFSET ?`)
	if err := s.db.Select(&recs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list listeners: %w", err)
	}
	return recs, nil
}

// ListAll returns the latest version of every listener without paging for
// snapshot assembly.
func (s *ListenerStore) ListAll() ([]*ListenerRecord, error) {
	recs := []*ListenerRecord{}
	query := `
		SELECT l.id, l.name, l.address, l.port, l.protocol, l.configuration, l.version, l.created_at, l.updated_at
		FROM listeners l
		JOIN (SELECT name, MAX(version) AS version FROM listeners GROUP BY name) latest
		  ON l.name = latest.name AND l.version = latest.version
		ORDER BY l.name`
	if err := s.db.Select(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to list listeners: %w", err)
	}
	return recs, nil
}

// Update inserts a new version of an existing listener keeping its id and
// name.
func (s *ListenerStore) Update(id string, spec *models.ListenerSpec) (*ListenerRecord, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current ListenerRecord
	query := tx.Rebind("SELECT " + listenerColumns + " FROM listeners WHERE id = ? ORDER BY version DESC LIMIT 1")
	if err := tx.Get(&current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: listener %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load listener: %w", err)
	}

	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listener configuration: %w", err)
	}

	rec := &ListenerRecord{
		ID:            current.ID,
		Name:          current.Name,
		Address:       spec.Address,
		Port:          int64(spec.Port),
		Protocol:      string(spec.EffectiveProtocol()),
		Configuration: string(payload),
		Version:       current.Version + 1,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     time.Now().UTC(),
	}

	insert := tx.Rebind("INSERT INTO listeners (" + listenerColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := tx.Exec(insert, rec.ID, rec.Name, rec.Address, rec.Port, rec.Protocol, rec.Configuration, rec.Version, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update listener: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit listener update: %w", err)
	}

	s.logger.Info("Updated listener",
		zap.String("id", rec.ID),
		zap.String("name", rec.Name),
		zap.Int64("version", rec.Version))
	return rec, nil
}

// Delete removes every version of the listener with the given id.
func (s *ListenerStore) Delete(id string) error {
	query := s.db.Rebind("DELETE FROM listeners WHERE id = ?")
	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: listener %q", ErrNotFound, id)
	}

	s.logger.Info("Deleted listener", zap.String("id", id))
	return nil
}
