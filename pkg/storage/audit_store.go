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
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/models"
)

// AuditLogStore appends mutation events. Writes are best-effort from the
// caller's point of view: handlers log failures and keep going.
type AuditLogStore struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditLogStore creates an audit store on the shared handle.
func NewAuditLogStore(db *DB, logger *zap.Logger) *AuditLogStore {
	return &AuditLogStore{db: db, logger: logger}
}

// Record appends one event to the audit trail. Old and new configurations
// are serialized as JSON when present.
func (s *AuditLogStore) Record(event *models.AuditEvent) error {
	oldCfg, err := marshalAuditConfiguration(event.OldConfiguration)
	if err != nil {
		return fmt.Errorf("failed to encode audit configuration: %w", err)
	}
	newCfg, err := marshalAuditConfiguration(event.NewConfiguration)
	if err != nil {
		return fmt.Errorf("failed to encode audit configuration: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO audit_log
		(resource_type, resource_id, resource_name, action, old_configuration, new_configuration, user_id, client_ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.Exec(query, event.ResourceType, event.ResourceID, event.ResourceName, event.Action,
		oldCfg, newCfg, event.UserID, event.ClientIP, event.UserAgent, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	s.logger.Debug("Recorded audit event",
		zap.String("resource_type", event.ResourceType),
		zap.String("resource_name", event.ResourceName),
		zap.String("action", string(event.Action)))
	return nil
}

// List returns audit entries newest first.
func (s *AuditLogStore) List(limit, offset int) ([]*models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries := []*models.AuditLogEntry{}
	query := s.db.Rebind(`SELECT id, resource_type, resource_id, resource_name, action, old_configuration, new_configuration, user_id, client_ip, user_agent, created_at
		FROM audit_log ORDER BY id DESC LIMIT ? OFFSET ?`)
	if err := s.db.Select(&entries, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return entries, nil
}

func marshalAuditConfiguration(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := string(raw)
	return &out, nil
}
