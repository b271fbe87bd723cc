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

package models

import "time"

// AuditAction is the kind of mutation recorded in the audit log.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionRotate AuditAction = "rotate"
	AuditActionRevoke AuditAction = "revoke"
)

// AuditEvent describes one mutation for the audit log. Old and new
// configurations are serialized as JSON when present.
type AuditEvent struct {
	ResourceType     string
	ResourceID       string
	ResourceName     string
	Action           AuditAction
	OldConfiguration any
	NewConfiguration any
	UserID           *string
	ClientIP         *string
	UserAgent        *string
}

// AuditLogEntry is one persisted audit log row.
type AuditLogEntry struct {
	ID               int64       `json:"id" db:"id"`
	ResourceType     string      `json:"resourceType" db:"resource_type"`
	ResourceID       string      `json:"resourceId" db:"resource_id"`
	ResourceName     string      `json:"resourceName" db:"resource_name"`
	Action           AuditAction `json:"action" db:"action"`
	OldConfiguration *string     `json:"oldConfiguration,omitempty" db:"old_configuration"`
	NewConfiguration *string     `json:"newConfiguration,omitempty" db:"new_configuration"`
	UserID           *string     `json:"userId,omitempty" db:"user_id"`
	ClientIP         *string     `json:"clientIp,omitempty" db:"client_ip"`
	UserAgent        *string     `json:"userAgent,omitempty" db:"user_agent"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
}
