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

// TokenStatus represents the lifecycle state of a personal access token
type TokenStatus string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusRevoked TokenStatus = "revoked"
	TokenStatusExpired TokenStatus = "expired"
)

// PersonalAccessToken is a bearer credential for the REST API. Only the
// SHA-256 hash of the secret is stored; the plaintext is returned exactly
// once, on create and on rotate.
type PersonalAccessToken struct {
	ID          string      `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Description *string     `json:"description,omitempty" db:"description"`
	TokenHash   string      `json:"-" db:"token_hash"`
	Status      TokenStatus `json:"status" db:"status"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty" db:"expires_at"`
	LastUsedAt  *time.Time  `json:"lastUsedAt,omitempty" db:"last_used_at"`
	CreatedBy   *string     `json:"createdBy,omitempty" db:"created_by"`
	Scopes      []string    `json:"scopes"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

// IsExpired checks if the token has passed its expiry timestamp
func (t *PersonalAccessToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// IsActive checks if the token can authenticate requests (active status and
// not expired)
func (t *PersonalAccessToken) IsActive() bool {
	return t.Status == TokenStatusActive && !t.IsExpired()
}

// HasScope reports whether the token grants the given scope
func (t *PersonalAccessToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
