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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/models"
)

// TokenStore persists personal access tokens and their scope grants. Scopes
// live in a child table and are replaced wholesale on update.
type TokenStore struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenStore creates a token store on the shared handle.
func NewTokenStore(db *DB, logger *zap.Logger) *TokenStore {
	return &TokenStore{db: db, logger: logger}
}

const tokenColumns = "id, name, token_hash, description, status, expires_at, last_used_at, created_by, created_at, updated_at"

// Create inserts a token together with its scope rows.
func (s *TokenStore) Create(token *models.PersonalAccessToken) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := tx.Rebind("INSERT INTO personal_access_tokens (" + tokenColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if _, err := tx.Exec(insert, token.ID, token.Name, token.TokenHash, token.Description, token.Status,
		token.ExpiresAt, token.LastUsedAt, token.CreatedBy, token.CreatedAt, token.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	if err := insertScopes(tx, token.ID, token.Scopes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token create: %w", err)
	}

	s.logger.Info("Created personal access token",
		zap.String("id", token.ID),
		zap.String("name", token.Name))
	return nil
}

// GetByID returns the token with the given id, scopes included.
func (s *TokenStore) GetByID(id string) (*models.PersonalAccessToken, error) {
	var token models.PersonalAccessToken
	query := s.db.Rebind("SELECT " + tokenColumns + " FROM personal_access_tokens WHERE id = ?")
	if err := s.db.Get(&token, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: token %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if err := s.loadScopes(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// GetByHash looks a token up by the SHA-256 hash of its secret. The
// authenticator calls this on every request.
func (s *TokenStore) GetByHash(hash string) (*models.PersonalAccessToken, error) {
	var token models.PersonalAccessToken
	query := s.db.Rebind("SELECT " + tokenColumns + " FROM personal_access_tokens WHERE token_hash = ? LIMIT 1")
	if err := s.db.Get(&token, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: token", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if err := s.loadScopes(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// List returns tokens newest first with their scopes loaded. A non-positive
// limit falls back to the default page size.
func (s *TokenStore) List(limit, offset int) ([]*models.PersonalAccessToken, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tokens := []*models.PersonalAccessToken{}
	query := s.db.Rebind("SELECT " + tokenColumns + " FROM personal_access_tokens ORDER BY created_at DESC, name LIMIT ? OFFSET ?")
	if err := s.db.Select(&tokens, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(tokens) == 0 {
		return tokens, nil
	}

	ids := make([]string, len(tokens))
	byID := make(map[string]*models.PersonalAccessToken, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
		byID[token.ID] = token
		token.Scopes = []string{}
	}

	in, args, err := sqlx.In("SELECT token_id, scope FROM token_scopes WHERE token_id IN (?) ORDER BY scope", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list token scopes: %w", err)
	}
	rows := []struct {
		TokenID string `db:"token_id"`
		Scope   string `db:"scope"`
	}{}
	if err := s.db.Select(&rows, s.db.Rebind(in), args...); err != nil {
		return nil, fmt.Errorf("failed to list token scopes: %w", err)
	}
	for _, row := range rows {
		if token, ok := byID[row.TokenID]; ok {
			token.Scopes = append(token.Scopes, row.Scope)
		}
	}
	return tokens, nil
}

// Update persists the token's mutable fields and replaces its scope rows.
func (s *TokenStore) Update(token *models.PersonalAccessToken) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := tx.Rebind(`UPDATE personal_access_tokens
		SET name = ?, token_hash = ?, description = ?, status = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`)
	res, err := tx.Exec(update, token.Name, token.TokenHash, token.Description, token.Status,
		token.ExpiresAt, token.UpdatedAt, token.ID)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: token %q", ErrNotFound, token.ID)
	}

	del := tx.Rebind("DELETE FROM token_scopes WHERE token_id = ?")
	if _, err := tx.Exec(del, token.ID); err != nil {
		return fmt.Errorf("failed to replace token scopes: %w", err)
	}
	if err := insertScopes(tx, token.ID, token.Scopes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token update: %w", err)
	}

	s.logger.Info("Updated personal access token",
		zap.String("id", token.ID),
		zap.String("name", token.Name),
		zap.String("status", string(token.Status)))
	return nil
}

// UpdateLastUsed records the token's last authentication time. Failures are
// returned but callers treat them as non-fatal.
func (s *TokenStore) UpdateLastUsed(id string, when time.Time) error {
	query := s.db.Rebind("UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ?")
	if _, err := s.db.Exec(query, when, id); err != nil {
		return fmt.Errorf("failed to record token use: %w", err)
	}
	return nil
}

// CountActive returns the number of tokens still able to authenticate:
// active status and no expiry in the past. Bootstrap seeds the initial
// admin token only when this is zero.
func (s *TokenStore) CountActive() (int64, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM personal_access_tokens
		WHERE status = ? AND (expires_at IS NULL OR expires_at > ?)`)
	var count int64
	if err := s.db.Get(&count, query, models.TokenStatusActive, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to count active tokens: %w", err)
	}
	return count, nil
}

func (s *TokenStore) loadScopes(token *models.PersonalAccessToken) error {
	scopes := []string{}
	query := s.db.Rebind("SELECT scope FROM token_scopes WHERE token_id = ? ORDER BY scope")
	if err := s.db.Select(&scopes, query, token.ID); err != nil {
		return fmt.Errorf("failed to load token scopes: %w", err)
	}
	token.Scopes = scopes
	return nil
}

func insertScopes(tx *sqlx.Tx, tokenID string, scopes []string) error {
	insert := tx.Rebind("INSERT INTO token_scopes (id, token_id, scope, created_at) VALUES (?, ?, ?, ?)")
	now := time.Now().UTC()
	for _, scope := range scopes {
		if _, err := tx.Exec(insert, uuid.NewString(), tokenID, scope, now); err != nil {
			return fmt.Errorf("failed to store token scope: %w", err)
		}
	}
	return nil
}
