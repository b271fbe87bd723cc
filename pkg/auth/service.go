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

package auth

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

// ErrValidation marks request-shape problems; the API layer maps it to a
// 400 response.
var ErrValidation = errors.New("validation failed")

var (
	tokenNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	scopePattern     = regexp.MustCompile(`^[a-z][a-z-]*:[a-z]+$`)
)

// AuditActor identifies the caller on audit entries. Empty fields are
// omitted from the recorded event.
type AuditActor struct {
	TokenID   string
	ClientIP  string
	UserAgent string
}

// CreateTokenParams carries the fields of a token create request.
type CreateTokenParams struct {
	Name        string
	Description *string
	ExpiresAt   *time.Time
	Scopes      []string
}

// UpdateTokenParams carries a patch-style token update; nil fields stay
// unchanged. Scopes, when present, replace the grant set wholesale.
type UpdateTokenParams struct {
	Name        *string
	Description *string
	Status      *models.TokenStatus
	ExpiresAt   *time.Time
	Scopes      []string
}

// TokenService owns the personal access token lifecycle: create, list,
// update, revoke, rotate. Every mutation lands in the audit log.
type TokenService struct {
	tokens *storage.TokenStore
	audit  *storage.AuditLogStore
	logger *zap.Logger
}

// NewTokenService creates a token service over the given stores.
func NewTokenService(tokens *storage.TokenStore, audit *storage.AuditLogStore, logger *zap.Logger) *TokenService {
	return &TokenService{tokens: tokens, audit: audit, logger: logger}
}

// Create issues a new active token and returns it together with the
// plaintext secret. The secret is not recoverable afterwards.
func (s *TokenService) Create(params CreateTokenParams, actor AuditActor) (*models.PersonalAccessToken, string, error) {
	if err := validateTokenName(params.Name); err != nil {
		return nil, "", err
	}
	if err := validateScopes(params.Scopes); err != nil {
		return nil, "", err
	}

	secret, hash, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	token := &models.PersonalAccessToken{
		ID:          uuid.NewString(),
		Name:        params.Name,
		Description: params.Description,
		TokenHash:   hash,
		Status:      models.TokenStatusActive,
		ExpiresAt:   params.ExpiresAt,
		Scopes:      normalizeScopes(params.Scopes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor.TokenID != "" {
		createdBy := actor.TokenID
		token.CreatedBy = &createdBy
	}

	if err := s.tokens.Create(token); err != nil {
		return nil, "", err
	}
	s.recordAudit(models.AuditActionCreate, token, nil, actor)
	return token, secret, nil
}

// List returns tokens newest first.
func (s *TokenService) List(limit, offset int) ([]*models.PersonalAccessToken, error) {
	return s.tokens.List(limit, offset)
}

// Get returns the token with the given id.
func (s *TokenService) Get(id string) (*models.PersonalAccessToken, error) {
	return s.tokens.GetByID(id)
}

// Update applies a patch to the token and replaces its scopes when the
// patch carries any.
func (s *TokenService) Update(id string, params UpdateTokenParams, actor AuditActor) (*models.PersonalAccessToken, error) {
	token, err := s.tokens.GetByID(id)
	if err != nil {
		return nil, err
	}
	before := snapshotToken(token)

	if params.Name != nil {
		if err := validateTokenName(*params.Name); err != nil {
			return nil, err
		}
		token.Name = *params.Name
	}
	if params.Description != nil {
		token.Description = params.Description
	}
	if params.Status != nil {
		if err := validateStatus(*params.Status); err != nil {
			return nil, err
		}
		token.Status = *params.Status
	}
	if params.ExpiresAt != nil {
		token.ExpiresAt = params.ExpiresAt
	}
	if params.Scopes != nil {
		if err := validateScopes(params.Scopes); err != nil {
			return nil, err
		}
		token.Scopes = normalizeScopes(params.Scopes)
	}
	token.UpdatedAt = time.Now().UTC()

	if err := s.tokens.Update(token); err != nil {
		return nil, err
	}
	s.recordAudit(models.AuditActionUpdate, token, before, actor)
	return token, nil
}

// Revoke flips the token to revoked. Revoking an already revoked token is
// a no-op that still audits.
func (s *TokenService) Revoke(id string, actor AuditActor) error {
	token, err := s.tokens.GetByID(id)
	if err != nil {
		return err
	}
	before := snapshotToken(token)

	token.Status = models.TokenStatusRevoked
	token.UpdatedAt = time.Now().UTC()
	if err := s.tokens.Update(token); err != nil {
		return err
	}
	s.recordAudit(models.AuditActionRevoke, token, before, actor)
	return nil
}

// Rotate swaps the token's secret, invalidating the old one immediately,
// and returns the new plaintext secret once.
func (s *TokenService) Rotate(id string, actor AuditActor) (*models.PersonalAccessToken, string, error) {
	token, err := s.tokens.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	before := snapshotToken(token)

	secret, hash, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	token.TokenHash = hash
	token.UpdatedAt = time.Now().UTC()

	if err := s.tokens.Update(token); err != nil {
		return nil, "", err
	}
	s.recordAudit(models.AuditActionRotate, token, before, actor)
	s.logger.Info("Rotated personal access token",
		zap.String("id", token.ID),
		zap.String("name", token.Name))
	return token, secret, nil
}

func (s *TokenService) recordAudit(action models.AuditAction, token *models.PersonalAccessToken, old any, actor AuditActor) {
	event := &models.AuditEvent{
		ResourceType:     constants.ResourceTypeToken,
		ResourceID:       token.ID,
		ResourceName:     token.Name,
		Action:           action,
		OldConfiguration: old,
		NewConfiguration: token,
	}
	if actor.TokenID != "" {
		userID := actor.TokenID
		event.UserID = &userID
	}
	if actor.ClientIP != "" {
		clientIP := actor.ClientIP
		event.ClientIP = &clientIP
	}
	if actor.UserAgent != "" {
		userAgent := actor.UserAgent
		event.UserAgent = &userAgent
	}
	if err := s.audit.Record(event); err != nil {
		s.logger.Warn("Failed to record audit event",
			zap.Error(err),
			zap.String("token_id", token.ID),
			zap.String("action", string(action)))
	}
}

func snapshotToken(t *models.PersonalAccessToken) *models.PersonalAccessToken {
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp
}

func validateTokenName(name string) error {
	if !tokenNamePattern.MatchString(name) {
		return fmt.Errorf("%w: token name must match %s", ErrValidation, tokenNamePattern)
	}
	return nil
}

func validateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", ErrValidation)
	}
	for _, scope := range scopes {
		if !scopePattern.MatchString(scope) {
			return fmt.Errorf("%w: scope %q must match %s", ErrValidation, scope, scopePattern)
		}
	}
	return nil
}

func validateStatus(status models.TokenStatus) error {
	switch status {
	case models.TokenStatusActive, models.TokenStatusRevoked, models.TokenStatusExpired:
		return nil
	default:
		return fmt.Errorf("%w: unknown token status %q", ErrValidation, status)
	}
}

func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}
