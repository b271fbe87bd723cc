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

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

// CreateTokenRequest is the POST /tokens payload.
type CreateTokenRequest struct {
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Scopes      []string   `json:"scopes"`
}

// UpdateTokenRequest is the PATCH /tokens/:id payload. Absent fields stay
// unchanged; scopes, when present, replace the grant set wholesale.
type UpdateTokenRequest struct {
	Name        *string             `json:"name,omitempty"`
	Description *string             `json:"description,omitempty"`
	Status      *models.TokenStatus `json:"status,omitempty"`
	ExpiresAt   *time.Time          `json:"expiresAt,omitempty"`
	Scopes      []string            `json:"scopes,omitempty"`
}

// TokenSecretResponse is a token together with its plaintext secret. It is
// returned exactly twice in a token's life: on create and on rotate.
type TokenSecretResponse struct {
	models.PersonalAccessToken
	Token string `json:"token"`
}

// auditActor identifies the caller for the token service's audit entries.
func auditActor(c *gin.Context) auth.AuditActor {
	actor := auth.AuditActor{
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if token := middleware.GetAuthToken(c); token != nil {
		actor.TokenID = token.ID
	}
	return actor
}

// CreateToken handles POST /api/v1/tokens.
func (s *APIServer) CreateToken(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var req CreateTokenRequest
	if err := decodeStrict(body, &req); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid token payload: %v", err))
		return
	}

	token, secret, err := s.tokens.Create(auth.CreateTokenParams{
		Name:        req.Name,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		Scopes:      req.Scopes,
	}, auditActor(c))
	if err != nil {
		if errors.Is(err, auth.ErrValidation) {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		respondStoreError(c, "token", req.Name, err)
		return
	}

	log.Info("Token created",
		zap.String("token_id", token.ID),
		zap.String("name", token.Name))
	c.JSON(http.StatusCreated, TokenSecretResponse{PersonalAccessToken: *token, Token: secret})
}

// ListTokens handles GET /api/v1/tokens. Secrets are hashes at rest and
// never part of the view.
func (s *APIServer) ListTokens(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := s.tokens.List(limit, offset)
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	responses := make([]*models.PersonalAccessToken, 0, len(tokens))
	responses = append(responses, tokens...)
	c.JSON(http.StatusOK, responses)
}

// GetToken handles GET /api/v1/tokens/:id.
func (s *APIServer) GetToken(c *gin.Context) {
	id := c.Param("id")

	token, err := s.tokens.Get(id)
	if err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("token '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, token)
}

// UpdateToken handles PATCH /api/v1/tokens/:id.
func (s *APIServer) UpdateToken(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	id := c.Param("id")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var req UpdateTokenRequest
	if err := decodeStrict(body, &req); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid token payload: %v", err))
		return
	}

	token, err := s.tokens.Update(id, auth.UpdateTokenParams{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		ExpiresAt:   req.ExpiresAt,
		Scopes:      req.Scopes,
	}, auditActor(c))
	if err != nil {
		if errors.Is(err, auth.ErrValidation) {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("token '%s' not found", id))
			return
		}
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	log.Info("Token updated", zap.String("token_id", token.ID))
	c.JSON(http.StatusOK, token)
}

// DeleteToken handles DELETE /api/v1/tokens/:id. Tokens are revoked, not
// erased: the row stays for the audit trail but can no longer
// authenticate.
func (s *APIServer) DeleteToken(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	id := c.Param("id")

	if err := s.tokens.Revoke(id, auditActor(c)); err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("token '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	log.Info("Token revoked", zap.String("token_id", id))
	c.Status(http.StatusNoContent)
}

// RotateToken handles POST /api/v1/tokens/:id/rotate: a fresh secret is
// issued and the old one stops working immediately.
func (s *APIServer) RotateToken(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	id := c.Param("id")

	token, secret, err := s.tokens.Rotate(id, auditActor(c))
	if err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("token '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	log.Info("Token rotated", zap.String("token_id", token.ID))
	c.JSON(http.StatusOK, TokenSecretResponse{PersonalAccessToken: *token, Token: secret})
}
