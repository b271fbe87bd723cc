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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

// refreshTimeout bounds the synchronous post-write snapshot rebuild.
const refreshTimeout = 10 * time.Second

// ErrorResponse is the error envelope every endpoint uses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// readBody drains the request body, answering 400 on failure.
func (s *APIServer) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		middleware.GetLogger(c, s.logger).Error("Failed to read request body", zap.Error(err))
		errorJSON(c, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeStrict unmarshals a request document rejecting unknown fields and
// trailing data. Reads use plain unmarshalling instead, so documents stored
// by older builds with extra bookkeeping keys still decode.
func decodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON document")
	}
	return nil
}

// parseListQuery reads the optional limit/offset pagination parameters.
func parseListQuery(c *gin.Context) (limit, offset int, err error) {
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit parameter '%s'", raw)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset parameter '%s'", raw)
		}
	}
	return limit, offset, nil
}

// respondStoreError maps repository failures onto the API contract: a
// missing row is 404, a name collision 409, anything else means the backing
// store failed and surfaces as 503.
func respondStoreError(c *gin.Context, resource, name string, err error) {
	switch {
	case storage.IsNotFoundError(err):
		errorJSON(c, http.StatusNotFound, fmt.Sprintf("%s '%s' not found", resource, name))
	case storage.IsConflictError(err):
		errorJSON(c, http.StatusConflict, fmt.Sprintf("%s '%s' already exists", resource, name))
	default:
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
	}
}

// refreshSnapshot runs the synchronous post-write snapshot rebuild through
// the given entrypoint. The write is already committed, so the rebuild runs
// on its own deadline rather than the request context; a failure surfaces
// as 500 and the write stays in place for a retried refresh.
func (s *APIServer) refreshSnapshot(c *gin.Context, refresh func(context.Context, string) error) bool {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := refresh(ctx, middleware.GetCorrelationID(c)); err != nil {
		middleware.GetLogger(c, s.logger).Error("Failed to refresh xDS snapshot", zap.Error(err))
		errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh xDS snapshot: %v", err))
		return false
	}
	return true
}

// recordAudit writes a best-effort audit row stamped with the calling
// token and client. Failures are logged, never surfaced: the mutation
// itself already happened.
func (s *APIServer) recordAudit(c *gin.Context, event *models.AuditEvent) {
	if token := middleware.GetAuthToken(c); token != nil {
		id := token.ID
		event.UserID = &id
	}
	if ip := c.ClientIP(); ip != "" {
		event.ClientIP = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		event.UserAgent = &ua
	}

	if err := s.audit.Record(event); err != nil {
		middleware.GetLogger(c, s.logger).Warn("Failed to record audit event",
			zap.String("resource_type", event.ResourceType),
			zap.String("resource_name", event.ResourceName),
			zap.Error(err),
		)
	}
}

// respondCorruptRecord covers the read path where a persisted document no
// longer decodes. It is a server-side defect, not a caller error.
func (s *APIServer) respondCorruptRecord(c *gin.Context, resource, name string, err error) {
	middleware.GetLogger(c, s.logger).Error("Failed to decode stored configuration",
		zap.String("resource", resource),
		zap.String("name", name),
		zap.Error(err),
	)
	errorJSON(c, http.StatusInternalServerError, fmt.Sprintf("failed to decode stored %s '%s'", resource, name))
}
