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

// Package handlers implements the REST API over the canonical stores: the
// Native cluster/route-config/listener surface, the Platform API definition
// and service surface, the OpenAPI importer, and token management. Every
// mutating handler persists first, records an audit event, then refreshes
// the xDS snapshot before replying.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/storage"
	"github.com/flowplane/flowplane/pkg/xds"
)

// APIServer holds the handler dependencies.
type APIServer struct {
	clusters    *storage.ClusterStore
	routes      *storage.RouteStore
	listeners   *storage.ListenerStore
	definitions *storage.APIDefinitionStore
	audit       *storage.AuditLogStore
	tokens      *auth.TokenService
	snapshots   *xds.SnapshotManager
	logger      *zap.Logger
}

// NewAPIServer creates a new API server with dependencies.
func NewAPIServer(
	clusters *storage.ClusterStore,
	routes *storage.RouteStore,
	listeners *storage.ListenerStore,
	definitions *storage.APIDefinitionStore,
	audit *storage.AuditLogStore,
	tokens *auth.TokenService,
	snapshots *xds.SnapshotManager,
	logger *zap.Logger,
) *APIServer {
	return &APIServer{
		clusters:    clusters,
		routes:      routes,
		listeners:   listeners,
		definitions: definitions,
		audit:       audit,
		tokens:      tokens,
		snapshots:   snapshots,
		logger:      logger,
	}
}

// HealthCheck handles GET /health.
func (s *APIServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
