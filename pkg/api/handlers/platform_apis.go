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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/platform"
	"github.com/flowplane/flowplane/pkg/storage"
	"github.com/flowplane/flowplane/pkg/validation"
)

// cascadeError is a failed Platform write: the step that failed, its cause,
// and what happened to the derived resources created before it. Unwrap
// exposes the cause so the repository sentinels stay visible to status
// mapping.
type cascadeError struct {
	step     string
	cause    error
	rollback string
}

func (e *cascadeError) Error() string {
	return fmt.Sprintf("%s failed: %v (%s)", e.step, e.cause, e.rollback)
}

func (e *cascadeError) Unwrap() error { return e.cause }

// respondCascade maps a failed Platform write onto a status by its cause
// and reports the synthesized message naming step and rollback outcome.
func respondCascade(c *gin.Context, err *cascadeError) {
	status := http.StatusServiceUnavailable
	switch {
	case storage.IsConflictError(err):
		status = http.StatusConflict
	case storage.IsNotFoundError(err):
		status = http.StatusNotFound
	}
	errorJSON(c, status, err.Error())
}

func apiDefinitionResponseFromRecord(record *storage.APIDefinitionRecord) (*models.APIDefinitionResponse, error) {
	def, err := record.Definition()
	if err != nil {
		return nil, err
	}
	return &models.APIDefinitionResponse{
		ID:            record.ID,
		Name:          def.Name,
		Version:       def.Version,
		BasePath:      def.BasePath,
		Upstream:      def.Upstream,
		Routes:        def.Routes,
		Policies:      def.Policies,
		RouteConfigID: record.RouteConfigID,
		ListenerID:    record.ListenerID,
		ClusterID:     record.ClusterID,
		Metadata:      def.Metadata,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}

// definitionByID loads a definition or writes the Platform not-found
// response.
func (s *APIServer) definitionByID(c *gin.Context, id string) (*storage.APIDefinitionRecord, bool) {
	record, err := s.definitions.GetByID(id)
	if err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("API definition with ID '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return nil, false
	}
	return record, true
}

// deleteClusterByName removes the named cluster, treating an already
// missing cluster as success.
func (s *APIServer) deleteClusterByName(name string) error {
	record, err := s.clusters.GetByName(name)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return s.clusters.Delete(record.ID)
}

func (s *APIServer) deleteRouteConfigByName(name string) error {
	record, err := s.routes.GetByName(name)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return s.routes.Delete(record.ID)
}

// upsertClusterByName rewrites the named cluster in place. A missing row,
// typically left by an interrupted earlier write, is recreated instead.
func (s *APIServer) upsertClusterByName(name string, spec *models.ClusterSpec) error {
	record, err := s.clusters.GetByName(name)
	if err != nil {
		if storage.IsNotFoundError(err) {
			_, err = s.clusters.Create(spec)
			return err
		}
		return err
	}
	_, err = s.clusters.Update(record.ID, spec)
	return err
}

func (s *APIServer) upsertRouteConfigByName(name string, spec *models.RouteConfigSpec) error {
	record, err := s.routes.GetByName(name)
	if err != nil {
		if storage.IsNotFoundError(err) {
			_, err = s.routes.Create(spec)
			return err
		}
		return err
	}
	_, err = s.routes.Update(record.ID, spec)
	return err
}

// rollbackDerived deletes the derived resources created earlier in a failed
// Platform write, newest first, and reports the outcome for the cascade
// error. Failures are logged and the remaining deletes still run.
func (s *APIServer) rollbackDerived(log *zap.Logger, routeConfigName, clusterName string) string {
	var removed, leftBehind []string

	if routeConfigName != "" {
		if err := s.deleteRouteConfigByName(routeConfigName); err != nil {
			leftBehind = append(leftBehind, routeConfigName)
			log.Error("Failed to roll back derived route configuration",
				zap.String("route_config", routeConfigName),
				zap.Error(err))
		} else {
			removed = append(removed, routeConfigName)
		}
	}
	if clusterName != "" {
		if err := s.deleteClusterByName(clusterName); err != nil {
			leftBehind = append(leftBehind, clusterName)
			log.Error("Failed to roll back derived cluster",
				zap.String("cluster", clusterName),
				zap.Error(err))
		} else {
			removed = append(removed, clusterName)
		}
	}

	switch {
	case len(leftBehind) > 0:
		return "rollback incomplete, left behind: " + strings.Join(leftBehind, ", ")
	case len(removed) == 0:
		return "nothing to roll back"
	default:
		return "rolled back " + strings.Join(removed, ", ")
	}
}

// refreshPlatformClasses pushes the cluster and route snapshot classes a
// Platform write touches. Listeners are untouched: definitions attach to
// the shared gateway listener.
func (s *APIServer) refreshPlatformClasses(c *gin.Context) bool {
	if !s.refreshSnapshot(c, s.snapshots.RefreshClusters) {
		return false
	}
	return s.refreshSnapshot(c, s.snapshots.RefreshRouteConfigurations)
}

// createDefinition runs the shared Platform create path: lower the
// definition into its derived cluster and route configuration through the
// Native validators and repositories, persist the definition row, audit,
// and refresh. A failure after the first derived write rolls the earlier
// writes back with compensating deletes. The response on failure is written
// here; the caller only renders the success view.
func (s *APIServer) createDefinition(c *gin.Context, def *models.APIDefinition) (*storage.APIDefinitionRecord, bool) {
	log := middleware.GetLogger(c, s.logger)

	apiID := uuid.NewString()
	clusterName := platform.ClusterName(apiID)
	routeConfigName := platform.RouteConfigName(apiID)
	listenerName := platform.ListenerName(apiID)

	clusterSpec := platform.APIDefinitionToClusterSpec(apiID, def)
	routeSpec := platform.APIDefinitionToRouteConfigSpec(apiID, def)
	if err := validation.ValidateClusterSpec(clusterSpec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: derived cluster: %v", err))
		return nil, false
	}
	if err := validateRoutePayload(routeSpec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: derived route configuration: %v", err))
		return nil, false
	}

	if _, err := s.clusters.Create(clusterSpec); err != nil {
		respondCascade(c, &cascadeError{
			step:     "create derived cluster",
			cause:    err,
			rollback: "nothing to roll back",
		})
		return nil, false
	}
	if _, err := s.routes.Create(routeSpec); err != nil {
		respondCascade(c, &cascadeError{
			step:     "create derived route configuration",
			cause:    err,
			rollback: s.rollbackDerived(log, "", clusterName),
		})
		return nil, false
	}

	record, err := s.definitions.Create(apiID, def, clusterName, routeConfigName, listenerName)
	if err != nil {
		respondCascade(c, &cascadeError{
			step:     "persist API definition",
			cause:    err,
			rollback: s.rollbackDerived(log, routeConfigName, clusterName),
		})
		return nil, false
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeAPIDefinition,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionCreate,
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshPlatformClasses(c) {
		return nil, false
	}

	log.Info("API definition created",
		zap.String("id", record.ID),
		zap.String("name", record.Name),
		zap.String("cluster", clusterName),
		zap.String("route_config", routeConfigName))
	return record, true
}

// CreateAPIDefinition handles POST /api/v1/platform/apis.
func (s *APIServer) CreateAPIDefinition(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var def models.APIDefinition
	if err := decodeStrict(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if err := validation.ValidateAPIDefinition(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	record, ok := s.createDefinition(c, &def)
	if !ok {
		return
	}

	response, err := apiDefinitionResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "API definition", record.ID, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

// ListAPIDefinitions handles GET /api/v1/platform/apis with optional name,
// version, limit, and offset filters.
func (s *APIServer) ListAPIDefinitions(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.definitions.List(storage.APIDefinitionFilter{
		Name:    c.Query("name"),
		Version: c.Query("version"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	responses := make([]models.APIDefinitionResponse, 0, len(records))
	for _, record := range records {
		response, err := apiDefinitionResponseFromRecord(record)
		if err != nil {
			s.respondCorruptRecord(c, "API definition", record.ID, err)
			return
		}
		responses = append(responses, *response)
	}
	c.JSON(http.StatusOK, responses)
}

// GetAPIDefinition handles GET /api/v1/platform/apis/:id.
func (s *APIServer) GetAPIDefinition(c *gin.Context) {
	record, ok := s.definitionByID(c, c.Param("id"))
	if !ok {
		return
	}

	response, err := apiDefinitionResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "API definition", record.ID, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// UpdateAPIDefinition handles PUT /api/v1/platform/apis/:id. The derived
// cluster and route configuration are rewritten in place, resolved by the
// stable names recorded at creation.
func (s *APIServer) UpdateAPIDefinition(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	id := c.Param("id")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var def models.APIDefinition
	if err := decodeStrict(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if err := validation.ValidateAPIDefinition(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	existing, ok := s.definitionByID(c, id)
	if !ok {
		return
	}

	clusterSpec := platform.APIDefinitionToClusterSpec(id, &def)
	routeSpec := platform.APIDefinitionToRouteConfigSpec(id, &def)
	if err := validation.ValidateClusterSpec(clusterSpec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: derived cluster: %v", err))
		return
	}
	if err := validateRoutePayload(routeSpec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: derived route configuration: %v", err))
		return
	}

	if err := s.upsertClusterByName(existing.ClusterID, clusterSpec); err != nil {
		respondStoreError(c, "derived cluster", existing.ClusterID, err)
		return
	}
	if err := s.upsertRouteConfigByName(existing.RouteConfigID, routeSpec); err != nil {
		respondStoreError(c, "derived route configuration", existing.RouteConfigID, err)
		return
	}

	record, err := s.definitions.Update(id, &def)
	if err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("API definition with ID '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeAPIDefinition,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionUpdate,
		OldConfiguration: json.RawMessage(existing.Configuration),
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshPlatformClasses(c) {
		return
	}

	response, err := apiDefinitionResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "API definition", record.ID, err)
		return
	}

	log.Info("API definition updated",
		zap.String("id", record.ID),
		zap.String("name", record.Name))
	c.JSON(http.StatusOK, response)
}

// DeleteAPIDefinition handles DELETE /api/v1/platform/apis/:id. Derived
// resources are removed best-effort: a missing row is fine, anything else
// is logged and the remaining deletes still run. The listener id is
// identifier-only, Platform definitions attach to the shared gateway
// listener, so there is no listener row to remove.
func (s *APIServer) DeleteAPIDefinition(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	id := c.Param("id")

	record, ok := s.definitionByID(c, id)
	if !ok {
		return
	}

	if err := s.deleteRouteConfigByName(record.RouteConfigID); err != nil {
		log.Error("Failed to delete derived route configuration",
			zap.String("route_config", record.RouteConfigID),
			zap.Error(err))
	}
	if err := s.deleteClusterByName(record.ClusterID); err != nil {
		log.Error("Failed to delete derived cluster",
			zap.String("cluster", record.ClusterID),
			zap.Error(err))
	}

	if err := s.definitions.Delete(id); err != nil {
		if storage.IsNotFoundError(err) {
			errorJSON(c, http.StatusNotFound, fmt.Sprintf("API definition with ID '%s' not found", id))
		} else {
			errorJSON(c, http.StatusServiceUnavailable, err.Error())
		}
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeAPIDefinition,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionDelete,
		OldConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshPlatformClasses(c) {
		return
	}

	log.Info("API definition deleted",
		zap.String("id", id),
		zap.String("name", record.Name))
	c.Status(http.StatusNoContent)
}
