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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
	"github.com/flowplane/flowplane/pkg/validation"
	"github.com/flowplane/flowplane/pkg/xds"
)

// RouteResponse is the canonical view of a route configuration.
type RouteResponse struct {
	Name           string                 `json:"name"`
	PathPrefix     string                 `json:"pathPrefix"`
	ClusterTargets string                 `json:"clusterTargets"`
	Config         models.RouteConfigSpec `json:"config"`
	Version        int64                  `json:"version"`
}

func routeResponseFromRecord(record *storage.RouteRecord) (RouteResponse, error) {
	spec, err := record.Spec()
	if err != nil {
		return RouteResponse{}, err
	}
	return RouteResponse{
		Name:           record.Name,
		PathPrefix:     record.PathPrefix,
		ClusterTargets: record.ClusterName,
		Config:         *spec,
		Version:        record.Version,
	}, nil
}

// validateRoutePayload runs the route validators plus the wire-encoding
// smoke test. Field checks alone do not prove the configuration encodes:
// proto-level constraints like URI template syntax only fail on encode.
func validateRoutePayload(spec *models.RouteConfigSpec) error {
	if err := validation.ValidateRouteConfigSpec(spec); err != nil {
		return err
	}
	if _, err := xds.RouteConfigurationFromSpec(spec); err != nil {
		return fmt.Errorf("route configuration does not encode: %v", err)
	}
	return nil
}

// CreateRoute handles POST /api/v1/route-configs.
func (s *APIServer) CreateRoute(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.RouteConfigSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid route configuration payload: %v", err))
		return
	}
	if err := validateRoutePayload(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.routes.Create(&spec)
	if err != nil {
		log.Error("Failed to create route configuration", zap.String("name", spec.Name), zap.Error(err))
		respondStoreError(c, "route configuration", spec.Name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeRouteConfig,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionCreate,
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshRouteConfigurations) {
		return
	}

	response, err := routeResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "route configuration", record.Name, err)
		return
	}

	log.Info("Route configuration created",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusCreated, response)
}

// ListRoutes handles GET /api/v1/route-configs.
func (s *APIServer) ListRoutes(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.routes.List(limit, offset)
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	responses := make([]RouteResponse, 0, len(records))
	for _, record := range records {
		response, err := routeResponseFromRecord(record)
		if err != nil {
			s.respondCorruptRecord(c, "route configuration", record.Name, err)
			return
		}
		responses = append(responses, response)
	}

	c.JSON(http.StatusOK, responses)
}

// GetRoute handles GET /api/v1/route-configs/{name}.
func (s *APIServer) GetRoute(c *gin.Context) {
	name := c.Param("name")

	record, err := s.routes.GetByName(name)
	if err != nil {
		respondStoreError(c, "route configuration", name, err)
		return
	}

	response, err := routeResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "route configuration", name, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// UpdateRoute handles PUT /api/v1/route-configs/{name}.
func (s *APIServer) UpdateRoute(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.RouteConfigSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid route configuration payload: %v", err))
		return
	}
	if spec.Name != name {
		errorJSON(c, http.StatusBadRequest,
			fmt.Sprintf("Payload route name '%s' does not match path '%s'", spec.Name, name))
		return
	}
	if err := validateRoutePayload(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.routes.GetByName(name)
	if err != nil {
		respondStoreError(c, "route configuration", name, err)
		return
	}

	record, err := s.routes.Update(existing.ID, &spec)
	if err != nil {
		log.Error("Failed to update route configuration", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "route configuration", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeRouteConfig,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionUpdate,
		OldConfiguration: json.RawMessage(existing.Configuration),
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshRouteConfigurations) {
		return
	}

	response, err := routeResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "route configuration", record.Name, err)
		return
	}

	log.Info("Route configuration updated",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusOK, response)
}

// DeleteRoute handles DELETE /api/v1/route-configs/{name}.
func (s *APIServer) DeleteRoute(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	// The default gateway routes are the catch-all every listener falls
	// back to; deleting them would black-hole the data plane.
	if name == constants.DefaultGatewayRoutes {
		errorJSON(c, http.StatusConflict, "The default gateway route configuration cannot be deleted")
		return
	}

	existing, err := s.routes.GetByName(name)
	if err != nil {
		respondStoreError(c, "route configuration", name, err)
		return
	}

	if err := s.routes.Delete(existing.ID); err != nil {
		log.Error("Failed to delete route configuration", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "route configuration", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeRouteConfig,
		ResourceID:       existing.ID,
		ResourceName:     existing.Name,
		Action:           models.AuditActionDelete,
		OldConfiguration: json.RawMessage(existing.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshRouteConfigurations) {
		return
	}

	log.Info("Route configuration deleted", zap.String("name", name))
	c.Status(http.StatusNoContent)
}
