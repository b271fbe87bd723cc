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
	"github.com/flowplane/flowplane/pkg/platform"
	"github.com/flowplane/flowplane/pkg/validation"
)

// serviceResponseFromDefinition echoes the accepted definition back with
// the identifier of the cluster it lowered into. The round trip through
// ClusterSpecToService is lossy, so writes answer from the request instead.
func serviceResponseFromDefinition(def *models.ServiceDefinition, clusterName string) *models.ServiceResponse {
	return &models.ServiceResponse{
		Name:             def.Name,
		ClusterID:        clusterName,
		Endpoints:        def.Endpoints,
		LoadBalancing:    def.LoadBalancing,
		HealthCheck:      def.HealthCheck,
		CircuitBreaker:   def.CircuitBreaker,
		OutlierDetection: def.OutlierDetection,
		Metadata:         def.Metadata,
	}
}

// CreateService handles POST /api/v1/platform/services. The definition
// lowers into a cluster carrying the service name, created through the same
// validators and repository the Native API uses.
func (s *APIServer) CreateService(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var def models.ServiceDefinition
	if err := decodeStrict(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if err := validation.ValidateServiceDefinition(&def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	spec := platform.ServiceToClusterSpec(&def)
	if err := validation.ValidateClusterSpec(spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	record, err := s.clusters.Create(spec)
	if err != nil {
		respondStoreError(c, "service", def.Name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeCluster,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionCreate,
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshClusters) {
		return
	}

	log.Info("Service created",
		zap.String("service", def.Name),
		zap.String("cluster", record.Name))
	c.JSON(http.StatusCreated, serviceResponseFromDefinition(&def, record.Name))
}

// ListServices handles GET /api/v1/platform/services. Every cluster
// projects through the lossy inverse, so natively created clusters appear
// here too.
func (s *APIServer) ListServices(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.clusters.List(limit, offset)
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	services := make([]models.ServiceResponse, 0, len(records))
	for _, record := range records {
		spec, err := record.Spec()
		if err != nil {
			s.respondCorruptRecord(c, "cluster", record.Name, err)
			return
		}
		services = append(services, *platform.ClusterSpecToService(spec))
	}
	c.JSON(http.StatusOK, services)
}

// GetService handles GET /api/v1/platform/services/:name.
func (s *APIServer) GetService(c *gin.Context) {
	name := c.Param("name")

	record, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "service", name, err)
		return
	}

	spec, err := record.Spec()
	if err != nil {
		s.respondCorruptRecord(c, "cluster", record.Name, err)
		return
	}
	c.JSON(http.StatusOK, platform.ClusterSpecToService(spec))
}

// UpdateService handles PUT /api/v1/platform/services/:name.
func (s *APIServer) UpdateService(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var def models.ServiceDefinition
	if err := decodeStrict(body, &def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	if def.Name != name {
		errorJSON(c, http.StatusBadRequest,
			fmt.Sprintf("Payload service name '%s' does not match path '%s'", def.Name, name))
		return
	}
	if err := validation.ValidateServiceDefinition(&def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	spec := platform.ServiceToClusterSpec(&def)
	if err := validation.ValidateClusterSpec(spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	existing, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "service", name, err)
		return
	}

	record, err := s.clusters.Update(existing.ID, spec)
	if err != nil {
		respondStoreError(c, "service", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeCluster,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionUpdate,
		OldConfiguration: json.RawMessage(existing.Configuration),
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshClusters) {
		return
	}

	log.Info("Service updated",
		zap.String("service", def.Name),
		zap.String("cluster", record.Name))
	c.JSON(http.StatusOK, serviceResponseFromDefinition(&def, record.Name))
}

// DeleteService handles DELETE /api/v1/platform/services/:name.
func (s *APIServer) DeleteService(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	record, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "service", name, err)
		return
	}

	if err := s.clusters.Delete(record.ID); err != nil {
		respondStoreError(c, "service", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeCluster,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionDelete,
		OldConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshClusters) {
		return
	}

	log.Info("Service deleted", zap.String("service", name))
	c.Status(http.StatusNoContent)
}
