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
)

// ClusterResponse is the canonical view of a cluster.
type ClusterResponse struct {
	Name        string             `json:"name"`
	ServiceName string             `json:"serviceName"`
	Config      models.ClusterSpec `json:"config"`
	Version     int64              `json:"version"`
}

func clusterResponseFromRecord(record *storage.ClusterRecord) (ClusterResponse, error) {
	spec, err := record.Spec()
	if err != nil {
		return ClusterResponse{}, err
	}
	return ClusterResponse{
		Name:        record.Name,
		ServiceName: record.ServiceName,
		Config:      *spec,
		Version:     record.Version,
	}, nil
}

// CreateCluster handles POST /api/v1/clusters.
func (s *APIServer) CreateCluster(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.ClusterSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid cluster payload: %v", err))
		return
	}
	if err := validation.ValidateClusterSpec(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.clusters.Create(&spec)
	if err != nil {
		log.Error("Failed to create cluster", zap.String("name", spec.Name), zap.Error(err))
		respondStoreError(c, "cluster", spec.Name, err)
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

	response, err := clusterResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "cluster", record.Name, err)
		return
	}

	log.Info("Cluster created",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusCreated, response)
}

// ListClusters handles GET /api/v1/clusters.
func (s *APIServer) ListClusters(c *gin.Context) {
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

	responses := make([]ClusterResponse, 0, len(records))
	for _, record := range records {
		response, err := clusterResponseFromRecord(record)
		if err != nil {
			s.respondCorruptRecord(c, "cluster", record.Name, err)
			return
		}
		responses = append(responses, response)
	}

	c.JSON(http.StatusOK, responses)
}

// GetCluster handles GET /api/v1/clusters/{name}.
func (s *APIServer) GetCluster(c *gin.Context) {
	name := c.Param("name")

	record, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "cluster", name, err)
		return
	}

	response, err := clusterResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "cluster", name, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// UpdateCluster handles PUT /api/v1/clusters/{name}.
func (s *APIServer) UpdateCluster(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.ClusterSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid cluster payload: %v", err))
		return
	}
	if spec.Name != name {
		errorJSON(c, http.StatusBadRequest,
			fmt.Sprintf("Payload cluster name '%s' does not match path '%s'", spec.Name, name))
		return
	}
	if err := validation.ValidateClusterSpec(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "cluster", name, err)
		return
	}

	record, err := s.clusters.Update(existing.ID, &spec)
	if err != nil {
		log.Error("Failed to update cluster", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "cluster", name, err)
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

	response, err := clusterResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "cluster", record.Name, err)
		return
	}

	log.Info("Cluster updated",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusOK, response)
}

// DeleteCluster handles DELETE /api/v1/clusters/{name}.
func (s *APIServer) DeleteCluster(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	existing, err := s.clusters.GetByName(name)
	if err != nil {
		respondStoreError(c, "cluster", name, err)
		return
	}

	if err := s.clusters.Delete(existing.ID); err != nil {
		log.Error("Failed to delete cluster", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "cluster", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeCluster,
		ResourceID:       existing.ID,
		ResourceName:     existing.Name,
		Action:           models.AuditActionDelete,
		OldConfiguration: json.RawMessage(existing.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshClusters) {
		return
	}

	log.Info("Cluster deleted", zap.String("name", name))
	c.Status(http.StatusNoContent)
}
