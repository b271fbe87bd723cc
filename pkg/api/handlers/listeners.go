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

// ListenerResponse is the canonical view of a listener.
type ListenerResponse struct {
	Name     string              `json:"name"`
	Address  string              `json:"address"`
	Port     uint32              `json:"port"`
	Protocol string              `json:"protocol"`
	Config   models.ListenerSpec `json:"config"`
	Version  int64               `json:"version"`
}

func listenerResponseFromRecord(record *storage.ListenerRecord) (ListenerResponse, error) {
	spec, err := record.Spec()
	if err != nil {
		return ListenerResponse{}, err
	}
	return ListenerResponse{
		Name:     record.Name,
		Address:  record.Address,
		Port:     uint32(record.Port),
		Protocol: record.Protocol,
		Config:   *spec,
		Version:  record.Version,
	}, nil
}

// CreateListener handles POST /api/v1/listeners.
func (s *APIServer) CreateListener(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.ListenerSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid listener payload: %v", err))
		return
	}
	if err := validation.ValidateListenerSpec(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.listeners.Create(&spec)
	if err != nil {
		log.Error("Failed to create listener", zap.String("name", spec.Name), zap.Error(err))
		respondStoreError(c, "listener", spec.Name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeListener,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionCreate,
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshListeners) {
		return
	}

	response, err := listenerResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "listener", record.Name, err)
		return
	}

	log.Info("Listener created",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusCreated, response)
}

// ListListeners handles GET /api/v1/listeners.
func (s *APIServer) ListListeners(c *gin.Context) {
	limit, offset, err := parseListQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.listeners.List(limit, offset)
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	responses := make([]ListenerResponse, 0, len(records))
	for _, record := range records {
		response, err := listenerResponseFromRecord(record)
		if err != nil {
			s.respondCorruptRecord(c, "listener", record.Name, err)
			return
		}
		responses = append(responses, response)
	}

	c.JSON(http.StatusOK, responses)
}

// GetListener handles GET /api/v1/listeners/{name}.
func (s *APIServer) GetListener(c *gin.Context) {
	name := c.Param("name")

	record, err := s.listeners.GetByName(name)
	if err != nil {
		respondStoreError(c, "listener", name, err)
		return
	}

	response, err := listenerResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "listener", name, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// UpdateListener handles PUT /api/v1/listeners/{name}.
func (s *APIServer) UpdateListener(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var spec models.ListenerSpec
	if err := decodeStrict(body, &spec); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid listener payload: %v", err))
		return
	}
	if spec.Name != name {
		errorJSON(c, http.StatusBadRequest,
			fmt.Sprintf("Payload listener name '%s' does not match path '%s'", spec.Name, name))
		return
	}
	if err := validation.ValidateListenerSpec(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.listeners.GetByName(name)
	if err != nil {
		respondStoreError(c, "listener", name, err)
		return
	}

	record, err := s.listeners.Update(existing.ID, &spec)
	if err != nil {
		log.Error("Failed to update listener", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "listener", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeListener,
		ResourceID:       record.ID,
		ResourceName:     record.Name,
		Action:           models.AuditActionUpdate,
		OldConfiguration: json.RawMessage(existing.Configuration),
		NewConfiguration: json.RawMessage(record.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshListeners) {
		return
	}

	response, err := listenerResponseFromRecord(record)
	if err != nil {
		s.respondCorruptRecord(c, "listener", record.Name, err)
		return
	}

	log.Info("Listener updated",
		zap.String("name", record.Name),
		zap.Int64("version", record.Version),
	)
	c.JSON(http.StatusOK, response)
}

// DeleteListener handles DELETE /api/v1/listeners/{name}.
func (s *APIServer) DeleteListener(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)
	name := c.Param("name")

	existing, err := s.listeners.GetByName(name)
	if err != nil {
		respondStoreError(c, "listener", name, err)
		return
	}

	if err := s.listeners.Delete(existing.ID); err != nil {
		log.Error("Failed to delete listener", zap.String("name", name), zap.Error(err))
		respondStoreError(c, "listener", name, err)
		return
	}

	s.recordAudit(c, &models.AuditEvent{
		ResourceType:     constants.ResourceTypeListener,
		ResourceID:       existing.ID,
		ResourceName:     existing.Name,
		Action:           models.AuditActionDelete,
		OldConfiguration: json.RawMessage(existing.Configuration),
	})

	if !s.refreshSnapshot(c, s.snapshots.RefreshListeners) {
		return
	}

	log.Info("Listener deleted", zap.String("name", name))
	c.Status(http.StatusNoContent)
}
