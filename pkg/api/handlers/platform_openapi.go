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
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/platform"
	"github.com/flowplane/flowplane/pkg/validation"
)

// ImportOpenAPI handles POST /api/v1/platform/import/openapi. The document,
// JSON or YAML by Content-Type, is converted into an API definition and
// then runs the same create path as a hand-written one. Non-fatal findings
// from the conversion come back as warnings.
func (s *APIServer) ImportOpenAPI(c *gin.Context) {
	log := middleware.GetLogger(c, s.logger)

	name := c.Query("name")
	if name == "" {
		errorJSON(c, http.StatusBadRequest, "Missing required query parameter 'name'")
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	def, warnings, err := platform.APIDefinitionFromOpenAPI(body, c.GetHeader("Content-Type"), platform.ImportOptions{
		Name:     name,
		Version:  c.Query("version"),
		BasePath: c.Query("basePath"),
	})
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	// The converted definition is synthesized, so there is no raw document
	// with policy blocks to re-check.
	if err := validation.ValidateAPIDefinition(nil, def); err != nil {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	record, ok := s.createDefinition(c, def)
	if !ok {
		return
	}

	log.Info("Imported OpenAPI document",
		zap.String("id", record.ID),
		zap.String("name", def.Name),
		zap.Int("routes", len(def.Routes)),
		zap.Int("warnings", len(warnings)))
	c.JSON(http.StatusCreated, models.OpenAPIImportResponse{
		ID:        record.ID,
		Name:      def.Name,
		Version:   def.Version,
		BasePath:  def.BasePath,
		Upstream:  def.Upstream,
		Routes:    def.Routes,
		Policies:  def.Policies,
		Metadata:  def.Metadata,
		Warnings:  warnings,
		CreatedAt: record.CreatedAt,
	})
}

// GatewaysOpenAPI handles POST /api/v1/gateways/openapi, the retired import
// endpoint. It answers a permanent redirect to the current one before
// touching the body; only the name parameter carries over.
func (s *APIServer) GatewaysOpenAPI(c *gin.Context) {
	location := "/api/v1/platform/import/openapi?name=" + url.QueryEscape(c.Query("name"))
	c.Header("Location", location)
	c.Status(http.StatusPermanentRedirect)
}
