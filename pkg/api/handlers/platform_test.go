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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

func apiDefinitionPayload(name string) map[string]any {
	return map[string]any{
		"name":     name,
		"version":  "1.0.0",
		"basePath": "/" + name,
		"upstream": map[string]any{
			"service":   name + "-backend",
			"endpoints": []map[string]any{{"host": "10.1.0.1", "port": 8443}},
		},
		"routes": []map[string]any{{
			"path":    "/items",
			"methods": []string{"GET", "POST"},
		}},
	}
}

func servicePayload(name string) map[string]any {
	return map[string]any{
		"name": name,
		"endpoints": []map[string]any{
			{"host": "10.2.0.1", "port": 9000},
			{"host": "10.2.0.2", "port": 9000, "weight": 50},
		},
	}
}

func TestCreateAPIDefinition(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.APIDefinitionResponse
	decodeJSON(t, w, &resp)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "orders", resp.Name)
	assert.Equal(t, resp.ID+"-cluster", resp.ClusterID)
	assert.Equal(t, resp.ID+"-routes", resp.RouteConfigID)
	assert.Equal(t, resp.ID+"-listener", resp.ListenerID)

	// The derived cluster and route configuration are real Native rows.
	cluster, err := ts.clusters.GetByName(resp.ClusterID)
	require.NoError(t, err)
	spec, err := cluster.Spec()
	require.NoError(t, err)
	require.Len(t, spec.Endpoints, 1)
	assert.Equal(t, "10.1.0.1", spec.Endpoints[0].Host)

	routeConfig, err := ts.routes.GetByName(resp.RouteConfigID)
	require.NoError(t, err)
	routeSpec, err := routeConfig.Spec()
	require.NoError(t, err)
	require.Len(t, routeSpec.VirtualHosts, 1)

	// The listener identifier is bookkeeping only: definitions share the
	// gateway listener and no listener row is created.
	_, err = ts.listeners.GetByName(resp.ListenerID)
	assert.True(t, storage.IsNotFoundError(err))

	// Derived resources land in the snapshot cache immediately.
	snapshot, err := ts.snapshots.GetCache().GetSnapshot("test-node")
	require.NoError(t, err)
	assert.Contains(t, snapshot.GetResources(resource.ClusterType), resp.ClusterID)
	assert.Contains(t, snapshot.GetResources(resource.RouteType), resp.RouteConfigID)

	entries, err := ts.auditLog.List(10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, constants.ResourceTypeAPIDefinition, entries[0].ResourceType)
	assert.Equal(t, models.AuditActionCreate, entries[0].Action)
}

func TestCreateAPIDefinitionValidation(t *testing.T) {
	ts := newTestServer(t)

	payload := apiDefinitionPayload("orders")
	payload["name"] = ""

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", payload)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "Validation failed:")
	assert.Contains(t, errorMessage(t, w), "API name must be 1-100 characters")
}

func TestCreateAPIDefinitionRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	payload := apiDefinitionPayload("orders")
	payload["shrubbery"] = true

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", payload)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "Validation failed:")
}

func TestCreateAPIDefinitionRejectsBadPolicyBlock(t *testing.T) {
	ts := newTestServer(t)

	payload := apiDefinitionPayload("orders")
	payload["policies"] = map[string]any{
		"rateLimit": map[string]any{"requests": 100},
	}

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", payload)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "interval is required")
}

func TestCreateAPIDefinitionDuplicateRollsBackDerived(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	require.Equal(t, http.StatusCreated, w.Code)

	// Same name and version: the derived writes succeed under fresh
	// identifiers, then the definition row collides and both are rolled
	// back with compensating deletes.
	w = ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	msg := errorMessage(t, w)
	assert.Contains(t, msg, "persist API definition failed")
	assert.Contains(t, msg, "rolled back")

	clusters, err := ts.clusters.List(0, 0)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)

	routeConfigs, err := ts.routes.List(0, 0)
	require.NoError(t, err)
	assert.Len(t, routeConfigs, 1)

	records, err := ts.definitions.List(storage.APIDefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestGetAPIDefinition(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.APIDefinitionResponse
	decodeJSON(t, w, &created)

	w = ts.request(t, http.MethodGet, "/api/v1/platform/apis/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.APIDefinitionResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, "orders", resp.Name)
	assert.Equal(t, "/orders", resp.BasePath)
}

func TestGetAPIDefinitionNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/platform/apis/no-such-id", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "API definition with ID 'no-such-id' not found", errorMessage(t, w))
}

func TestListAPIDefinitionsFilters(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("billing"))

	payload := apiDefinitionPayload("orders")
	payload["version"] = "2.0.0"
	ts.request(t, http.MethodPost, "/api/v1/platform/apis", payload)

	w := ts.request(t, http.MethodGet, "/api/v1/platform/apis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []models.APIDefinitionResponse
	decodeJSON(t, w, &resp)
	assert.Len(t, resp, 3)

	w = ts.request(t, http.MethodGet, "/api/v1/platform/apis?name=orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &resp)
	assert.Len(t, resp, 2)

	w = ts.request(t, http.MethodGet, "/api/v1/platform/apis?name=orders&version=2.0.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "2.0.0", resp[0].Version)
}

func TestUpdateAPIDefinitionRewritesDerivedInPlace(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.APIDefinitionResponse
	decodeJSON(t, w, &created)

	payload := apiDefinitionPayload("orders")
	payload["upstream"] = map[string]any{
		"service":   "orders-backend",
		"endpoints": []map[string]any{{"host": "10.9.9.9", "port": 8443}},
	}

	w = ts.request(t, http.MethodPut, "/api/v1/platform/apis/"+created.ID, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.APIDefinitionResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, created.ClusterID, resp.ClusterID)
	assert.Equal(t, created.RouteConfigID, resp.RouteConfigID)

	// The derived cluster was rewritten under its stable name, not replaced.
	cluster, err := ts.clusters.GetByName(created.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cluster.Version)
	spec, err := cluster.Spec()
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", spec.Endpoints[0].Host)

	entries, err := ts.auditLog.List(10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, constants.ResourceTypeAPIDefinition, entries[0].ResourceType)
	assert.Equal(t, models.AuditActionUpdate, entries[0].Action)
}

func TestUpdateAPIDefinitionNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPut, "/api/v1/platform/apis/no-such-id", apiDefinitionPayload("orders"))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "API definition with ID 'no-such-id' not found", errorMessage(t, w))
}

func TestDeleteAPIDefinitionCascades(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/apis", apiDefinitionPayload("orders"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.APIDefinitionResponse
	decodeJSON(t, w, &created)

	w = ts.request(t, http.MethodDelete, "/api/v1/platform/apis/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err := ts.clusters.GetByName(created.ClusterID)
	assert.True(t, storage.IsNotFoundError(err))
	_, err = ts.routes.GetByName(created.RouteConfigID)
	assert.True(t, storage.IsNotFoundError(err))

	w = ts.request(t, http.MethodGet, "/api/v1/platform/apis/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	snapshot, err := ts.snapshots.GetCache().GetSnapshot("test-node")
	require.NoError(t, err)
	assert.NotContains(t, snapshot.GetResources(resource.ClusterType), created.ClusterID)
}

func TestCreateService(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.ServiceResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, "payments", resp.Name)
	assert.Equal(t, "payments", resp.ClusterID)
	require.Len(t, resp.Endpoints, 2)
	assert.Equal(t, uint32(100), resp.Endpoints[0].Weight)
	assert.Equal(t, uint32(50), resp.Endpoints[1].Weight)
	assert.Equal(t, models.LoadBalancingRoundRobin, resp.LoadBalancing)

	// The service is a cluster row carrying the same name.
	record, err := ts.clusters.GetByName("payments")
	require.NoError(t, err)
	assert.Equal(t, "payments", record.ServiceName)

	entries, err := ts.auditLog.List(10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, constants.ResourceTypeCluster, entries[0].ResourceType)
}

func TestCreateServiceConflict(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, http.MethodPost, "/api/v1/clusters", clusterPayload("payments"))

	w := ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "service 'payments' already exists", errorMessage(t, w))
}

func TestCreateServiceValidation(t *testing.T) {
	ts := newTestServer(t)

	payload := servicePayload("payments")
	payload["endpoints"] = []map[string]any{{"host": "10.2.0.1", "port": 9000, "weight": 500}}

	w := ts.request(t, http.MethodPost, "/api/v1/platform/services", payload)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "Endpoint weight must be between 1 and 100")
}

func TestListServices(t *testing.T) {
	ts := newTestServer(t)

	ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))
	ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("ledger"))

	w := ts.request(t, http.MethodGet, "/api/v1/platform/services", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []models.ServiceResponse
	decodeJSON(t, w, &resp)
	require.Len(t, resp, 2)

	names := []string{resp[0].Name, resp[1].Name}
	assert.Contains(t, names, "payments")
	assert.Contains(t, names, "ledger")
}

func TestGetServiceNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodGet, "/api/v1/platform/services/ghost", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "service 'ghost' not found", errorMessage(t, w))
}

func TestUpdateService(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))

	payload := servicePayload("payments")
	payload["endpoints"] = []map[string]any{{"host": "10.3.0.1", "port": 9100}}

	w := ts.request(t, http.MethodPut, "/api/v1/platform/services/payments", payload)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.ServiceResponse
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Endpoints, 1)
	assert.Equal(t, "10.3.0.1", resp.Endpoints[0].Host)

	record, err := ts.clusters.GetByName("payments")
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.Version)
}

func TestUpdateServiceNameMismatch(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))

	w := ts.request(t, http.MethodPut, "/api/v1/platform/services/payments", servicePayload("ledger"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Payload service name 'ledger' does not match path 'payments'", errorMessage(t, w))
}

func TestDeleteService(t *testing.T) {
	ts := newTestServer(t)
	ts.request(t, http.MethodPost, "/api/v1/platform/services", servicePayload("payments"))

	w := ts.request(t, http.MethodDelete, "/api/v1/platform/services/payments", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err := ts.clusters.GetByName("payments")
	assert.True(t, storage.IsNotFoundError(err))

	w = ts.request(t, http.MethodDelete, "/api/v1/platform/services/payments", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

const petstoreOpenAPI = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "2.1.0"},
  "servers": [{"url": "https://petstore.example.com/v2"}],
  "paths": {
    "/pets": {
      "get": {"summary": "List pets"},
      "post": {"summary": "Create a pet"}
    },
    "/pets/{petId}": {
      "get": {"summary": "Get a pet"}
    }
  }
}`

func TestImportOpenAPI(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/import/openapi?name=petstore", petstoreOpenAPI)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.OpenAPIImportResponse
	decodeJSON(t, w, &resp)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "petstore", resp.Name)
	assert.Equal(t, "2.1.0", resp.Version)
	assert.Equal(t, "/v2", resp.BasePath)

	require.Len(t, resp.Upstream.Endpoints, 1)
	assert.Equal(t, "petstore.example.com", resp.Upstream.Endpoints[0].Host)
	assert.Equal(t, uint32(443), resp.Upstream.Endpoints[0].Port)
	assert.True(t, resp.Upstream.TLS)

	// One route per path and method, paths in lexicographic order, GET
	// ahead of POST within a path.
	require.Len(t, resp.Routes, 3)
	assert.Equal(t, "/pets", resp.Routes[0].Path)
	assert.Equal(t, []string{"GET"}, resp.Routes[0].Methods)
	assert.Equal(t, []string{"POST"}, resp.Routes[1].Methods)
	assert.Equal(t, "/pets/{petId}", resp.Routes[2].Path)

	// The import lands as a full definition with derived resources.
	w = ts.request(t, http.MethodGet, "/api/v1/platform/apis/"+resp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := ts.clusters.GetByName(resp.ID + "-cluster")
	require.NoError(t, err)
}

func TestImportOpenAPIHonorsQueryOverrides(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost,
		"/api/v1/platform/import/openapi?name=petstore&version=9.9.9&basePath=/store", petstoreOpenAPI)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp models.OpenAPIImportResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, "9.9.9", resp.Version)
	assert.Equal(t, "/store", resp.BasePath)
}

func TestImportOpenAPIRequiresName(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/platform/import/openapi", petstoreOpenAPI)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required query parameter 'name'", errorMessage(t, w))
}

func TestImportOpenAPIRejectsSwagger2(t *testing.T) {
	ts := newTestServer(t)

	doc := `{"swagger": "2.0", "info": {"title": "Old", "version": "1.0"}, "paths": {}}`
	w := ts.request(t, http.MethodPost, "/api/v1/platform/import/openapi?name=old", doc)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only OpenAPI 3.x specifications are supported", errorMessage(t, w))
}

func TestImportOpenAPIYAML(t *testing.T) {
	ts := newTestServer(t)

	doc := `openapi: 3.0.3
info:
  title: Inventory
  version: 0.3.0
servers:
  - url: http://inventory.internal:8080/api
paths:
  /items:
    get:
      summary: List items
`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/platform/import/openapi?name=inventory",
		strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.OpenAPIImportResponse
	decodeJSON(t, w, &resp)
	assert.Equal(t, "inventory", resp.Name)
	assert.Equal(t, "0.3.0", resp.Version)
	assert.Equal(t, "/api", resp.BasePath)
	require.Len(t, resp.Upstream.Endpoints, 1)
	assert.Equal(t, "inventory.internal", resp.Upstream.Endpoints[0].Host)
	assert.Equal(t, uint32(8080), resp.Upstream.Endpoints[0].Port)
	assert.False(t, resp.Upstream.TLS)
}

func TestImportOpenAPIInvalidYAML(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/platform/import/openapi?name=broken",
		strings.NewReader("\t: not yaml: ["))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "invalid YAML document")
}

func TestGatewaysOpenAPIRedirects(t *testing.T) {
	ts := newTestServer(t)

	w := ts.request(t, http.MethodPost, "/api/v1/gateways/openapi?name=pet%20store", petstoreOpenAPI)

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/api/v1/platform/import/openapi?name=pet+store", w.Header().Get("Location"))
}
