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

package integration

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/api/handlers"
	"github.com/flowplane/flowplane/pkg/models"
)

// TestPlatformAPIDerivesNativeResources creates an API definition and
// follows the derived names back through the Native surface: the cluster
// and route configuration must exist under the fixed-suffix names, and
// the route summary must reflect the joined base path.
func TestPlatformAPIDerivesNativeResources(t *testing.T) {
	env := newTestEnvironment(t)

	w := env.request(t, http.MethodPost, "/api/v1/platform/apis", map[string]any{
		"name":     "users-api",
		"version":  "1.0.0",
		"basePath": "/api/v1/users",
		"upstream": map[string]any{
			"service":   "user-service",
			"endpoints": []map[string]any{{"host": "user-service.internal", "port": 8080}},
		},
		"routes": []map[string]any{
			{"path": "/", "methods": []string{"GET", "POST"}},
			{"path": "/{id}", "methods": []string{"GET", "PUT", "DELETE"}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var definition models.APIDefinitionResponse
	mustDecode(t, w, &definition)
	require.NotEmpty(t, definition.ID)
	assert.Equal(t, definition.ID+"-routes", definition.RouteConfigID)
	assert.Equal(t, definition.ID+"-cluster", definition.ClusterID)
	assert.Equal(t, definition.ID+"-listener", definition.ListenerID)

	w = env.request(t, http.MethodGet, "/api/v1/clusters/"+definition.ClusterID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cluster handlers.ClusterResponse
	mustDecode(t, w, &cluster)
	assert.Equal(t, definition.ClusterID, cluster.Name)
	assert.Equal(t, "user-service", cluster.ServiceName)
	require.Len(t, cluster.Config.Endpoints, 1)
	assert.Equal(t, "user-service.internal", cluster.Config.Endpoints[0].Host)

	w = env.request(t, http.MethodGet, "/api/v1/route-configs/"+definition.RouteConfigID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var route handlers.RouteResponse
	mustDecode(t, w, &route)
	assert.Equal(t, definition.RouteConfigID, route.Name)
	assert.Equal(t, "/api/v1/users/", route.PathPrefix,
		"summary must join the base path with the first route path")

	require.Len(t, route.Config.VirtualHosts, 1)
	require.Len(t, route.Config.VirtualHosts[0].Routes, 2)
	assert.Equal(t, "/api/v1/users/{id}",
		route.Config.VirtualHosts[0].Routes[1].Match.Path.Value)
}

// TestOpenAPIImportAppliesFlowplaneTags imports a YAML document whose
// operations carry x-flowplane-* extensions. Known tags become policies
// on the definition; unknown tags must surface as warnings instead of
// failing the import.
func TestOpenAPIImportAppliesFlowplaneTags(t *testing.T) {
	env := newTestEnvironment(t)

	const doc = `openapi: 3.0.3
info:
  title: Tagged API
  version: 1.4.0
servers:
  - url: https://tagged.example.com/api
paths:
  /accounts:
    get:
      summary: List accounts
      x-flowplane-ratelimit:
        requests: 100
        interval: "1m"
      x-flowplane-jwt-auth:
        required: true
        issuer: "https://issuer.example.com"
      x-flowplane-cors:
        origins:
          - "https://app.example.com"
        methods:
          - GET
          - POST
      responses:
        '200':
          description: OK
  /transfers:
    post:
      summary: Submit a transfer
      x-flowplane-invalid-filter:
        enabled: true
      responses:
        '201':
          description: Created
`

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/platform/import/openapi?name=tagged-api", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/yaml")
	req.Header.Set("Authorization", "Bearer "+env.adminToken)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.OpenAPIImportResponse
	mustDecode(t, w, &resp)

	assert.Equal(t, "tagged-api", resp.Name)
	assert.Equal(t, "1.4.0", resp.Version)
	assert.Equal(t, "/api", resp.BasePath)
	assert.True(t, resp.Upstream.TLS)

	require.NotNil(t, resp.Policies)
	require.NotNil(t, resp.Policies.RateLimit)
	assert.Equal(t, uint32(100), resp.Policies.RateLimit.Requests)
	assert.Equal(t, "1m", resp.Policies.RateLimit.Interval)
	require.NotNil(t, resp.Policies.Authentication)
	assert.Equal(t, "jwt", resp.Policies.Authentication.Type)
	assert.True(t, resp.Policies.Authentication.Required)
	require.NotNil(t, resp.Policies.Cors)
	assert.Equal(t, []string{"https://app.example.com"}, resp.Policies.Cors.Origins)
	assert.Equal(t, []string{"GET", "POST"}, resp.Policies.Cors.Methods)

	assert.Contains(t, resp.Warnings, "Unknown flowplane tag: x-flowplane-invalid-filter")

	require.Len(t, resp.Routes, 2)
	assert.Equal(t, "/accounts", resp.Routes[0].Path)
	assert.Equal(t, []string{"GET"}, resp.Routes[0].Methods)
	assert.NotNil(t, resp.Routes[0].Policies, "tagged operation keeps its route policies")
	assert.Equal(t, "/transfers", resp.Routes[1].Path)
	assert.Equal(t, []string{"POST"}, resp.Routes[1].Methods)
	assert.Nil(t, resp.Routes[1].Policies, "unknown tags alone attach no policies")
}

// TestLegacyGatewayImportRedirects covers the retired import path: the
// endpoint answers with a permanent redirect that preserves the query.
func TestLegacyGatewayImportRedirects(t *testing.T) {
	env := newTestEnvironment(t)

	w := env.request(t, http.MethodPost, "/api/v1/gateways/openapi?name=legacy", `{"openapi":"3.0.0"}`)

	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/api/v1/platform/import/openapi?name=legacy", w.Header().Get("Location"))
}
