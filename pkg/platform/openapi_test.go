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

package platform

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/models"
)

func TestAPIDefinitionFromOpenAPIJSON(t *testing.T) {
	body := `{
		"openapi": "3.0.3",
		"info": {
			"title": "Payments API",
			"version": "2.1.0",
			"description": "Payment processing"
		},
		"servers": [{"url": "https://api.example.com:8443/v2"}],
		"paths": {
			"/users/{id}": {
				"get": {"description": "Fetch one user"}
			},
			"/users": {
				"get": {
					"summary": "List users",
					"x-flowplane-ratelimit": {"requests": 100, "interval": "60s", "keyBy": "ip"}
				},
				"post": {"summary": "Create user"}
			}
		}
	}`

	def, warnings, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "users-api"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "users-api", def.Name)
	assert.Equal(t, "2.1.0", def.Version)
	assert.Equal(t, "/v2", def.BasePath)

	assert.Equal(t, models.UpstreamConfig{
		Service:       "users-api-backend",
		Endpoints:     []models.UpstreamEndpoint{{Host: "api.example.com", Port: 8443, Weight: 100}},
		TLS:           true,
		LoadBalancing: "ROUND_ROBIN",
	}, def.Upstream)

	// Paths sort lexicographically, methods in fixed order within a path.
	require.Len(t, def.Routes, 3)
	assert.Equal(t, "/users", def.Routes[0].Path)
	assert.Equal(t, []string{"GET"}, def.Routes[0].Methods)
	assert.Equal(t, "List users", *def.Routes[0].Description)
	assert.Equal(t, "/users", def.Routes[1].Path)
	assert.Equal(t, []string{"POST"}, def.Routes[1].Methods)
	assert.Equal(t, "/users/{id}", def.Routes[2].Path)
	assert.Equal(t, "Fetch one user", *def.Routes[2].Description)

	require.NotNil(t, def.Routes[0].Policies)
	require.NotNil(t, def.Routes[0].Policies.RateLimit)
	assert.Equal(t, uint32(100), def.Routes[0].Policies.RateLimit.Requests)
	assert.Equal(t, "60s", def.Routes[0].Policies.RateLimit.Interval)
	require.NotNil(t, def.Routes[0].Policies.RateLimit.KeyBy)
	assert.Equal(t, "ip", *def.Routes[0].Policies.RateLimit.KeyBy)
	assert.Nil(t, def.Routes[1].Policies)

	// The first route carries policies, so they promote to the global bundle.
	assert.Equal(t, def.Routes[0].Policies, def.Policies)

	assert.Equal(t, map[string]any{
		"title":          "Payments API",
		"description":    "Payment processing",
		"openapiVersion": "3.0.3",
	}, def.Metadata)
}

func TestAPIDefinitionFromOpenAPIYAML(t *testing.T) {
	body := `
openapi: "3.1.0"
info:
  title: Ping
  version: ""
paths:
  /ping:
    get:
      summary: Ping the service
`

	def, warnings, err := APIDefinitionFromOpenAPI([]byte(body), "application/yaml", ImportOptions{Name: "ping"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// No document version and no servers: everything falls back.
	assert.Equal(t, "1.0.0", def.Version)
	assert.Equal(t, "/", def.BasePath)
	assert.Equal(t, models.UpstreamConfig{
		Service:       "ping-backend",
		Endpoints:     []models.UpstreamEndpoint{{Host: "backend.example.com", Port: 80, Weight: 100}},
		TLS:           false,
		LoadBalancing: "ROUND_ROBIN",
	}, def.Upstream)

	require.Len(t, def.Routes, 1)
	assert.Equal(t, "/ping", def.Routes[0].Path)
	assert.Equal(t, []string{"GET"}, def.Routes[0].Methods)

	assert.Equal(t, map[string]any{
		"title":          "Ping",
		"openapiVersion": "3.1.0",
	}, def.Metadata)
}

func TestAPIDefinitionFromOpenAPIOverrides(t *testing.T) {
	body := `{
		"openapi": "3.0.0",
		"info": {"title": "Pets", "version": "1.2.3"},
		"servers": [{"url": "http://pets.internal:8080/declared"}],
		"paths": {"/pets": {"get": {}}}
	}`

	def, _, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{
		Name:     "pets",
		Version:  "override-1",
		BasePath: "/custom",
	})
	require.NoError(t, err)

	assert.Equal(t, "override-1", def.Version)
	assert.Equal(t, "/custom", def.BasePath)
	// Overrides do not touch the upstream derivation.
	assert.Equal(t, "pets.internal", def.Upstream.Endpoints[0].Host)
	assert.Equal(t, uint32(8080), def.Upstream.Endpoints[0].Port)
	assert.False(t, def.Upstream.TLS)
}

func TestAPIDefinitionFromOpenAPIServerVariants(t *testing.T) {
	tests := []struct {
		name     string
		servers  string
		basePath string
		host     string
		port     uint32
		tls      bool
	}{
		{
			name:     "https default port",
			servers:  `"servers": [{"url": "https://api.example.com"}],`,
			basePath: "/",
			host:     "api.example.com",
			port:     443,
			tls:      true,
		},
		{
			name:     "http explicit port and path",
			servers:  `"servers": [{"url": "http://api.example.com:8080/base"}],`,
			basePath: "/base",
			host:     "api.example.com",
			port:     8080,
			tls:      false,
		},
		{
			name:     "relative server path",
			servers:  `"servers": [{"url": "/v1"}],`,
			basePath: "/v1",
			host:     "backend.example.com",
			port:     80,
			tls:      false,
		},
		{
			name:     "no servers",
			servers:  "",
			basePath: "/",
			host:     "backend.example.com",
			port:     80,
			tls:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{
				"openapi": "3.0.0",
				"info": {"title": "Svc", "version": "1.0.0"},
				%s
				"paths": {"/x": {"get": {}}}
			}`, tt.servers)

			def, _, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "svc"})
			require.NoError(t, err)

			assert.Equal(t, tt.basePath, def.BasePath)
			require.Len(t, def.Upstream.Endpoints, 1)
			assert.Equal(t, tt.host, def.Upstream.Endpoints[0].Host)
			assert.Equal(t, tt.port, def.Upstream.Endpoints[0].Port)
			assert.Equal(t, tt.tls, def.Upstream.TLS)
			assert.Equal(t, "svc-backend", def.Upstream.Service)
		})
	}
}

func TestAPIDefinitionFromOpenAPIMethodOrder(t *testing.T) {
	body := `{
		"openapi": "3.0.0",
		"info": {"title": "Everything", "version": "1.0.0"},
		"paths": {
			"/all": {
				"head": {}, "options": {}, "patch": {}, "delete": {},
				"put": {}, "post": {}, "get": {}
			}
		}
	}`

	def, _, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "all"})
	require.NoError(t, err)

	require.Len(t, def.Routes, 7)
	var methods []string
	for _, r := range def.Routes {
		require.Len(t, r.Methods, 1)
		methods = append(methods, r.Methods[0])
	}
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"}, methods)
}

func TestAPIDefinitionFromOpenAPIPolicyExtensions(t *testing.T) {
	body := `{
		"openapi": "3.0.0",
		"info": {"title": "Secure", "version": "1.0.0"},
		"paths": {
			"/a": {
				"get": {
					"x-flowplane-ratelimit": {"requests": 50, "interval": "1m"},
					"x-flowplane-jwt-auth": {"required": false, "issuer": "https://iss.example.com", "audience": "payments"},
					"x-flowplane-cors": {
						"origins": ["https://app.example.com"],
						"methods": ["GET", "PUT"],
						"headers": ["X-Trace"],
						"allowCredentials": true,
						"maxAge": 600
					}
				}
			},
			"/b": {
				"get": {"x-flowplane-cors": {}}
			}
		}
	}`

	def, warnings, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "secure"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, def.Routes, 2)

	full := def.Routes[0].Policies
	require.NotNil(t, full)
	require.NotNil(t, full.RateLimit)
	assert.Equal(t, uint32(50), full.RateLimit.Requests)
	assert.Equal(t, "1m", full.RateLimit.Interval)
	assert.Nil(t, full.RateLimit.KeyBy)

	require.NotNil(t, full.Authentication)
	assert.Equal(t, "jwt", full.Authentication.Type)
	assert.False(t, full.Authentication.Required)
	assert.Equal(t, map[string]any{
		"issuer":   "https://iss.example.com",
		"audience": "payments",
	}, full.Authentication.Config)

	require.NotNil(t, full.Cors)
	assert.Equal(t, []string{"https://app.example.com"}, full.Cors.Origins)
	assert.Equal(t, []string{"GET", "PUT"}, full.Cors.Methods)
	assert.Equal(t, []string{"X-Trace"}, full.Cors.Headers)
	assert.True(t, full.Cors.AllowCredentials)
	require.NotNil(t, full.Cors.MaxAge)
	assert.Equal(t, uint64(600), *full.Cors.MaxAge)

	// An empty cors tag takes every default.
	defaulted := def.Routes[1].Policies
	require.NotNil(t, defaulted)
	require.NotNil(t, defaulted.Cors)
	assert.Equal(t, []string{"*"}, defaulted.Cors.Origins)
	assert.Equal(t, []string{"GET", "POST"}, defaulted.Cors.Methods)
	assert.Equal(t, []string{"Content-Type", "Authorization"}, defaulted.Cors.Headers)
	assert.False(t, defaulted.Cors.AllowCredentials)
	assert.Nil(t, defaulted.Cors.MaxAge)

	assert.Equal(t, def.Routes[0].Policies, def.Policies)
}

func TestAPIDefinitionFromOpenAPIWarnings(t *testing.T) {
	body := `{
		"openapi": "3.0.0",
		"info": {"title": "Warnable", "version": "1.0.0"},
		"paths": {
			"/a": {
				"get": {
					"x-flowplane-ratelimit": {"requests": "many", "interval": "60s"},
					"x-flowplane-custom": {"a": 1}
				}
			},
			"/b": {
				"get": {"x-flowplane-cors": {}}
			}
		}
	}`

	def, warnings, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "warnable"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Invalid x-flowplane-ratelimit format",
		"Unknown flowplane tag: x-flowplane-custom",
	}, warnings)

	// The malformed tag emits nothing, so the first route has no policies
	// and nothing promotes to the global bundle.
	assert.Nil(t, def.Routes[0].Policies)
	assert.NotNil(t, def.Routes[1].Policies)
	assert.Nil(t, def.Policies)
}

func TestAPIDefinitionFromOpenAPIRejectsNonOpenAPI3(t *testing.T) {
	body := `{"swagger": "2.0", "info": {"title": "Old", "version": "1"}, "paths": {}}`

	_, _, err := APIDefinitionFromOpenAPI([]byte(body), "application/json", ImportOptions{Name: "old"})
	require.EqualError(t, err, "Only OpenAPI 3.x specifications are supported")
}

func TestAPIDefinitionFromOpenAPIRejectsInvalidJSON(t *testing.T) {
	_, _, err := APIDefinitionFromOpenAPI([]byte(`{"openapi": `), "application/json", ImportOptions{Name: "x"})
	require.EqualError(t, err, "invalid JSON document")

	// A YAML body sent as JSON is invalid JSON.
	_, _, err = APIDefinitionFromOpenAPI([]byte("openapi: 3.0.0"), "application/json", ImportOptions{Name: "x"})
	require.EqualError(t, err, "invalid JSON document")
}

func TestAPIDefinitionFromOpenAPIRejectsInvalidYAML(t *testing.T) {
	_, _, err := APIDefinitionFromOpenAPI([]byte("a: [1"), "application/yaml", ImportOptions{Name: "x"})
	require.ErrorContains(t, err, "invalid YAML document")
}
