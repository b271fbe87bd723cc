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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
)

// ImportOptions carries the importer parameters. Name is the API name the
// definition is created under; Version and BasePath, when set, override what
// the document declares.
type ImportOptions struct {
	Name     string
	Version  string
	BasePath string
}

// importMethods fixes the per-path operation order so imports are
// deterministic regardless of document key order.
var importMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
	http.MethodHead,
}

var knownFlowplaneTags = map[string]struct{}{
	"x-flowplane-ratelimit": {},
	"x-flowplane-jwt-auth":  {},
	"x-flowplane-cors":      {},
}

// APIDefinitionFromOpenAPI converts an OpenAPI 3.x document into an API
// definition: one route per path/method pair in lexicographic path order,
// the upstream derived from the first server URL, and policies extracted
// from x-flowplane-* operation extensions. Unknown or malformed extensions
// produce warnings instead of failing the import.
func APIDefinitionFromOpenAPI(body []byte, contentType string, opts ImportOptions) (*models.APIDefinition, []string, error) {
	if strings.Contains(contentType, "yaml") {
		var node map[string]any
		if err := yaml.Unmarshal(body, &node); err != nil {
			return nil, nil, fmt.Errorf("invalid YAML document: %w", err)
		}
	} else if !json.Valid(body) {
		return nil, nil, errors.New("invalid JSON document")
	}

	doc, err := openapi3.NewLoader().LoadFromData(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, nil, errors.New("Only OpenAPI 3.x specifications are supported")
	}

	version := opts.Version
	if version == "" {
		if doc.Info != nil && doc.Info.Version != "" {
			version = doc.Info.Version
		} else {
			version = "1.0.0"
		}
	}

	var serverURL string
	if len(doc.Servers) > 0 {
		serverURL = doc.Servers[0].URL
	}

	basePath := opts.BasePath
	if basePath == "" {
		basePath = basePathFromServerURL(serverURL)
	}

	var (
		routes         []models.APIRoute
		globalPolicies *models.APIPolicies
		warnings       []string
	)
	if doc.Paths != nil {
		pathItems := doc.Paths.Map()
		pathKeys := make([]string, 0, len(pathItems))
		for path := range pathItems {
			pathKeys = append(pathKeys, path)
		}
		sort.Strings(pathKeys)

		for _, path := range pathKeys {
			item := pathItems[path]
			if item == nil {
				continue
			}
			for _, method := range importMethods {
				op := item.GetOperation(method)
				if op == nil {
					continue
				}

				var description *string
				if op.Summary != "" {
					s := op.Summary
					description = &s
				} else if op.Description != "" {
					s := op.Description
					description = &s
				}

				policies, opWarnings := extractFlowplanePolicies(op.Extensions)
				warnings = append(warnings, opWarnings...)

				if len(routes) == 0 && policies != nil {
					globalPolicies = policies
				}

				routes = append(routes, models.APIRoute{
					Path:        path,
					Methods:     []string{method},
					Description: description,
					Policies:    policies,
				})
			}
		}
	}

	metadata := map[string]any{
		"title":          "",
		"openapiVersion": doc.OpenAPI,
	}
	if doc.Info != nil {
		metadata["title"] = doc.Info.Title
		if doc.Info.Description != "" {
			metadata["description"] = doc.Info.Description
		}
	}

	return &models.APIDefinition{
		Name:     opts.Name,
		Version:  version,
		BasePath: basePath,
		Upstream: upstreamFromServerURL(opts.Name, serverURL),
		Routes:   routes,
		Policies: globalPolicies,
		Metadata: metadata,
	}, warnings, nil
}

// basePathFromServerURL extracts the path component of the first server URL.
// Absolute URLs contribute their path, server paths like "/v1" pass through,
// and anything else falls back to "/".
func basePathFromServerURL(raw string) string {
	if raw == "" {
		return "/"
	}
	if u, err := url.Parse(raw); err == nil && u.IsAbs() && u.Host != "" {
		if u.Path == "" {
			return "/"
		}
		return u.Path
	}
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	return "/"
}

// upstreamFromServerURL derives the upstream block from the first server
// URL: host and port from the URL (scheme default when no explicit port),
// TLS for https. A missing or unusable URL yields a placeholder backend the
// operator is expected to update.
func upstreamFromServerURL(name, raw string) models.UpstreamConfig {
	fallback := models.UpstreamConfig{
		Service:       name + "-backend",
		Endpoints:     []models.UpstreamEndpoint{{Host: "backend.example.com", Port: 80, Weight: 100}},
		TLS:           false,
		LoadBalancing: string(models.LbPolicyRoundRobin),
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return fallback
	}

	port := uint64(constants.HTTPDefaultPort)
	if u.Scheme == constants.SchemeHTTPS {
		port = constants.HTTPSDefaultPort
	}
	if p := u.Port(); p != "" {
		parsed, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return fallback
		}
		port = parsed
	}

	return models.UpstreamConfig{
		Service:       name + "-backend",
		Endpoints:     []models.UpstreamEndpoint{{Host: u.Hostname(), Port: uint32(port), Weight: 100}},
		TLS:           u.Scheme == constants.SchemeHTTPS,
		LoadBalancing: string(models.LbPolicyRoundRobin),
	}
}

// extractFlowplanePolicies reads the x-flowplane-* extensions of one
// operation. It returns nil when no policy was extracted so empty bundles
// never attach to a route.
func extractFlowplanePolicies(extensions map[string]any) (*models.APIPolicies, []string) {
	var warnings []string
	policies := &models.APIPolicies{}

	if raw, ok := extensions["x-flowplane-ratelimit"]; ok {
		if rl, ok := rateLimitFromExtension(raw); ok {
			policies.RateLimit = rl
		} else {
			warnings = append(warnings, "Invalid x-flowplane-ratelimit format")
		}
	}

	if raw, ok := extensions["x-flowplane-jwt-auth"]; ok {
		policies.Authentication = authenticationFromExtension(raw)
	}

	if raw, ok := extensions["x-flowplane-cors"]; ok {
		policies.Cors = corsFromExtension(raw)
	}

	keys := make([]string, 0, len(extensions))
	for key := range extensions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, "x-flowplane-") {
			continue
		}
		if _, known := knownFlowplaneTags[key]; !known {
			warnings = append(warnings, fmt.Sprintf("Unknown flowplane tag: %s", key))
		}
	}

	if policies.RateLimit == nil && policies.Authentication == nil && policies.Cors == nil {
		return nil, warnings
	}
	return policies, warnings
}

// rateLimitFromExtension requires an integer requests count and a string
// interval; keyBy is optional.
func rateLimitFromExtension(raw any) (*models.RateLimitPolicy, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	requests, ok := extensionUint(obj["requests"])
	if !ok {
		return nil, false
	}
	interval, ok := obj["interval"].(string)
	if !ok {
		return nil, false
	}

	policy := &models.RateLimitPolicy{Requests: uint32(requests), Interval: interval}
	if keyBy, ok := obj["keyBy"].(string); ok {
		policy.KeyBy = &keyBy
	}
	return policy, true
}

func authenticationFromExtension(raw any) *models.AuthenticationPolicy {
	obj, _ := raw.(map[string]any)

	required := true
	if v, ok := obj["required"].(bool); ok {
		required = v
	}

	return &models.AuthenticationPolicy{
		Type:     "jwt",
		Required: required,
		Config: map[string]any{
			"issuer":   obj["issuer"],
			"audience": obj["audience"],
		},
	}
}

func corsFromExtension(raw any) *models.CorsPolicy {
	obj, _ := raw.(map[string]any)

	policy := &models.CorsPolicy{
		Origins: []string{"*"},
		Methods: []string{"GET", "POST"},
		Headers: []string{"Content-Type", "Authorization"},
	}
	if origins, ok := extensionStrings(obj["origins"]); ok {
		policy.Origins = origins
	}
	if methods, ok := extensionStrings(obj["methods"]); ok {
		policy.Methods = methods
	}
	if headers, ok := extensionStrings(obj["headers"]); ok {
		policy.Headers = headers
	}
	if v, ok := obj["allowCredentials"].(bool); ok {
		policy.AllowCredentials = v
	}
	if v, ok := extensionUint(obj["maxAge"]); ok {
		policy.MaxAge = &v
	}
	return policy
}

// extensionStrings accepts a JSON array and keeps its string members.
func extensionStrings(raw any) ([]string, bool) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// extensionUint accepts the number representations a decoded extension can
// carry, rejecting negatives and fractions.
func extensionUint(raw any) (uint64, bool) {
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
