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

package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowplane/flowplane/pkg/models"
)

// policyBlockSchema constrains the Platform policy block. Typed decoding
// already fixes the member shapes; the schema adds the value constraints
// the types cannot express, such as required members and lower bounds.
var policyBlockSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rateLimit": map[string]any{
			"type":     "object",
			"required": []any{"requests", "interval"},
			"properties": map[string]any{
				"requests": map[string]any{"type": "integer", "minimum": 1},
				"interval": map[string]any{"type": "string", "minLength": 1},
				"keyBy":    map[string]any{"type": "string"},
			},
		},
		"authentication": map[string]any{
			"type":     "object",
			"required": []any{"type"},
			"properties": map[string]any{
				"type":     map[string]any{"type": "string", "minLength": 1},
				"required": map[string]any{"type": "boolean"},
			},
		},
		"authorization": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"roles":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"permissions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"cors": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origins":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"methods":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"headers":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"allowCredentials": map[string]any{"type": "boolean"},
				"maxAge":           map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"circuitBreaker": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"maxRequests":       map[string]any{"type": "integer", "minimum": 0},
				"intervalMs":        map[string]any{"type": "integer", "minimum": 0},
				"consecutiveErrors": map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"retry": map[string]any{
			"type":     "object",
			"required": []any{"attempts"},
			"properties": map[string]any{
				"attempts":       map[string]any{"type": "integer", "minimum": 1},
				"backoff":        map[string]any{"type": "string", "minLength": 1},
				"initialDelayMs": map[string]any{"type": "integer", "minimum": 0},
			},
		},
		"timeout": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{"type": "integer", "minimum": 0},
				"idle":    map[string]any{"type": "integer", "minimum": 0},
			},
		},
	},
}

// ValidateAPIDefinition checks a Platform API definition. Field constraints
// run against the decoded definition; the policy blocks are re-checked
// against policyBlockSchema from the raw document, where their pre-decode
// shape is still visible. doc may be nil when no raw form exists, e.g. for
// definitions synthesized from an OpenAPI import.
func ValidateAPIDefinition(doc []byte, def *models.APIDefinition) error {
	if def.Name == "" || len(def.Name) > 100 {
		return newError("name", "API name must be 1-100 characters")
	}
	if def.Version == "" || len(def.Version) > 50 {
		return newError("version", "API version must be 1-50 characters")
	}
	if def.BasePath == "" || len(def.BasePath) > 255 {
		return newError("basePath", "Base path must be 1-255 characters")
	}

	if def.Upstream.Service == "" || len(def.Upstream.Service) > 100 {
		return newError("upstream.service", "Upstream service name must be 1-100 characters")
	}
	if len(def.Upstream.Endpoints) == 0 {
		return newError("upstream.endpoints", "At least one upstream endpoint is required")
	}
	for i, endpoint := range def.Upstream.Endpoints {
		if strings.TrimSpace(endpoint.Host) == "" {
			return newError(fmt.Sprintf("upstream.endpoints[%d].host", i), "Endpoint host is required")
		}
		if err := validatePort(fmt.Sprintf("upstream.endpoints[%d].port", i), endpoint.Port); err != nil {
			return err
		}
	}

	if len(def.Routes) == 0 {
		return newError("routes", "At least one route is required")
	}
	for i, route := range def.Routes {
		if route.Path == "" || len(route.Path) > 255 {
			return newError(fmt.Sprintf("routes[%d].path", i), "Route path must be 1-255 characters")
		}
		if len(route.Methods) == 0 {
			return newError(fmt.Sprintf("routes[%d].methods", i), "At least one HTTP method is required")
		}
	}

	return validateDocumentPolicies(doc)
}

// ValidateServiceDefinition checks a Platform service definition. The
// derived cluster inherits the service name, so the name also has to pass
// the stricter checks in ValidateClusterSpec; those run when the cluster
// spec is built.
func ValidateServiceDefinition(def *models.ServiceDefinition) error {
	if def.Name == "" || len(def.Name) > 255 {
		return newError("name", "Service name must be 1-255 characters")
	}
	if len(def.Endpoints) == 0 {
		return newError("endpoints", "At least one endpoint is required")
	}
	for i, endpoint := range def.Endpoints {
		if strings.TrimSpace(endpoint.Host) == "" {
			return newError(fmt.Sprintf("endpoints[%d].host", i), "Endpoint host is required")
		}
		if err := validatePort(fmt.Sprintf("endpoints[%d].port", i), endpoint.Port); err != nil {
			return err
		}
		if endpoint.Weight < 1 || endpoint.Weight > 100 {
			return newError(fmt.Sprintf("endpoints[%d].weight", i), "Endpoint weight must be between 1 and 100")
		}
	}
	return nil
}

// validateDocumentPolicies runs the schema pass over the global policy
// block and every per-route block found in the raw document.
func validateDocumentPolicies(doc []byte) error {
	if len(doc) == 0 {
		return nil
	}

	var blocks struct {
		Policies json.RawMessage `json:"policies"`
		Routes   []struct {
			Policies json.RawMessage `json:"policies"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(doc, &blocks); err != nil {
		// The document already decoded into the typed definition, so a
		// failure here means the lenient view disagrees on shape.
		return newError("", fmt.Sprintf("Malformed definition document: %v", err))
	}

	if err := validatePolicyBlock("policies", blocks.Policies); err != nil {
		return err
	}
	for i, route := range blocks.Routes {
		if err := validatePolicyBlock(fmt.Sprintf("routes[%d].policies", i), route.Policies); err != nil {
			return err
		}
	}
	return nil
}

func validatePolicyBlock(fieldPath string, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(policyBlockSchema), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return newError(fieldPath, fmt.Sprintf("Failed to validate policies: %v", err))
	}
	if result.Valid() {
		return nil
	}

	// The error field stays on the policy block; the schema's inner
	// location goes into the message, so callers can match on the block
	// path regardless of which member violated.
	violation := result.Errors()[0]
	message := violation.Description()
	if field := violation.Field(); field != "(root)" {
		message = strings.TrimPrefix(field, "(root).") + ": " + message
	}
	return newError(fieldPath, message)
}
