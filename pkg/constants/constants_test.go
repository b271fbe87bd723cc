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

package constants

import "testing"

// TestConstants verifies the load-bearing constant values other layers
// depend on verbatim
func TestConstants(t *testing.T) {
	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		// Default gateway resources
		{"DefaultGatewayCluster", DefaultGatewayCluster, "default-gateway-cluster"},
		{"DefaultGatewayRoutes", DefaultGatewayRoutes, "default-gateway-routes"},
		{"DefaultGatewayListener", DefaultGatewayListener, "default-gateway-listener"},

		// Platform naming conventions
		{"ClusterNameSuffix", ClusterNameSuffix, "-cluster"},
		{"RouteConfigNameSuffix", RouteConfigNameSuffix, "-routes"},
		{"ListenerNameSuffix", ListenerNameSuffix, "-listener"},

		// Token format
		{"TokenPrefix", TokenPrefix, "fp_"},
		{"TokenSecretBytes", TokenSecretBytes, 32},

		// Filter names
		{"FilterLocalRateLimit", FilterLocalRateLimit, "envoy.filters.http.local_ratelimit"},
		{"FilterCORS", FilterCORS, "envoy.filters.http.cors"},
		{"FilterJWTAuthn", FilterJWTAuthn, "envoy.filters.http.jwt_authn"},
		{"FilterRateLimit", FilterRateLimit, "envoy.filters.http.ratelimit"},

		// Envoy extension names
		{"EnvoyTLSTransportSocket", EnvoyTLSTransportSocket, "envoy.transport_sockets.tls"},
		{"EnvoyURITemplateMatcher", EnvoyURITemplateMatcher, "envoy.path.match.uri_template.uri_template_matcher"},
		{"EnvoyURITemplateRewriter", EnvoyURITemplateRewriter, "envoy.path.rewrite.uri_template.uri_template_rewriter"},

		// Network Configuration
		{"HTTPDefaultPort", HTTPDefaultPort, 80},
		{"HTTPSDefaultPort", HTTPSDefaultPort, 443},

		// URL Schemes
		{"SchemeHTTP", SchemeHTTP, "http"},
		{"SchemeHTTPS", SchemeHTTPS, "https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestAllScopesCoverReadAndWritePairs(t *testing.T) {
	seen := make(map[string]bool, len(AllScopes))
	for _, scope := range AllScopes {
		if seen[scope] {
			t.Errorf("scope %q listed twice", scope)
		}
		seen[scope] = true
	}

	for _, required := range []string{
		ScopeClustersRead, ScopeClustersWrite,
		ScopeRouteConfigsRead, ScopeRouteConfigsWrite,
		ScopeListenersRead, ScopeListenersWrite,
		ScopeApisRead, ScopeApisWrite,
		ScopeServicesRead, ScopeServicesWrite,
		ScopeImportWrite, ScopeGatewaysImport,
		ScopeTokensRead, ScopeTokensWrite,
	} {
		if !seen[required] {
			t.Errorf("AllScopes missing %q", required)
		}
	}
}
