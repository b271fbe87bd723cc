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

const (
	// Resource type identifiers used in storage and audit records
	ResourceTypeCluster       = "cluster"
	ResourceTypeRouteConfig   = "route_config"
	ResourceTypeListener      = "listener"
	ResourceTypeAPIDefinition = "api_definition"
	ResourceTypeToken         = "token"

	// System-owned default gateway resources seeded at startup
	DefaultGatewayCluster  = "default-gateway-cluster"
	DefaultGatewayRoutes   = "default-gateway-routes"
	DefaultGatewayListener = "default-gateway-listener"
	DefaultGatewayService  = "default-gateway"

	// Naming conventions binding Platform definitions to their derived
	// native resources. Consumers depend on these suffixes verbatim.
	ClusterNameSuffix     = "-cluster"
	RouteConfigNameSuffix = "-routes"
	ListenerNameSuffix    = "-listener"

	// Personal access token format
	TokenPrefix      = "fp_"
	TokenSecretBytes = 32

	// Envoy HTTP filter names accepted in scoped per-route overrides and
	// emitted by the Platform policy lowering
	FilterLocalRateLimit = "envoy.filters.http.local_ratelimit"
	FilterCORS           = "envoy.filters.http.cors"
	FilterJWTAuthn       = "envoy.filters.http.jwt_authn"
	FilterRateLimit      = "envoy.filters.http.ratelimit"

	// Envoy extension names resolved during translation
	EnvoyTLSTransportSocket  = "envoy.transport_sockets.tls"
	EnvoyURITemplateMatcher  = "envoy.path.match.uri_template.uri_template_matcher"
	EnvoyURITemplateRewriter = "envoy.path.rewrite.uri_template.uri_template_rewriter"

	// Network Configuration
	HTTPDefaultPort  = 80
	HTTPSDefaultPort = 443

	// URL Schemes
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	// Token scopes enforced by the API router
	ScopeClustersRead      = "clusters:read"
	ScopeClustersWrite     = "clusters:write"
	ScopeRouteConfigsRead  = "route-configs:read"
	ScopeRouteConfigsWrite = "route-configs:write"
	ScopeRoutesReadLegacy  = "routes:read"
	ScopeRoutesWriteLegacy = "routes:write"
	ScopeListenersRead     = "listeners:read"
	ScopeListenersWrite    = "listeners:write"
	ScopeApisRead          = "apis:read"
	ScopeApisWrite         = "apis:write"
	ScopeServicesRead      = "services:read"
	ScopeServicesWrite     = "services:write"
	ScopeImportWrite       = "import:write"
	ScopeGatewaysImport    = "gateways:import"
	ScopeTokensRead        = "tokens:read"
	ScopeTokensWrite       = "tokens:write"
)

// AllScopes lists every scope the API understands. The bootstrap admin
// token is granted all of them.
var AllScopes = []string{
	ScopeClustersRead,
	ScopeClustersWrite,
	ScopeRouteConfigsRead,
	ScopeRouteConfigsWrite,
	ScopeRoutesReadLegacy,
	ScopeRoutesWriteLegacy,
	ScopeListenersRead,
	ScopeListenersWrite,
	ScopeApisRead,
	ScopeApisWrite,
	ScopeServicesRead,
	ScopeServicesWrite,
	ScopeImportWrite,
	ScopeGatewaysImport,
	ScopeTokensRead,
	ScopeTokensWrite,
}
