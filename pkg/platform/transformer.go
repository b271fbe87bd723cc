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

// Package platform lowers the Platform API abstractions (API definitions,
// services, OpenAPI documents) into the native resource specs the xDS layer
// serves, and projects native clusters back into the Platform service view.
// Every transformation here is a pure function of its inputs so that the
// same definition always derives byte-identical native resources.
package platform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
)

// ClusterName returns the derived cluster name for an API definition.
func ClusterName(apiID string) string {
	return apiID + constants.ClusterNameSuffix
}

// RouteConfigName returns the derived route configuration name for an API
// definition.
func RouteConfigName(apiID string) string {
	return apiID + constants.RouteConfigNameSuffix
}

// ListenerName returns the listener identifier reserved for an API
// definition. No listener resource is materialized for it; definitions share
// the default gateway listener.
func ListenerName(apiID string) string {
	return apiID + constants.ListenerNameSuffix
}

// IsPlatformServiceCluster reports whether a native cluster looks like it
// backs a Platform service, so the service list can project it.
func IsPlatformServiceCluster(clusterName string) bool {
	return strings.HasSuffix(clusterName, constants.ClusterNameSuffix) ||
		strings.Contains(clusterName, "-service")
}

// ClusterNameToServiceName strips the derived-cluster suffix, recovering the
// service name a Platform cluster was created under.
func ClusterNameToServiceName(clusterName string) string {
	return strings.TrimSuffix(clusterName, constants.ClusterNameSuffix)
}

// IsPlatformAPIRoutes reports whether a native route configuration was
// derived from a Platform API definition.
func IsPlatformAPIRoutes(routeConfigName string) bool {
	return strings.HasSuffix(routeConfigName, constants.RouteConfigNameSuffix) ||
		strings.Contains(routeConfigName, "-api-")
}

// APIDefinitionToClusterSpec derives the upstream cluster for an API
// definition: one endpoint per upstream address, TLS and load balancing from
// the upstream block, and the connect timeout from the global request
// timeout policy when one is set.
func APIDefinitionToClusterSpec(apiID string, api *models.APIDefinition) *models.ClusterSpec {
	endpoints := make([]models.EndpointSpec, 0, len(api.Upstream.Endpoints))
	for _, ep := range api.Upstream.Endpoints {
		endpoints = append(endpoints, models.EndpointSpec{Host: ep.Host, Port: ep.Port})
	}

	useTLS := api.Upstream.TLS
	lbPolicy := lbPolicyFromString(api.Upstream.LoadBalancing)

	return &models.ClusterSpec{
		Name:                  ClusterName(apiID),
		ServiceName:           api.Upstream.Service,
		Endpoints:             endpoints,
		ConnectTimeoutSeconds: requestTimeout(api.Policies),
		UseTLS:                &useTLS,
		LbPolicy:              &lbPolicy,
	}
}

// APIDefinitionToRouteConfigSpec derives the route configuration for an API
// definition: a single wildcard virtual host named after the API, one prefix
// rule per declared route (basePath concatenated with the route path), each
// forwarding to the upstream service with the merged request timeout. CORS
// policies become per-scope filter overrides, global ones on the virtual
// host and per-route ones on the rule.
func APIDefinitionToRouteConfigSpec(apiID string, api *models.APIDefinition) *models.RouteConfigSpec {
	rules := make([]models.RouteRuleSpec, 0, len(api.Routes))
	for _, route := range api.Routes {
		merged := route.Policies.MergedOver(api.Policies)

		rule := models.RouteRuleSpec{
			Match: models.RouteMatchSpec{
				Path: models.PathMatch{
					Type:  models.PathMatchPrefix,
					// Literal concatenation: "/api/v1/users" + "/" keeps
					// its trailing slash, distinguishing the collection
					// prefix from the bare basePath.
					Value: api.BasePath + route.Path,
				},
			},
			Action: models.RouteAction{
				Type: models.RouteActionForward,
				Forward: &models.ForwardAction{
					Cluster:        api.Upstream.Service,
					TimeoutSeconds: requestTimeout(merged),
				},
			},
		}
		if route.Description != nil {
			name := *route.Description
			rule.Name = &name
		}
		if route.Policies != nil && route.Policies.Cors != nil {
			rule.TypedPerFilterConfig = models.ScopedFilterConfigs{
				constants.FilterCORS: {Cors: corsFilterConfig(route.Policies.Cors)},
			}
		}
		rules = append(rules, rule)
	}

	vhost := models.VirtualHostSpec{
		Name:    api.Name,
		Domains: []string{"*"},
		Routes:  rules,
	}
	if api.Policies != nil && api.Policies.Cors != nil {
		vhost.TypedPerFilterConfig = models.ScopedFilterConfigs{
			constants.FilterCORS: {Cors: corsFilterConfig(api.Policies.Cors)},
		}
	}

	return &models.RouteConfigSpec{
		Name:         RouteConfigName(apiID),
		VirtualHosts: []models.VirtualHostSpec{vhost},
	}
}

// ServiceToClusterSpec lowers a Platform service into the native cluster
// that carries it. The cluster keeps the service name unchanged; endpoint
// weights are not representable on a STRICT_DNS cluster and are dropped.
func ServiceToClusterSpec(service *models.ServiceDefinition) *models.ClusterSpec {
	endpoints := make([]models.EndpointSpec, 0, len(service.Endpoints))
	for _, ep := range service.Endpoints {
		endpoints = append(endpoints, models.EndpointSpec{Host: ep.Host, Port: ep.Port})
	}

	connectTimeout := uint64(5)
	useTLS := false
	lbPolicy := service.LoadBalancing.ToLbPolicy()

	spec := &models.ClusterSpec{
		Name:                  service.Name,
		ServiceName:           service.Name,
		Endpoints:             endpoints,
		ConnectTimeoutSeconds: &connectTimeout,
		UseTLS:                &useTLS,
		LbPolicy:              &lbPolicy,
	}

	if hc := service.HealthCheck; hc != nil {
		interval := uint64(hc.Interval)
		timeout := uint64(hc.Timeout)
		healthy := hc.HealthyThreshold
		unhealthy := hc.UnhealthyThreshold
		spec.HealthChecks = []models.HealthCheckSpec{{
			Type: models.HealthCheckTypeHTTP,
			HTTP: &models.HTTPHealthCheckSpec{
				Path:               hc.Path,
				IntervalSeconds:    &interval,
				TimeoutSeconds:     &timeout,
				HealthyThreshold:   &healthy,
				UnhealthyThreshold: &unhealthy,
			},
		}}
	}

	if cb := service.CircuitBreaker; cb != nil {
		spec.CircuitBreakers = &models.CircuitBreakersSpec{
			Default: &models.CircuitBreakerThresholdsSpec{
				MaxConnections:     cb.MaxConnections,
				MaxPendingRequests: cb.MaxPendingRequests,
				MaxRequests:        cb.MaxRequests,
				MaxRetries:         cb.MaxRetries,
			},
		}
	}

	if od := service.OutlierDetection; od != nil {
		outlier := &models.OutlierDetectionSpec{
			Consecutive5xx:     od.Consecutive5xx,
			MaxEjectionPercent: od.MaxEjectionPercent,
		}
		if od.IntervalMs != nil {
			v := *od.IntervalMs / 1000
			outlier.IntervalSeconds = &v
		}
		if od.BaseEjectionTimeMs != nil {
			v := *od.BaseEjectionTimeMs / 1000
			outlier.BaseEjectionTimeSeconds = &v
		}
		spec.OutlierDetection = outlier
	}

	return spec
}

// ClusterSpecToService projects a native cluster back into the Platform
// service view. The projection is lossy: endpoint weights come back as 100,
// load balancing tunables collapse to the policy name, and health check
// fields missing on the cluster take the Platform defaults.
func ClusterSpecToService(spec *models.ClusterSpec) *models.ServiceResponse {
	endpoints := make([]models.ServiceEndpoint, 0, len(spec.Endpoints))
	for _, ep := range spec.Endpoints {
		endpoints = append(endpoints, models.ServiceEndpoint{Host: ep.Host, Port: ep.Port, Weight: 100})
	}

	resp := &models.ServiceResponse{
		Name:          spec.EffectiveServiceName(),
		ClusterID:     spec.Name,
		Endpoints:     endpoints,
		LoadBalancing: models.LoadBalancingFromLbPolicy(spec.EffectiveLbPolicy()),
	}

	if len(spec.HealthChecks) > 0 {
		resp.HealthCheck = serviceHealthCheck(spec.HealthChecks[0])
	}

	if cb := spec.CircuitBreakers; cb != nil {
		thresholds := cb.Default
		if thresholds == nil {
			thresholds = cb.High
		}
		if thresholds != nil {
			resp.CircuitBreaker = &models.ServiceCircuitBreaker{
				MaxRequests:        thresholds.MaxRequests,
				MaxPendingRequests: thresholds.MaxPendingRequests,
				MaxConnections:     thresholds.MaxConnections,
				MaxRetries:         thresholds.MaxRetries,
			}
		}
	}

	if od := spec.OutlierDetection; od != nil {
		outlier := &models.ServiceOutlierDetection{
			Consecutive5xx:     od.Consecutive5xx,
			MaxEjectionPercent: od.MaxEjectionPercent,
		}
		if od.IntervalSeconds != nil {
			v := *od.IntervalSeconds * 1000
			outlier.IntervalMs = &v
		}
		if od.BaseEjectionTimeSeconds != nil {
			v := *od.BaseEjectionTimeSeconds * 1000
			outlier.BaseEjectionTimeMs = &v
		}
		resp.OutlierDetection = outlier
	}

	return resp
}

// serviceHealthCheck maps one native health check to the Platform shape.
// TCP checks surface with the default path since they probe no URL.
func serviceHealthCheck(hc models.HealthCheckSpec) *models.ServiceHealthCheck {
	out := &models.ServiceHealthCheck{
		Path:               "/",
		Interval:           10,
		Timeout:            3,
		HealthyThreshold:   2,
		UnhealthyThreshold: 2,
	}
	switch hc.Type {
	case models.HealthCheckTypeHTTP:
		if hc.HTTP == nil {
			return out
		}
		if hc.HTTP.Path != "" {
			out.Path = hc.HTTP.Path
		}
		if hc.HTTP.IntervalSeconds != nil {
			out.Interval = uint32(*hc.HTTP.IntervalSeconds)
		}
		if hc.HTTP.TimeoutSeconds != nil {
			out.Timeout = uint32(*hc.HTTP.TimeoutSeconds)
		}
		if hc.HTTP.HealthyThreshold != nil {
			out.HealthyThreshold = *hc.HTTP.HealthyThreshold
		}
		if hc.HTTP.UnhealthyThreshold != nil {
			out.UnhealthyThreshold = *hc.HTTP.UnhealthyThreshold
		}
	case models.HealthCheckTypeTCP:
		if hc.TCP == nil {
			return out
		}
		if hc.TCP.IntervalSeconds != nil {
			out.Interval = uint32(*hc.TCP.IntervalSeconds)
		}
		if hc.TCP.TimeoutSeconds != nil {
			out.Timeout = uint32(*hc.TCP.TimeoutSeconds)
		}
		if hc.TCP.HealthyThreshold != nil {
			out.HealthyThreshold = *hc.TCP.HealthyThreshold
		}
		if hc.TCP.UnhealthyThreshold != nil {
			out.UnhealthyThreshold = *hc.TCP.UnhealthyThreshold
		}
	}
	return out
}

// PoliciesToFilters renders an API definition's policies as Envoy HTTP
// filter configurations keyed by filter name, the shapes a dedicated
// listener would install. Rate limiting targets the external rate limit
// service, CORS becomes the cors filter config, and a JWT authentication
// policy becomes a single-provider jwt_authn config guarding every path.
func PoliciesToFilters(policies *models.APIPolicies) map[string]any {
	filters := map[string]any{}
	if policies == nil {
		return filters
	}

	if rl := policies.RateLimit; rl != nil {
		filters[constants.FilterRateLimit] = map[string]any{
			"domain":       "flowplane",
			"stage":        0,
			"request_type": "both",
			"timeout":      "0.025s",
			"rate_limit_service": map[string]any{
				"transport_api_version": "V3",
				"grpc_service": map[string]any{
					"envoy_grpc": map[string]any{
						"cluster_name": "rate_limit_cluster",
					},
				},
			},
			"descriptors": []any{
				map[string]any{
					"entries": []any{
						map[string]any{
							"key":   "rate_limit",
							"value": fmt.Sprintf("%d/%s", rl.Requests, rl.Interval),
						},
					},
				},
			},
		}
	}

	if cors := policies.Cors; cors != nil {
		originMatches := make([]any, 0, len(cors.Origins))
		for _, origin := range cors.Origins {
			originMatches = append(originMatches, map[string]any{"exact": origin})
		}
		cfg := map[string]any{
			"allow_origin_string_match": originMatches,
			"allow_methods":             strings.Join(cors.Methods, ", "),
			"allow_headers":             strings.Join(cors.Headers, ", "),
			"allow_credentials":         cors.AllowCredentials,
		}
		if cors.MaxAge != nil {
			cfg["max_age"] = strconv.FormatUint(*cors.MaxAge, 10)
		}
		filters[constants.FilterCORS] = cfg
	}

	if auth := policies.Authentication; auth != nil && auth.Type == "jwt" {
		var providerConfig any = map[string]any{}
		if auth.Config != nil {
			providerConfig = auth.Config
		}
		requires := map[string]any{}
		if auth.Required {
			requires["provider_name"] = "provider"
		}
		filters[constants.FilterJWTAuthn] = map[string]any{
			"providers": map[string]any{"provider": providerConfig},
			"rules": []any{
				map[string]any{
					"match":    map[string]any{"prefix": "/"},
					"requires": requires,
				},
			},
		}
	}

	return filters
}

// requestTimeout extracts the request timeout from a policy bundle, copying
// the value so derived specs do not alias the definition.
func requestTimeout(policies *models.APIPolicies) *uint64 {
	if policies == nil || policies.Timeout == nil || policies.Timeout.Request == nil {
		return nil
	}
	v := *policies.Timeout.Request
	return &v
}

// corsFilterConfig maps the Platform CORS policy onto the native filter
// override shape.
func corsFilterConfig(p *models.CorsPolicy) *models.CorsFilterConfig {
	allowCredentials := p.AllowCredentials
	return &models.CorsFilterConfig{
		AllowOrigins:     p.Origins,
		AllowMethods:     p.Methods,
		AllowHeaders:     p.Headers,
		MaxAge:           p.MaxAge,
		AllowCredentials: &allowCredentials,
	}
}

// lbPolicyFromString parses an upstream load balancing name
// case-insensitively, defaulting to ROUND_ROBIN for anything unknown.
func lbPolicyFromString(raw string) models.LbPolicy {
	switch policy := models.LbPolicy(strings.ToUpper(raw)); policy {
	case models.LbPolicyLeastRequest, models.LbPolicyRandom,
		models.LbPolicyRingHash, models.LbPolicyMaglev:
		return policy
	default:
		return models.LbPolicyRoundRobin
	}
}
