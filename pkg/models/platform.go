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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// APIDefinition is the Platform API description of a gateway-fronted API.
// It lowers to one derived cluster and one derived route configuration.
type APIDefinition struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	BasePath string         `json:"basePath"`
	Upstream UpstreamConfig `json:"upstream"`
	Routes   []APIRoute     `json:"routes"`
	Policies *APIPolicies   `json:"policies,omitempty"`
	Metadata any            `json:"metadata,omitempty"`
}

// UpstreamConfig names the backend service an API definition fronts.
type UpstreamConfig struct {
	Service       string             `json:"service"`
	Endpoints     []UpstreamEndpoint `json:"endpoints"`
	TLS           bool               `json:"tls"`
	LoadBalancing string             `json:"loadBalancing"`
}

func (u *UpstreamConfig) UnmarshalJSON(data []byte) error {
	type alias UpstreamConfig
	out := alias{LoadBalancing: string(LbPolicyRoundRobin)}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*u = UpstreamConfig(out)
	return nil
}

// UpstreamEndpoint is one backend address with a traffic weight.
type UpstreamEndpoint struct {
	Host   string `json:"host"`
	Port   uint32 `json:"port"`
	Weight uint32 `json:"weight"`
}

func (e *UpstreamEndpoint) UnmarshalJSON(data []byte) error {
	type alias UpstreamEndpoint
	out := alias{Weight: 100}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*e = UpstreamEndpoint(out)
	return nil
}

// APIRoute is one exposed route of an API definition, relative to basePath.
type APIRoute struct {
	Path        string       `json:"path"`
	Methods     []string     `json:"methods"`
	Description *string      `json:"description,omitempty"`
	Policies    *APIPolicies `json:"policies,omitempty"`
}

// APIPolicies bundles the traffic policies attachable to an API definition
// or to a single route. Per-route values override the global ones
// element-wise; an absent field inherits.
type APIPolicies struct {
	RateLimit      *RateLimitPolicy      `json:"rateLimit,omitempty"`
	Authentication *AuthenticationPolicy `json:"authentication,omitempty"`
	Authorization  *AuthorizationPolicy  `json:"authorization,omitempty"`
	Cors           *CorsPolicy           `json:"cors,omitempty"`
	CircuitBreaker *CircuitBreakerPolicy `json:"circuitBreaker,omitempty"`
	Retry          *RetryPolicy          `json:"retry,omitempty"`
	Timeout        *TimeoutPolicy        `json:"timeout,omitempty"`
}

// MergedOver layers the receiver on top of parent: any field set here wins,
// anything unset inherits from parent. Either side may be nil.
func (p *APIPolicies) MergedOver(parent *APIPolicies) *APIPolicies {
	if p == nil {
		return parent
	}
	if parent == nil {
		return p
	}

	merged := *parent
	if p.RateLimit != nil {
		merged.RateLimit = p.RateLimit
	}
	if p.Authentication != nil {
		merged.Authentication = p.Authentication
	}
	if p.Authorization != nil {
		merged.Authorization = p.Authorization
	}
	if p.Cors != nil {
		merged.Cors = p.Cors
	}
	if p.CircuitBreaker != nil {
		merged.CircuitBreaker = p.CircuitBreaker
	}
	if p.Retry != nil {
		merged.Retry = p.Retry
	}
	if p.Timeout != nil {
		merged.Timeout = p.Timeout
	}
	return &merged
}

// RateLimitPolicy caps request volume, e.g. 100 requests per "1m".
type RateLimitPolicy struct {
	Requests uint32  `json:"requests"`
	Interval string  `json:"interval"`
	KeyBy    *string `json:"keyBy,omitempty"`
}

// AuthenticationPolicy describes how callers authenticate, e.g. jwt.
type AuthenticationPolicy struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Config   any    `json:"config,omitempty"`
}

func (a *AuthenticationPolicy) UnmarshalJSON(data []byte) error {
	type alias AuthenticationPolicy
	out := alias{Required: true}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*a = AuthenticationPolicy(out)
	return nil
}

// AuthorizationPolicy restricts callers by role or permission.
type AuthorizationPolicy struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// CorsPolicy configures cross-origin resource sharing.
type CorsPolicy struct {
	Origins          []string `json:"origins"`
	Methods          []string `json:"methods"`
	Headers          []string `json:"headers"`
	AllowCredentials bool     `json:"allowCredentials"`
	MaxAge           *uint64  `json:"maxAge,omitempty"`
}

// CircuitBreakerPolicy trips upstream calls after repeated failures.
type CircuitBreakerPolicy struct {
	MaxRequests       *uint32 `json:"maxRequests,omitempty"`
	IntervalMs        *uint64 `json:"intervalMs,omitempty"`
	ConsecutiveErrors *uint32 `json:"consecutiveErrors,omitempty"`
}

// RetryPolicy retries failed upstream calls.
type RetryPolicy struct {
	Attempts       uint32  `json:"attempts"`
	Backoff        string  `json:"backoff"`
	InitialDelayMs *uint64 `json:"initialDelayMs,omitempty"`
}

func (r *RetryPolicy) UnmarshalJSON(data []byte) error {
	type alias RetryPolicy
	out := alias{Backoff: "exponential"}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*r = RetryPolicy(out)
	return nil
}

// TimeoutPolicy bounds upstream request and idle times, in seconds.
type TimeoutPolicy struct {
	Request *uint64 `json:"request,omitempty"`
	Idle    *uint64 `json:"idle,omitempty"`
}

// APIDefinitionResponse is the Platform view of a stored API definition,
// including the identifiers of its derived native resources.
type APIDefinitionResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	BasePath      string         `json:"basePath"`
	Upstream      UpstreamConfig `json:"upstream"`
	Routes        []APIRoute     `json:"routes"`
	Policies      *APIPolicies   `json:"policies,omitempty"`
	RouteConfigID string         `json:"routeConfigId"`
	ListenerID    string         `json:"listenerId"`
	ClusterID     string         `json:"clusterId"`
	Metadata      any            `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// OpenAPIImportResponse is returned by the OpenAPI importer: the accepted
// definition plus any non-fatal warnings gathered during extraction.
type OpenAPIImportResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	BasePath  string         `json:"basePath"`
	Upstream  UpstreamConfig `json:"upstream"`
	Routes    []APIRoute     `json:"routes"`
	Policies  *APIPolicies   `json:"policies,omitempty"`
	Metadata  any            `json:"metadata,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LoadBalancingStrategy is the Platform-facing load balancing enum. Values
// are snake_case; parsing is case-insensitive.
type LoadBalancingStrategy string

const (
	LoadBalancingRoundRobin   LoadBalancingStrategy = "round_robin"
	LoadBalancingLeastRequest LoadBalancingStrategy = "least_request"
	LoadBalancingRandom       LoadBalancingStrategy = "random"
	LoadBalancingRingHash     LoadBalancingStrategy = "ring_hash"
	LoadBalancingMaglev       LoadBalancingStrategy = "maglev"
)

func (s *LoadBalancingStrategy) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch LoadBalancingStrategy(strings.ToLower(raw)) {
	case LoadBalancingRoundRobin, LoadBalancingLeastRequest, LoadBalancingRandom,
		LoadBalancingRingHash, LoadBalancingMaglev:
		*s = LoadBalancingStrategy(strings.ToLower(raw))
		return nil
	default:
		return fmt.Errorf("unknown load balancing strategy %q", raw)
	}
}

// ToLbPolicy maps the Platform enum to the canonical cluster policy.
func (s LoadBalancingStrategy) ToLbPolicy() LbPolicy {
	switch s {
	case LoadBalancingLeastRequest:
		return LbPolicyLeastRequest
	case LoadBalancingRandom:
		return LbPolicyRandom
	case LoadBalancingRingHash:
		return LbPolicyRingHash
	case LoadBalancingMaglev:
		return LbPolicyMaglev
	default:
		return LbPolicyRoundRobin
	}
}

// LoadBalancingFromLbPolicy maps a canonical cluster policy back to the
// Platform enum; unknown values fall back to round_robin.
func LoadBalancingFromLbPolicy(policy LbPolicy) LoadBalancingStrategy {
	switch policy {
	case LbPolicyLeastRequest:
		return LoadBalancingLeastRequest
	case LbPolicyRandom:
		return LoadBalancingRandom
	case LbPolicyRingHash:
		return LoadBalancingRingHash
	case LbPolicyMaglev:
		return LoadBalancingMaglev
	default:
		return LoadBalancingRoundRobin
	}
}

// ServiceDefinition is the Platform API description of a backend service.
// It lowers to a single cluster carrying the same name.
type ServiceDefinition struct {
	Name             string                   `json:"name"`
	Description      *string                  `json:"description,omitempty"`
	Endpoints        []ServiceEndpoint        `json:"endpoints"`
	LoadBalancing    LoadBalancingStrategy    `json:"loadBalancing"`
	HealthCheck      *ServiceHealthCheck      `json:"healthCheck,omitempty"`
	CircuitBreaker   *ServiceCircuitBreaker   `json:"circuitBreaker,omitempty"`
	OutlierDetection *ServiceOutlierDetection `json:"outlierDetection,omitempty"`
	Metadata         any                      `json:"metadata,omitempty"`
}

func (s *ServiceDefinition) UnmarshalJSON(data []byte) error {
	type alias ServiceDefinition
	out := alias{LoadBalancing: LoadBalancingRoundRobin}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*s = ServiceDefinition(out)
	return nil
}

// ServiceEndpoint is one backend address of a service.
type ServiceEndpoint struct {
	Host     string `json:"host"`
	Port     uint32 `json:"port"`
	Weight   uint32 `json:"weight"`
	Metadata any    `json:"metadata,omitempty"`
}

func (e *ServiceEndpoint) UnmarshalJSON(data []byte) error {
	type alias ServiceEndpoint
	out := alias{Weight: 100}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*e = ServiceEndpoint(out)
	return nil
}

// ServiceHealthCheck is the Platform health check shape. All fields carry
// defaults (path "/", 10s interval, 3s timeout, 2/2 thresholds) and every
// field is always serialized.
type ServiceHealthCheck struct {
	Path               string `json:"path"`
	Interval           uint32 `json:"interval"`
	Timeout            uint32 `json:"timeout"`
	HealthyThreshold   uint32 `json:"healthyThreshold"`
	UnhealthyThreshold uint32 `json:"unhealthyThreshold"`
}

func (h *ServiceHealthCheck) UnmarshalJSON(data []byte) error {
	type alias ServiceHealthCheck
	out := alias{Path: "/", Interval: 10, Timeout: 3, HealthyThreshold: 2, UnhealthyThreshold: 2}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*h = ServiceHealthCheck(out)
	return nil
}

// ServiceCircuitBreaker is the Platform circuit breaker shape.
type ServiceCircuitBreaker struct {
	MaxRequests        *uint32 `json:"maxRequests,omitempty"`
	MaxPendingRequests *uint32 `json:"maxPendingRequests,omitempty"`
	MaxConnections     *uint32 `json:"maxConnections,omitempty"`
	MaxRetries         *uint32 `json:"maxRetries,omitempty"`
	ConsecutiveErrors  *uint32 `json:"consecutiveErrors,omitempty"`
	IntervalMs         *uint64 `json:"intervalMs,omitempty"`
}

// ServiceOutlierDetection is the Platform outlier detection shape, with
// millisecond durations.
type ServiceOutlierDetection struct {
	Consecutive5xx     *uint32 `json:"consecutive5xx,omitempty"`
	IntervalMs         *uint64 `json:"intervalMs,omitempty"`
	BaseEjectionTimeMs *uint64 `json:"baseEjectionTimeMs,omitempty"`
	MaxEjectionPercent *uint32 `json:"maxEjectionPercent,omitempty"`
	MinHealthyPercent  *uint32 `json:"minHealthyPercent,omitempty"`
}

// ServiceResponse is the Platform view of a service backed by a cluster.
type ServiceResponse struct {
	Name             string                   `json:"name"`
	ClusterID        string                   `json:"clusterId"`
	Endpoints        []ServiceEndpoint        `json:"endpoints"`
	LoadBalancing    LoadBalancingStrategy    `json:"loadBalancing"`
	HealthCheck      *ServiceHealthCheck      `json:"healthCheck,omitempty"`
	CircuitBreaker   *ServiceCircuitBreaker   `json:"circuitBreaker,omitempty"`
	OutlierDetection *ServiceOutlierDetection `json:"outlierDetection,omitempty"`
	Metadata         any                      `json:"metadata,omitempty"`
}
