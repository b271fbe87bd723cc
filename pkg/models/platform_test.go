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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamConfigDefaults(t *testing.T) {
	payload := `{
		"service": "user-service",
		"endpoints": [{"host": "user-service.internal", "port": 8080}]
	}`

	var upstream UpstreamConfig
	require.NoError(t, json.Unmarshal([]byte(payload), &upstream))

	assert.Equal(t, "user-service", upstream.Service)
	assert.False(t, upstream.TLS)
	assert.Equal(t, "ROUND_ROBIN", upstream.LoadBalancing)
	require.Len(t, upstream.Endpoints, 1)
	assert.Equal(t, uint32(100), upstream.Endpoints[0].Weight)
}

func TestUpstreamEndpointKeepsExplicitWeight(t *testing.T) {
	var ep UpstreamEndpoint
	require.NoError(t, json.Unmarshal([]byte(`{"host": "a", "port": 80, "weight": 50}`), &ep))

	assert.Equal(t, uint32(50), ep.Weight)
}

func TestAuthenticationPolicyRequiredDefaultsToTrue(t *testing.T) {
	var policy AuthenticationPolicy
	require.NoError(t, json.Unmarshal([]byte(`{"type": "jwt"}`), &policy))
	assert.True(t, policy.Required)

	require.NoError(t, json.Unmarshal([]byte(`{"type": "jwt", "required": false}`), &policy))
	assert.False(t, policy.Required)
}

func TestRetryPolicyBackoffDefaultsToExponential(t *testing.T) {
	var policy RetryPolicy
	require.NoError(t, json.Unmarshal([]byte(`{"attempts": 3}`), &policy))

	assert.Equal(t, uint32(3), policy.Attempts)
	assert.Equal(t, "exponential", policy.Backoff)
}

func TestAPIPoliciesMergedOver(t *testing.T) {
	global := &APIPolicies{
		RateLimit: &RateLimitPolicy{Requests: 100, Interval: "1m"},
		Timeout:   &TimeoutPolicy{Request: uint64Ptr(30)},
	}
	route := &APIPolicies{
		RateLimit: &RateLimitPolicy{Requests: 10, Interval: "1s"},
	}

	merged := route.MergedOver(global)
	require.NotNil(t, merged)

	// Route-level rate limit wins, unset timeout inherits.
	assert.Equal(t, uint32(10), merged.RateLimit.Requests)
	require.NotNil(t, merged.Timeout)
	assert.Equal(t, uint64Ptr(30), merged.Timeout.Request)
}

func TestAPIPoliciesMergedOverNilSides(t *testing.T) {
	global := &APIPolicies{Timeout: &TimeoutPolicy{Request: uint64Ptr(30)}}

	var route *APIPolicies
	assert.Equal(t, global, route.MergedOver(global))

	route = &APIPolicies{RateLimit: &RateLimitPolicy{Requests: 5, Interval: "1s"}}
	assert.Equal(t, route, route.MergedOver(nil))
}

func TestLoadBalancingStrategyParsesCaseInsensitively(t *testing.T) {
	tests := []struct {
		raw      string
		expected LoadBalancingStrategy
	}{
		{`"round_robin"`, LoadBalancingRoundRobin},
		{`"ROUND_ROBIN"`, LoadBalancingRoundRobin},
		{`"Least_Request"`, LoadBalancingLeastRequest},
		{`"maglev"`, LoadBalancingMaglev},
	}

	for _, tt := range tests {
		var s LoadBalancingStrategy
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &s), "input %s", tt.raw)
		assert.Equal(t, tt.expected, s)
	}
}

func TestLoadBalancingStrategyRejectsUnknownValue(t *testing.T) {
	var s LoadBalancingStrategy
	err := json.Unmarshal([]byte(`"weighted_round_robin"`), &s)

	assert.Error(t, err)
}

func TestLoadBalancingStrategyMapsToLbPolicy(t *testing.T) {
	assert.Equal(t, LbPolicyRoundRobin, LoadBalancingRoundRobin.ToLbPolicy())
	assert.Equal(t, LbPolicyLeastRequest, LoadBalancingLeastRequest.ToLbPolicy())
	assert.Equal(t, LbPolicyRingHash, LoadBalancingRingHash.ToLbPolicy())

	assert.Equal(t, LoadBalancingMaglev, LoadBalancingFromLbPolicy(LbPolicyMaglev))
	assert.Equal(t, LoadBalancingRoundRobin, LoadBalancingFromLbPolicy(LbPolicy("CUSTOM")))
}

func TestServiceDefinitionDefaults(t *testing.T) {
	payload := `{
		"name": "payment-service",
		"endpoints": [{"host": "payment-1.internal", "port": 8080}]
	}`

	var service ServiceDefinition
	require.NoError(t, json.Unmarshal([]byte(payload), &service))

	assert.Equal(t, LoadBalancingRoundRobin, service.LoadBalancing)
	require.Len(t, service.Endpoints, 1)
	assert.Equal(t, uint32(100), service.Endpoints[0].Weight)
}

func TestServiceHealthCheckDefaults(t *testing.T) {
	var hc ServiceHealthCheck
	require.NoError(t, json.Unmarshal([]byte(`{"path": "/health"}`), &hc))

	assert.Equal(t, "/health", hc.Path)
	assert.Equal(t, uint32(10), hc.Interval)
	assert.Equal(t, uint32(3), hc.Timeout)
	assert.Equal(t, uint32(2), hc.HealthyThreshold)
	assert.Equal(t, uint32(2), hc.UnhealthyThreshold)
}

func TestServiceHealthCheckSerializesAllFields(t *testing.T) {
	var hc ServiceHealthCheck
	require.NoError(t, json.Unmarshal([]byte(`{"path": "/health"}`), &hc))

	encoded, err := json.Marshal(hc)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"path": "/health", "interval": 10, "timeout": 3, "healthyThreshold": 2, "unhealthyThreshold": 2}`,
		string(encoded))
}

func TestAPIDefinitionDecodesFullDocument(t *testing.T) {
	payload := `{
		"name": "users-api",
		"version": "1.0.0",
		"basePath": "/api/v1/users",
		"upstream": {
			"service": "user-service",
			"endpoints": [{"host": "user-service.internal", "port": 8080}]
		},
		"routes": [
			{"path": "/", "methods": ["GET", "POST"]},
			{"path": "/{id}", "methods": ["GET", "PUT", "DELETE"]}
		],
		"policies": {
			"rateLimit": {"requests": 100, "interval": "1m"},
			"authentication": {"type": "jwt", "config": {"issuer": "https://auth.example.com"}}
		}
	}`

	var def APIDefinition
	require.NoError(t, json.Unmarshal([]byte(payload), &def))

	assert.Equal(t, "users-api", def.Name)
	assert.Equal(t, "/api/v1/users", def.BasePath)
	require.Len(t, def.Routes, 2)
	assert.Equal(t, []string{"GET", "POST"}, def.Routes[0].Methods)
	require.NotNil(t, def.Policies)
	require.NotNil(t, def.Policies.RateLimit)
	assert.Equal(t, uint32(100), def.Policies.RateLimit.Requests)
	require.NotNil(t, def.Policies.Authentication)
	assert.True(t, def.Policies.Authentication.Required)
}
