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
	"net"
	"strconv"
	"strings"
)

// LbPolicy identifies the load balancing policy applied to a cluster.
type LbPolicy string

const (
	LbPolicyRoundRobin   LbPolicy = "ROUND_ROBIN"
	LbPolicyLeastRequest LbPolicy = "LEAST_REQUEST"
	LbPolicyRandom       LbPolicy = "RANDOM"
	LbPolicyRingHash     LbPolicy = "RING_HASH"
	LbPolicyMaglev       LbPolicy = "MAGLEV"
)

// DnsLookupFamily restricts the address families resolved for cluster endpoints.
type DnsLookupFamily string

const (
	DnsLookupFamilyV4   DnsLookupFamily = "V4"
	DnsLookupFamilyV6   DnsLookupFamily = "V6"
	DnsLookupFamilyAuto DnsLookupFamily = "AUTO"
)

// ClusterSpec is the canonical representation of an upstream cluster. It is
// both the API payload shape and the form persisted in the clusters table.
type ClusterSpec struct {
	Name                  string                `json:"name"`
	ServiceName           string                `json:"serviceName,omitempty"`
	Endpoints             []EndpointSpec        `json:"endpoints"`
	ConnectTimeoutSeconds *uint64               `json:"connectTimeoutSeconds,omitempty"`
	UseTLS                *bool                 `json:"useTls,omitempty"`
	TLSServerName         *string               `json:"tlsServerName,omitempty"`
	DnsLookupFamily       *DnsLookupFamily      `json:"dnsLookupFamily,omitempty"`
	LbPolicy              *LbPolicy             `json:"lbPolicy,omitempty"`
	LeastRequest          *LeastRequestConfig   `json:"leastRequest,omitempty"`
	RingHash              *RingHashConfig       `json:"ringHash,omitempty"`
	Maglev                *MaglevConfig         `json:"maglev,omitempty"`
	CircuitBreakers       *CircuitBreakersSpec  `json:"circuitBreakers,omitempty"`
	HealthChecks          []HealthCheckSpec     `json:"healthChecks,omitempty"`
	OutlierDetection      *OutlierDetectionSpec `json:"outlierDetection,omitempty"`
}

// EffectiveLbPolicy returns the configured policy or ROUND_ROBIN.
func (c *ClusterSpec) EffectiveLbPolicy() LbPolicy {
	if c.LbPolicy == nil || *c.LbPolicy == "" {
		return LbPolicyRoundRobin
	}
	return *c.LbPolicy
}

// EffectiveServiceName returns the logical service label, defaulting to the
// cluster name when unset.
func (c *ClusterSpec) EffectiveServiceName() string {
	if c.ServiceName == "" {
		return c.Name
	}
	return c.ServiceName
}

// EndpointSpec is a single upstream address. It decodes from either an
// object {"host": ..., "port": ...} or the compact string form "host:port";
// it always encodes as an object.
type EndpointSpec struct {
	Host string `json:"host"`
	Port uint32 `json:"port"`
}

func (e *EndpointSpec) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var compact string
		if err := json.Unmarshal(data, &compact); err != nil {
			return err
		}
		host, portStr, err := net.SplitHostPort(compact)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: expected host:port", compact)
		}
		port, err := strconv.ParseUint(portStr, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid endpoint port %q: %w", portStr, err)
		}
		e.Host = host
		e.Port = uint32(port)
		return nil
	}

	type alias EndpointSpec
	var out alias
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*e = EndpointSpec(out)
	return nil
}

// Address renders the endpoint as "host:port".
func (e EndpointSpec) Address() string {
	return net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10))
}

// LeastRequestConfig tunes the LEAST_REQUEST policy.
type LeastRequestConfig struct {
	ChoiceCount *uint32 `json:"choiceCount,omitempty"`
}

// RingHashConfig tunes the RING_HASH policy.
type RingHashConfig struct {
	MinimumRingSize *uint64 `json:"minimumRingSize,omitempty"`
	MaximumRingSize *uint64 `json:"maximumRingSize,omitempty"`
}

// MaglevConfig tunes the MAGLEV policy.
type MaglevConfig struct {
	TableSize *uint64 `json:"tableSize,omitempty"`
}

// CircuitBreakersSpec holds per-priority circuit breaker thresholds.
type CircuitBreakersSpec struct {
	Default *CircuitBreakerThresholdsSpec `json:"default,omitempty"`
	High    *CircuitBreakerThresholdsSpec `json:"high,omitempty"`
}

// CircuitBreakerThresholdsSpec limits concurrent work sent to a cluster.
type CircuitBreakerThresholdsSpec struct {
	MaxConnections     *uint32 `json:"maxConnections,omitempty"`
	MaxPendingRequests *uint32 `json:"maxPendingRequests,omitempty"`
	MaxRequests        *uint32 `json:"maxRequests,omitempty"`
	MaxRetries         *uint32 `json:"maxRetries,omitempty"`
}

// OutlierDetectionSpec ejects unhealthy hosts based on passive health signals.
type OutlierDetectionSpec struct {
	Consecutive5xx          *uint32 `json:"consecutive5xx,omitempty"`
	IntervalSeconds         *uint64 `json:"intervalSeconds,omitempty"`
	BaseEjectionTimeSeconds *uint64 `json:"baseEjectionTimeSeconds,omitempty"`
	MaxEjectionPercent      *uint32 `json:"maxEjectionPercent,omitempty"`
}

// HealthCheckType discriminates active health check variants.
type HealthCheckType string

const (
	HealthCheckTypeHTTP HealthCheckType = "http"
	HealthCheckTypeTCP  HealthCheckType = "tcp"
)

// HealthCheckSpec is a tagged union over HTTP and TCP active health checks.
// Exactly one variant is populated, selected by Type.
type HealthCheckSpec struct {
	Type HealthCheckType
	HTTP *HTTPHealthCheckSpec
	TCP  *TCPHealthCheckSpec
}

// HTTPHealthCheckSpec probes an HTTP path on each endpoint.
type HTTPHealthCheckSpec struct {
	Path               string   `json:"path"`
	Host               *string  `json:"host,omitempty"`
	Method             *string  `json:"method,omitempty"`
	IntervalSeconds    *uint64  `json:"intervalSeconds,omitempty"`
	TimeoutSeconds     *uint64  `json:"timeoutSeconds,omitempty"`
	HealthyThreshold   *uint32  `json:"healthyThreshold,omitempty"`
	UnhealthyThreshold *uint32  `json:"unhealthyThreshold,omitempty"`
	ExpectedStatuses   []uint32 `json:"expectedStatuses,omitempty"`
}

// TCPHealthCheckSpec probes TCP connectivity on each endpoint.
type TCPHealthCheckSpec struct {
	IntervalSeconds    *uint64 `json:"intervalSeconds,omitempty"`
	TimeoutSeconds     *uint64 `json:"timeoutSeconds,omitempty"`
	HealthyThreshold   *uint32 `json:"healthyThreshold,omitempty"`
	UnhealthyThreshold *uint32 `json:"unhealthyThreshold,omitempty"`
}

func (h HealthCheckSpec) MarshalJSON() ([]byte, error) {
	switch h.Type {
	case HealthCheckTypeHTTP:
		if h.HTTP == nil {
			return nil, fmt.Errorf("http health check missing body")
		}
		return json.Marshal(struct {
			Type HealthCheckType `json:"type"`
			*HTTPHealthCheckSpec
		}{h.Type, h.HTTP})
	case HealthCheckTypeTCP:
		if h.TCP == nil {
			return nil, fmt.Errorf("tcp health check missing body")
		}
		return json.Marshal(struct {
			Type HealthCheckType `json:"type"`
			*TCPHealthCheckSpec
		}{h.Type, h.TCP})
	default:
		return nil, fmt.Errorf("unknown health check type %q", h.Type)
	}
}

func (h *HealthCheckSpec) UnmarshalJSON(data []byte) error {
	var head struct {
		Type HealthCheckType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case HealthCheckTypeHTTP:
		var body HTTPHealthCheckSpec
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*h = HealthCheckSpec{Type: HealthCheckTypeHTTP, HTTP: &body}
	case HealthCheckTypeTCP:
		var body TCPHealthCheckSpec
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*h = HealthCheckSpec{Type: HealthCheckTypeTCP, TCP: &body}
	default:
		return fmt.Errorf("unknown health check type %q", head.Type)
	}
	return nil
}
