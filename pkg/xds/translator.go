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

// Package xds lowers canonical resource specs to Envoy xDS v3 protos and
// serves them to proxies through a go-control-plane snapshot cache.
//
// Translation is exposed as total function pairs per resource class:
// ClusterFromSpec/ClusterToSpec, RouteConfigurationFromSpec/
// RouteConfigurationToSpec, and ListenerFromSpec/ListenerToSpec. A valid
// spec round-trips field-wise through its pair; optional fields that were
// left unset come back carrying their documented defaults.
package xds

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	cluster "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	endpoint "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"
	listener "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	route "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	corsv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/cors/v3"
	localratelimitv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/local_ratelimit/v3"
	routerv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/router/v3"
	hcm "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	tcpproxyv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/tcp_proxy/v3"
	uritemplatematch "github.com/envoyproxy/go-control-plane/envoy/extensions/path/match/uri_template/v3"
	uritemplaterewrite "github.com/envoyproxy/go-control-plane/envoy/extensions/path/rewrite/uri_template/v3"
	tlsv3 "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	matcher "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/envoyproxy/go-control-plane/pkg/wellknown"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
)

const (
	// clusterMetadataNamespace keys flowplane-owned cluster metadata.
	clusterMetadataNamespace = "flowplane"
	// metadataServiceNameKey records the logical service a cluster fronts.
	metadataServiceNameKey = "serviceName"

	defaultConnectTimeoutSeconds      = 5
	defaultHealthCheckIntervalSeconds = 10
	defaultHealthCheckTimeoutSeconds  = 3
	defaultHealthCheckThreshold       = 2
)

// redirectResponseCodes maps the canonical redirect status codes onto the
// Envoy redirect enum. Anything outside this set fails the encode smoke test.
var redirectResponseCodes = map[uint32]route.RedirectAction_RedirectResponseCode{
	301: route.RedirectAction_MOVED_PERMANENTLY,
	302: route.RedirectAction_FOUND,
	303: route.RedirectAction_SEE_OTHER,
	307: route.RedirectAction_TEMPORARY_REDIRECT,
	308: route.RedirectAction_PERMANENT_REDIRECT,
}

// ClusterFromSpec lowers a cluster spec to the Envoy cluster proto.
func ClusterFromSpec(spec *models.ClusterSpec) (*cluster.Cluster, error) {
	if len(spec.Endpoints) == 0 {
		return nil, fmt.Errorf("cluster %q has no endpoints", spec.Name)
	}

	connectTimeout := uint64(defaultConnectTimeoutSeconds)
	if spec.ConnectTimeoutSeconds != nil {
		connectTimeout = *spec.ConnectTimeoutSeconds
	}

	c := &cluster.Cluster{
		Name:                 spec.Name,
		ConnectTimeout:       durationpb.New(time.Duration(connectTimeout) * time.Second),
		ClusterDiscoveryType: &cluster.Cluster_Type{Type: cluster.Cluster_STRICT_DNS},
		LbPolicy:             lbPolicyFromSpec(spec.EffectiveLbPolicy()),
		LoadAssignment:       loadAssignmentFromSpec(spec.Name, spec.Endpoints),
	}

	if spec.DnsLookupFamily != nil {
		family, err := dnsLookupFamilyFromSpec(*spec.DnsLookupFamily)
		if err != nil {
			return nil, err
		}
		c.DnsLookupFamily = family
	}

	if spec.LeastRequest != nil && spec.LeastRequest.ChoiceCount != nil {
		c.LbConfig = &cluster.Cluster_LeastRequestLbConfig_{
			LeastRequestLbConfig: &cluster.Cluster_LeastRequestLbConfig{
				ChoiceCount: wrapperspb.UInt32(*spec.LeastRequest.ChoiceCount),
			},
		}
	}
	if spec.RingHash != nil {
		cfg := &cluster.Cluster_RingHashLbConfig{}
		if spec.RingHash.MinimumRingSize != nil {
			cfg.MinimumRingSize = wrapperspb.UInt64(*spec.RingHash.MinimumRingSize)
		}
		if spec.RingHash.MaximumRingSize != nil {
			cfg.MaximumRingSize = wrapperspb.UInt64(*spec.RingHash.MaximumRingSize)
		}
		c.LbConfig = &cluster.Cluster_RingHashLbConfig_{RingHashLbConfig: cfg}
	}
	if spec.Maglev != nil && spec.Maglev.TableSize != nil {
		c.LbConfig = &cluster.Cluster_MaglevLbConfig_{
			MaglevLbConfig: &cluster.Cluster_MaglevLbConfig{
				TableSize: wrapperspb.UInt64(*spec.Maglev.TableSize),
			},
		}
	}

	if spec.CircuitBreakers != nil {
		c.CircuitBreakers = circuitBreakersFromSpec(spec.CircuitBreakers)
	}
	if spec.OutlierDetection != nil {
		c.OutlierDetection = outlierDetectionFromSpec(spec.OutlierDetection)
	}

	for i, hc := range spec.HealthChecks {
		wire, err := healthCheckFromSpec(hc)
		if err != nil {
			return nil, fmt.Errorf("healthChecks[%d]: %w", i, err)
		}
		c.HealthChecks = append(c.HealthChecks, wire)
	}

	if spec.UseTLS != nil && *spec.UseTLS {
		tlsContext := &tlsv3.UpstreamTlsContext{}
		if spec.TLSServerName != nil {
			tlsContext.Sni = *spec.TLSServerName
		}
		typed, err := anypb.New(tlsContext)
		if err != nil {
			return nil, fmt.Errorf("cluster %q: marshal TLS context: %w", spec.Name, err)
		}
		c.TransportSocket = &core.TransportSocket{
			Name:       constants.EnvoyTLSTransportSocket,
			ConfigType: &core.TransportSocket_TypedConfig{TypedConfig: typed},
		}
	}

	// The logical service label has no wire field of its own; it rides in
	// cluster metadata so the pair stays invertible.
	if spec.ServiceName != "" {
		c.Metadata = &core.Metadata{
			FilterMetadata: map[string]*structpb.Struct{
				clusterMetadataNamespace: {
					Fields: map[string]*structpb.Value{
						metadataServiceNameKey: structpb.NewStringValue(spec.ServiceName),
					},
				},
			},
		}
	}

	return c, nil
}

// ClusterToSpec recovers a cluster spec from the Envoy cluster proto.
func ClusterToSpec(c *cluster.Cluster) (*models.ClusterSpec, error) {
	spec := &models.ClusterSpec{Name: c.Name}

	if c.ConnectTimeout != nil {
		secs := secondsOf(c.ConnectTimeout)
		spec.ConnectTimeoutSeconds = &secs
	}

	policy := lbPolicyToSpec(c.LbPolicy)
	spec.LbPolicy = &policy

	switch c.DnsLookupFamily {
	case cluster.Cluster_V4_ONLY:
		family := models.DnsLookupFamilyV4
		spec.DnsLookupFamily = &family
	case cluster.Cluster_V6_ONLY:
		family := models.DnsLookupFamilyV6
		spec.DnsLookupFamily = &family
	}

	switch lb := c.LbConfig.(type) {
	case *cluster.Cluster_LeastRequestLbConfig_:
		if lb.LeastRequestLbConfig.GetChoiceCount() != nil {
			count := lb.LeastRequestLbConfig.GetChoiceCount().GetValue()
			spec.LeastRequest = &models.LeastRequestConfig{ChoiceCount: &count}
		}
	case *cluster.Cluster_RingHashLbConfig_:
		cfg := &models.RingHashConfig{}
		if lb.RingHashLbConfig.GetMinimumRingSize() != nil {
			v := lb.RingHashLbConfig.GetMinimumRingSize().GetValue()
			cfg.MinimumRingSize = &v
		}
		if lb.RingHashLbConfig.GetMaximumRingSize() != nil {
			v := lb.RingHashLbConfig.GetMaximumRingSize().GetValue()
			cfg.MaximumRingSize = &v
		}
		spec.RingHash = cfg
	case *cluster.Cluster_MaglevLbConfig_:
		if lb.MaglevLbConfig.GetTableSize() != nil {
			v := lb.MaglevLbConfig.GetTableSize().GetValue()
			spec.Maglev = &models.MaglevConfig{TableSize: &v}
		}
	}

	for _, locality := range c.GetLoadAssignment().GetEndpoints() {
		for _, lb := range locality.GetLbEndpoints() {
			socket := lb.GetEndpoint().GetAddress().GetSocketAddress()
			if socket == nil {
				return nil, fmt.Errorf("cluster %q: endpoint has no socket address", c.Name)
			}
			spec.Endpoints = append(spec.Endpoints, models.EndpointSpec{
				Host: socket.GetAddress(),
				Port: socket.GetPortValue(),
			})
		}
	}

	if c.CircuitBreakers != nil {
		spec.CircuitBreakers = circuitBreakersToSpec(c.CircuitBreakers)
	}
	if c.OutlierDetection != nil {
		spec.OutlierDetection = outlierDetectionToSpec(c.OutlierDetection)
	}

	for i, hc := range c.HealthChecks {
		parsed, err := healthCheckToSpec(hc)
		if err != nil {
			return nil, fmt.Errorf("cluster %q healthChecks[%d]: %w", c.Name, i, err)
		}
		spec.HealthChecks = append(spec.HealthChecks, parsed)
	}

	if c.TransportSocket != nil {
		useTLS := true
		spec.UseTLS = &useTLS
		var tlsContext tlsv3.UpstreamTlsContext
		if typed := c.TransportSocket.GetTypedConfig(); typed != nil {
			if err := typed.UnmarshalTo(&tlsContext); err != nil {
				return nil, fmt.Errorf("cluster %q: decode TLS context: %w", c.Name, err)
			}
			if tlsContext.Sni != "" {
				sni := tlsContext.Sni
				spec.TLSServerName = &sni
			}
		}
	}

	if meta := c.GetMetadata().GetFilterMetadata()[clusterMetadataNamespace]; meta != nil {
		if v, ok := meta.GetFields()[metadataServiceNameKey]; ok {
			spec.ServiceName = v.GetStringValue()
		}
	}

	return spec, nil
}

// RouteConfigurationFromSpec lowers a route configuration spec to the Envoy
// route configuration proto. Template path matches encode through the URI
// template extensions; scoped filter configs encode to typed Any values.
func RouteConfigurationFromSpec(spec *models.RouteConfigSpec) (*route.RouteConfiguration, error) {
	vhosts := make([]*route.VirtualHost, 0, len(spec.VirtualHosts))
	for i, vh := range spec.VirtualHosts {
		wire, err := virtualHostFromSpec(&vh)
		if err != nil {
			return nil, fmt.Errorf("virtualHosts[%d]: %w", i, err)
		}
		vhosts = append(vhosts, wire)
	}

	return &route.RouteConfiguration{
		Name:         spec.Name,
		VirtualHosts: vhosts,
	}, nil
}

// RouteConfigurationToSpec recovers a route configuration spec from the
// Envoy proto. Synthesized configurations carrying direct-response actions
// are outside the canonical model and fail here.
func RouteConfigurationToSpec(rc *route.RouteConfiguration) (*models.RouteConfigSpec, error) {
	spec := &models.RouteConfigSpec{Name: rc.Name}
	for i, vh := range rc.VirtualHosts {
		parsed, err := virtualHostToSpec(vh)
		if err != nil {
			return nil, fmt.Errorf("virtualHosts[%d]: %w", i, err)
		}
		spec.VirtualHosts = append(spec.VirtualHosts, *parsed)
	}
	return spec, nil
}

// ListenerFromSpec lowers a listener spec to the Envoy listener proto. HTTP
// connection manager filters reference their route configuration through
// RDS so route updates flow without touching the listener.
func ListenerFromSpec(spec *models.ListenerSpec) (*listener.Listener, error) {
	chains := make([]*listener.FilterChain, 0, len(spec.FilterChains))
	for i, chain := range spec.FilterChains {
		wire, err := filterChainFromSpec(&chain)
		if err != nil {
			return nil, fmt.Errorf("filterChains[%d]: %w", i, err)
		}
		chains = append(chains, wire)
	}

	return &listener.Listener{
		Name:         spec.Name,
		Address:      socketAddress(spec.Address, spec.Port),
		FilterChains: chains,
	}, nil
}

// ListenerToSpec recovers a listener spec from the Envoy listener proto.
// The protocol is derived from the first filter: a TCP proxy marks the
// listener TCP, anything else HTTP.
func ListenerToSpec(l *listener.Listener) (*models.ListenerSpec, error) {
	socket := l.GetAddress().GetSocketAddress()
	if socket == nil {
		return nil, fmt.Errorf("listener %q has no socket address", l.Name)
	}

	spec := &models.ListenerSpec{
		Name:     l.Name,
		Address:  socket.GetAddress(),
		Port:     socket.GetPortValue(),
		Protocol: models.ListenerProtocolHTTP,
	}

	for i, chain := range l.FilterChains {
		parsed, err := filterChainToSpec(chain)
		if err != nil {
			return nil, fmt.Errorf("listener %q filterChains[%d]: %w", l.Name, i, err)
		}
		spec.FilterChains = append(spec.FilterChains, *parsed)
	}

	if len(spec.FilterChains) > 0 && len(spec.FilterChains[0].Filters) > 0 &&
		spec.FilterChains[0].Filters[0].Type == models.ListenerFilterTCPProxy {
		spec.Protocol = models.ListenerProtocolTCP
	}

	return spec, nil
}

// RouteConfigNames returns the RDS names a listener spec references, in
// filter order without duplicates.
func RouteConfigNames(spec *models.ListenerSpec) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, chain := range spec.FilterChains {
		for _, filter := range chain.Filters {
			if filter.Type != models.ListenerFilterHTTPConnectionManager || filter.RouteConfigName == "" {
				continue
			}
			if _, ok := seen[filter.RouteConfigName]; ok {
				continue
			}
			seen[filter.RouteConfigName] = struct{}{}
			names = append(names, filter.RouteConfigName)
		}
	}
	return names
}

// CatchAllRouteConfiguration answers every request with a 404 direct
// response. It stands in for RDS names referenced by a listener before the
// matching route configuration exists, keeping the snapshot servable.
func CatchAllRouteConfiguration(name string) *route.RouteConfiguration {
	return &route.RouteConfiguration{
		Name: name,
		VirtualHosts: []*route.VirtualHost{{
			Name:    "catch-all",
			Domains: []string{"*"},
			Routes: []*route.Route{{
				Match: &route.RouteMatch{
					PathSpecifier: &route.RouteMatch_Prefix{Prefix: "/"},
				},
				Action: &route.Route_DirectResponse{
					DirectResponse: &route.DirectResponseAction{Status: 404},
				},
			}},
		}},
	}
}

func lbPolicyFromSpec(policy models.LbPolicy) cluster.Cluster_LbPolicy {
	switch policy {
	case models.LbPolicyLeastRequest:
		return cluster.Cluster_LEAST_REQUEST
	case models.LbPolicyRandom:
		return cluster.Cluster_RANDOM
	case models.LbPolicyRingHash:
		return cluster.Cluster_RING_HASH
	case models.LbPolicyMaglev:
		return cluster.Cluster_MAGLEV
	default:
		return cluster.Cluster_ROUND_ROBIN
	}
}

func lbPolicyToSpec(policy cluster.Cluster_LbPolicy) models.LbPolicy {
	switch policy {
	case cluster.Cluster_LEAST_REQUEST:
		return models.LbPolicyLeastRequest
	case cluster.Cluster_RANDOM:
		return models.LbPolicyRandom
	case cluster.Cluster_RING_HASH:
		return models.LbPolicyRingHash
	case cluster.Cluster_MAGLEV:
		return models.LbPolicyMaglev
	default:
		return models.LbPolicyRoundRobin
	}
}

func dnsLookupFamilyFromSpec(family models.DnsLookupFamily) (cluster.Cluster_DnsLookupFamily, error) {
	switch family {
	case models.DnsLookupFamilyV4:
		return cluster.Cluster_V4_ONLY, nil
	case models.DnsLookupFamilyV6:
		return cluster.Cluster_V6_ONLY, nil
	case models.DnsLookupFamilyAuto:
		return cluster.Cluster_AUTO, nil
	default:
		return cluster.Cluster_AUTO, fmt.Errorf("unknown dns lookup family %q", family)
	}
}

func loadAssignmentFromSpec(name string, endpoints []models.EndpointSpec) *endpoint.ClusterLoadAssignment {
	lbEndpoints := make([]*endpoint.LbEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		lbEndpoints = append(lbEndpoints, &endpoint.LbEndpoint{
			HostIdentifier: &endpoint.LbEndpoint_Endpoint{
				Endpoint: &endpoint.Endpoint{
					Address: socketAddress(ep.Host, ep.Port),
				},
			},
		})
	}

	return &endpoint.ClusterLoadAssignment{
		ClusterName: name,
		Endpoints:   []*endpoint.LocalityLbEndpoints{{LbEndpoints: lbEndpoints}},
	}
}

func circuitBreakersFromSpec(spec *models.CircuitBreakersSpec) *cluster.CircuitBreakers {
	var thresholds []*cluster.CircuitBreakers_Thresholds
	if spec.Default != nil {
		thresholds = append(thresholds, thresholdsFromSpec(core.RoutingPriority_DEFAULT, spec.Default))
	}
	if spec.High != nil {
		thresholds = append(thresholds, thresholdsFromSpec(core.RoutingPriority_HIGH, spec.High))
	}
	return &cluster.CircuitBreakers{Thresholds: thresholds}
}

func thresholdsFromSpec(priority core.RoutingPriority, spec *models.CircuitBreakerThresholdsSpec) *cluster.CircuitBreakers_Thresholds {
	t := &cluster.CircuitBreakers_Thresholds{Priority: priority}
	if spec.MaxConnections != nil {
		t.MaxConnections = wrapperspb.UInt32(*spec.MaxConnections)
	}
	if spec.MaxPendingRequests != nil {
		t.MaxPendingRequests = wrapperspb.UInt32(*spec.MaxPendingRequests)
	}
	if spec.MaxRequests != nil {
		t.MaxRequests = wrapperspb.UInt32(*spec.MaxRequests)
	}
	if spec.MaxRetries != nil {
		t.MaxRetries = wrapperspb.UInt32(*spec.MaxRetries)
	}
	return t
}

func circuitBreakersToSpec(cb *cluster.CircuitBreakers) *models.CircuitBreakersSpec {
	spec := &models.CircuitBreakersSpec{}
	for _, t := range cb.Thresholds {
		parsed := thresholdsToSpec(t)
		switch t.Priority {
		case core.RoutingPriority_HIGH:
			spec.High = parsed
		default:
			spec.Default = parsed
		}
	}
	return spec
}

func thresholdsToSpec(t *cluster.CircuitBreakers_Thresholds) *models.CircuitBreakerThresholdsSpec {
	spec := &models.CircuitBreakerThresholdsSpec{}
	if t.MaxConnections != nil {
		v := t.MaxConnections.GetValue()
		spec.MaxConnections = &v
	}
	if t.MaxPendingRequests != nil {
		v := t.MaxPendingRequests.GetValue()
		spec.MaxPendingRequests = &v
	}
	if t.MaxRequests != nil {
		v := t.MaxRequests.GetValue()
		spec.MaxRequests = &v
	}
	if t.MaxRetries != nil {
		v := t.MaxRetries.GetValue()
		spec.MaxRetries = &v
	}
	return spec
}

func outlierDetectionFromSpec(spec *models.OutlierDetectionSpec) *cluster.OutlierDetection {
	od := &cluster.OutlierDetection{}
	if spec.Consecutive5xx != nil {
		od.Consecutive_5Xx = wrapperspb.UInt32(*spec.Consecutive5xx)
	}
	if spec.IntervalSeconds != nil {
		od.Interval = durationpb.New(time.Duration(*spec.IntervalSeconds) * time.Second)
	}
	if spec.BaseEjectionTimeSeconds != nil {
		od.BaseEjectionTime = durationpb.New(time.Duration(*spec.BaseEjectionTimeSeconds) * time.Second)
	}
	if spec.MaxEjectionPercent != nil {
		od.MaxEjectionPercent = wrapperspb.UInt32(*spec.MaxEjectionPercent)
	}
	return od
}

func outlierDetectionToSpec(od *cluster.OutlierDetection) *models.OutlierDetectionSpec {
	spec := &models.OutlierDetectionSpec{}
	if od.Consecutive_5Xx != nil {
		v := od.Consecutive_5Xx.GetValue()
		spec.Consecutive5xx = &v
	}
	if od.Interval != nil {
		v := secondsOf(od.Interval)
		spec.IntervalSeconds = &v
	}
	if od.BaseEjectionTime != nil {
		v := secondsOf(od.BaseEjectionTime)
		spec.BaseEjectionTimeSeconds = &v
	}
	if od.MaxEjectionPercent != nil {
		v := od.MaxEjectionPercent.GetValue()
		spec.MaxEjectionPercent = &v
	}
	return spec
}

func healthCheckFromSpec(spec models.HealthCheckSpec) (*core.HealthCheck, error) {
	switch spec.Type {
	case models.HealthCheckTypeHTTP:
		h := spec.HTTP
		if h == nil || h.Path == "" {
			return nil, fmt.Errorf("http health check requires a path")
		}
		httpCheck := &core.HealthCheck_HttpHealthCheck{Path: h.Path}
		if h.Host != nil {
			httpCheck.Host = *h.Host
		}
		if h.Method != nil {
			method, ok := core.RequestMethod_value[strings.ToUpper(*h.Method)]
			if !ok || method == int32(core.RequestMethod_METHOD_UNSPECIFIED) {
				return nil, fmt.Errorf("unsupported health check method %q", *h.Method)
			}
			httpCheck.Method = core.RequestMethod(method)
		}
		for _, status := range h.ExpectedStatuses {
			httpCheck.ExpectedStatuses = append(httpCheck.ExpectedStatuses, &typev3.Int64Range{
				Start: int64(status),
				End:   int64(status) + 1,
			})
		}

		wire := baseHealthCheck(h.IntervalSeconds, h.TimeoutSeconds, h.HealthyThreshold, h.UnhealthyThreshold)
		wire.HealthChecker = &core.HealthCheck_HttpHealthCheck_{HttpHealthCheck: httpCheck}
		return wire, nil

	case models.HealthCheckTypeTCP:
		t := spec.TCP
		if t == nil {
			return nil, fmt.Errorf("tcp health check missing body")
		}
		wire := baseHealthCheck(t.IntervalSeconds, t.TimeoutSeconds, t.HealthyThreshold, t.UnhealthyThreshold)
		wire.HealthChecker = &core.HealthCheck_TcpHealthCheck_{TcpHealthCheck: &core.HealthCheck_TcpHealthCheck{}}
		return wire, nil

	default:
		return nil, fmt.Errorf("unknown health check type %q", spec.Type)
	}
}

func baseHealthCheck(interval, timeout *uint64, healthy, unhealthy *uint32) *core.HealthCheck {
	intervalSecs := uint64(defaultHealthCheckIntervalSeconds)
	if interval != nil {
		intervalSecs = *interval
	}
	timeoutSecs := uint64(defaultHealthCheckTimeoutSeconds)
	if timeout != nil {
		timeoutSecs = *timeout
	}
	healthyCount := uint32(defaultHealthCheckThreshold)
	if healthy != nil {
		healthyCount = *healthy
	}
	unhealthyCount := uint32(defaultHealthCheckThreshold)
	if unhealthy != nil {
		unhealthyCount = *unhealthy
	}

	return &core.HealthCheck{
		Interval:           durationpb.New(time.Duration(intervalSecs) * time.Second),
		Timeout:            durationpb.New(time.Duration(timeoutSecs) * time.Second),
		HealthyThreshold:   wrapperspb.UInt32(healthyCount),
		UnhealthyThreshold: wrapperspb.UInt32(unhealthyCount),
	}
}

func healthCheckToSpec(hc *core.HealthCheck) (models.HealthCheckSpec, error) {
	interval := secondsOf(hc.Interval)
	timeout := secondsOf(hc.Timeout)
	healthy := hc.GetHealthyThreshold().GetValue()
	unhealthy := hc.GetUnhealthyThreshold().GetValue()

	switch checker := hc.HealthChecker.(type) {
	case *core.HealthCheck_HttpHealthCheck_:
		h := checker.HttpHealthCheck
		spec := &models.HTTPHealthCheckSpec{
			Path:               h.Path,
			IntervalSeconds:    &interval,
			TimeoutSeconds:     &timeout,
			HealthyThreshold:   &healthy,
			UnhealthyThreshold: &unhealthy,
		}
		if h.Host != "" {
			host := h.Host
			spec.Host = &host
		}
		if h.Method != core.RequestMethod_METHOD_UNSPECIFIED {
			method := h.Method.String()
			spec.Method = &method
		}
		for _, r := range h.ExpectedStatuses {
			spec.ExpectedStatuses = append(spec.ExpectedStatuses, uint32(r.Start))
		}
		return models.HealthCheckSpec{Type: models.HealthCheckTypeHTTP, HTTP: spec}, nil

	case *core.HealthCheck_TcpHealthCheck_:
		return models.HealthCheckSpec{Type: models.HealthCheckTypeTCP, TCP: &models.TCPHealthCheckSpec{
			IntervalSeconds:    &interval,
			TimeoutSeconds:     &timeout,
			HealthyThreshold:   &healthy,
			UnhealthyThreshold: &unhealthy,
		}}, nil

	default:
		return models.HealthCheckSpec{}, fmt.Errorf("unsupported health checker %T", hc.HealthChecker)
	}
}

func virtualHostFromSpec(vh *models.VirtualHostSpec) (*route.VirtualHost, error) {
	routes := make([]*route.Route, 0, len(vh.Routes))
	for i, rule := range vh.Routes {
		wire, err := routeRuleFromSpec(&rule)
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		routes = append(routes, wire)
	}

	filterConfigs, err := scopedFilterConfigsToAny(vh.TypedPerFilterConfig)
	if err != nil {
		return nil, err
	}

	return &route.VirtualHost{
		Name:                 vh.Name,
		Domains:              vh.Domains,
		Routes:               routes,
		TypedPerFilterConfig: filterConfigs,
	}, nil
}

func virtualHostToSpec(vh *route.VirtualHost) (*models.VirtualHostSpec, error) {
	spec := &models.VirtualHostSpec{
		Name:    vh.Name,
		Domains: vh.Domains,
	}

	for i, r := range vh.Routes {
		parsed, err := routeRuleToSpec(r)
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		spec.Routes = append(spec.Routes, *parsed)
	}

	filterConfigs, err := anyMapToScopedFilterConfigs(vh.TypedPerFilterConfig)
	if err != nil {
		return nil, err
	}
	spec.TypedPerFilterConfig = filterConfigs

	return spec, nil
}

func routeRuleFromSpec(rule *models.RouteRuleSpec) (*route.Route, error) {
	match, err := routeMatchFromSpec(&rule.Match)
	if err != nil {
		return nil, err
	}

	r := &route.Route{Match: match}
	if rule.Name != nil {
		r.Name = *rule.Name
	}

	switch rule.Action.Type {
	case models.RouteActionForward:
		action, err := forwardActionFromSpec(rule.Action.Forward)
		if err != nil {
			return nil, err
		}
		r.Action = action
	case models.RouteActionWeighted:
		action, err := weightedActionFromSpec(rule.Action.Weighted)
		if err != nil {
			return nil, err
		}
		r.Action = action
	case models.RouteActionRedirect:
		action, err := redirectActionFromSpec(rule.Action.Redirect)
		if err != nil {
			return nil, err
		}
		r.Action = action
	default:
		return nil, fmt.Errorf("unknown route action type %q", rule.Action.Type)
	}

	filterConfigs, err := scopedFilterConfigsToAny(rule.TypedPerFilterConfig)
	if err != nil {
		return nil, err
	}
	r.TypedPerFilterConfig = filterConfigs

	return r, nil
}

func routeRuleToSpec(r *route.Route) (*models.RouteRuleSpec, error) {
	match, err := routeMatchToSpec(r.Match)
	if err != nil {
		return nil, err
	}

	spec := &models.RouteRuleSpec{Match: *match}
	if r.Name != "" {
		name := r.Name
		spec.Name = &name
	}

	switch action := r.Action.(type) {
	case *route.Route_Route:
		parsed, err := routeActionToSpec(action.Route)
		if err != nil {
			return nil, err
		}
		spec.Action = *parsed
	case *route.Route_Redirect:
		spec.Action = redirectActionToSpec(action.Redirect)
	default:
		return nil, fmt.Errorf("unsupported route action %T", r.Action)
	}

	filterConfigs, err := anyMapToScopedFilterConfigs(r.TypedPerFilterConfig)
	if err != nil {
		return nil, err
	}
	spec.TypedPerFilterConfig = filterConfigs

	return spec, nil
}

func routeMatchFromSpec(match *models.RouteMatchSpec) (*route.RouteMatch, error) {
	m := &route.RouteMatch{}

	switch match.Path.Type {
	case models.PathMatchExact:
		m.PathSpecifier = &route.RouteMatch_Path{Path: match.Path.Value}
	case models.PathMatchPrefix:
		m.PathSpecifier = &route.RouteMatch_Prefix{Prefix: match.Path.Value}
	case models.PathMatchRegex:
		m.PathSpecifier = &route.RouteMatch_SafeRegex{
			SafeRegex: &matcher.RegexMatcher{Regex: match.Path.Value},
		}
	case models.PathMatchTemplate:
		typed, err := anypb.New(&uritemplatematch.UriTemplateMatchConfig{PathTemplate: match.Path.Template})
		if err != nil {
			return nil, fmt.Errorf("encode URI template %q: %w", match.Path.Template, err)
		}
		if len(typed.Value) == 0 {
			return nil, fmt.Errorf("URI template %q encodes to an empty config", match.Path.Template)
		}
		m.PathSpecifier = &route.RouteMatch_PathMatchPolicy{
			PathMatchPolicy: &core.TypedExtensionConfig{
				Name:        constants.EnvoyURITemplateMatcher,
				TypedConfig: typed,
			},
		}
	default:
		return nil, fmt.Errorf("unknown path match type %q", match.Path.Type)
	}

	for _, h := range match.Headers {
		wire, err := headerMatcherFromSpec(&h)
		if err != nil {
			return nil, err
		}
		m.Headers = append(m.Headers, wire)
	}
	for _, q := range match.QueryParameters {
		wire, err := queryParameterMatcherFromSpec(&q)
		if err != nil {
			return nil, err
		}
		m.QueryParameters = append(m.QueryParameters, wire)
	}

	return m, nil
}

func routeMatchToSpec(m *route.RouteMatch) (*models.RouteMatchSpec, error) {
	spec := &models.RouteMatchSpec{}

	switch path := m.PathSpecifier.(type) {
	case *route.RouteMatch_Path:
		spec.Path = models.PathMatch{Type: models.PathMatchExact, Value: path.Path}
	case *route.RouteMatch_Prefix:
		spec.Path = models.PathMatch{Type: models.PathMatchPrefix, Value: path.Prefix}
	case *route.RouteMatch_SafeRegex:
		spec.Path = models.PathMatch{Type: models.PathMatchRegex, Value: path.SafeRegex.GetRegex()}
	case *route.RouteMatch_PathMatchPolicy:
		var tpl uritemplatematch.UriTemplateMatchConfig
		if err := path.PathMatchPolicy.GetTypedConfig().UnmarshalTo(&tpl); err != nil {
			return nil, fmt.Errorf("decode URI template match: %w", err)
		}
		spec.Path = models.PathMatch{Type: models.PathMatchTemplate, Template: tpl.PathTemplate}
	default:
		return nil, fmt.Errorf("unsupported path specifier %T", m.PathSpecifier)
	}

	for _, h := range m.Headers {
		parsed, err := headerMatcherToSpec(h)
		if err != nil {
			return nil, err
		}
		spec.Headers = append(spec.Headers, *parsed)
	}
	for _, q := range m.QueryParameters {
		parsed, err := queryParameterMatcherToSpec(q)
		if err != nil {
			return nil, err
		}
		spec.QueryParameters = append(spec.QueryParameters, *parsed)
	}

	return spec, nil
}

func headerMatcherFromSpec(h *models.HeaderMatchSpec) (*route.HeaderMatcher, error) {
	hm := &route.HeaderMatcher{Name: h.Name}
	switch {
	case h.Value != nil:
		hm.HeaderMatchSpecifier = &route.HeaderMatcher_StringMatch{StringMatch: exactStringMatcher(*h.Value)}
	case h.Regex != nil:
		hm.HeaderMatchSpecifier = &route.HeaderMatcher_StringMatch{StringMatch: regexStringMatcher(*h.Regex)}
	case h.Present != nil:
		hm.HeaderMatchSpecifier = &route.HeaderMatcher_PresentMatch{PresentMatch: *h.Present}
	default:
		return nil, fmt.Errorf("header match %q requires value, regex, or present", h.Name)
	}
	return hm, nil
}

func headerMatcherToSpec(h *route.HeaderMatcher) (*models.HeaderMatchSpec, error) {
	spec := &models.HeaderMatchSpec{Name: h.Name}
	switch m := h.HeaderMatchSpecifier.(type) {
	case *route.HeaderMatcher_StringMatch:
		value, regex, err := stringMatcherToSpec(m.StringMatch)
		if err != nil {
			return nil, fmt.Errorf("header match %q: %w", h.Name, err)
		}
		spec.Value, spec.Regex = value, regex
	case *route.HeaderMatcher_PresentMatch:
		present := m.PresentMatch
		spec.Present = &present
	default:
		return nil, fmt.Errorf("header match %q: unsupported specifier %T", h.Name, h.HeaderMatchSpecifier)
	}
	return spec, nil
}

func queryParameterMatcherFromSpec(q *models.QueryParameterMatchSpec) (*route.QueryParameterMatcher, error) {
	qm := &route.QueryParameterMatcher{Name: q.Name}
	switch {
	case q.Value != nil:
		qm.QueryParameterMatchSpecifier = &route.QueryParameterMatcher_StringMatch{StringMatch: exactStringMatcher(*q.Value)}
	case q.Regex != nil:
		qm.QueryParameterMatchSpecifier = &route.QueryParameterMatcher_StringMatch{StringMatch: regexStringMatcher(*q.Regex)}
	case q.Present != nil:
		qm.QueryParameterMatchSpecifier = &route.QueryParameterMatcher_PresentMatch{PresentMatch: *q.Present}
	default:
		return nil, fmt.Errorf("query parameter match %q requires value, regex, or present", q.Name)
	}
	return qm, nil
}

func queryParameterMatcherToSpec(q *route.QueryParameterMatcher) (*models.QueryParameterMatchSpec, error) {
	spec := &models.QueryParameterMatchSpec{Name: q.Name}
	switch m := q.QueryParameterMatchSpecifier.(type) {
	case *route.QueryParameterMatcher_StringMatch:
		value, regex, err := stringMatcherToSpec(m.StringMatch)
		if err != nil {
			return nil, fmt.Errorf("query parameter match %q: %w", q.Name, err)
		}
		spec.Value, spec.Regex = value, regex
	case *route.QueryParameterMatcher_PresentMatch:
		present := m.PresentMatch
		spec.Present = &present
	default:
		return nil, fmt.Errorf("query parameter match %q: unsupported specifier %T", q.Name, q.QueryParameterMatchSpecifier)
	}
	return spec, nil
}

func forwardActionFromSpec(f *models.ForwardAction) (*route.Route_Route, error) {
	if f == nil {
		return nil, fmt.Errorf("forward action missing body")
	}

	action := &route.RouteAction{
		ClusterSpecifier: &route.RouteAction_Cluster{Cluster: f.Cluster},
	}
	if f.TimeoutSeconds != nil {
		action.Timeout = durationpb.New(time.Duration(*f.TimeoutSeconds) * time.Second)
	}
	if f.PrefixRewrite != nil {
		action.PrefixRewrite = *f.PrefixRewrite
	}
	if f.TemplateRewrite != nil {
		typed, err := anypb.New(&uritemplaterewrite.UriTemplateRewriteConfig{PathTemplateRewrite: *f.TemplateRewrite})
		if err != nil {
			return nil, fmt.Errorf("encode URI template rewrite %q: %w", *f.TemplateRewrite, err)
		}
		action.PathRewritePolicy = &core.TypedExtensionConfig{
			Name:        constants.EnvoyURITemplateRewriter,
			TypedConfig: typed,
		}
	}

	return &route.Route_Route{Route: action}, nil
}

func weightedActionFromSpec(w *models.WeightedAction) (*route.Route_Route, error) {
	if w == nil || len(w.Clusters) == 0 {
		return nil, fmt.Errorf("weighted action requires at least one cluster")
	}

	clusters := make([]*route.WeightedCluster_ClusterWeight, 0, len(w.Clusters))
	for _, target := range w.Clusters {
		filterConfigs, err := scopedFilterConfigsToAny(target.TypedPerFilterConfig)
		if err != nil {
			return nil, fmt.Errorf("weighted cluster %q: %w", target.Name, err)
		}
		clusters = append(clusters, &route.WeightedCluster_ClusterWeight{
			Name:                 target.Name,
			Weight:               wrapperspb.UInt32(target.Weight),
			TypedPerFilterConfig: filterConfigs,
		})
	}

	return &route.Route_Route{
		Route: &route.RouteAction{
			ClusterSpecifier: &route.RouteAction_WeightedClusters{
				WeightedClusters: &route.WeightedCluster{Clusters: clusters},
			},
		},
	}, nil
}

func redirectActionFromSpec(r *models.RedirectAction) (*route.Route_Redirect, error) {
	action := &route.RedirectAction{}
	if r != nil {
		if r.HostRedirect != nil {
			action.HostRedirect = *r.HostRedirect
		}
		if r.PathRedirect != nil {
			action.PathRewriteSpecifier = &route.RedirectAction_PathRedirect{PathRedirect: *r.PathRedirect}
		}
		if r.ResponseCode != nil {
			code, ok := redirectResponseCodes[*r.ResponseCode]
			if !ok {
				return nil, fmt.Errorf("unsupported redirect response code %d", *r.ResponseCode)
			}
			action.ResponseCode = code
		}
	}
	return &route.Route_Redirect{Redirect: action}, nil
}

func routeActionToSpec(action *route.RouteAction) (*models.RouteAction, error) {
	switch cs := action.ClusterSpecifier.(type) {
	case *route.RouteAction_Cluster:
		forward := &models.ForwardAction{Cluster: cs.Cluster}
		if action.Timeout != nil {
			secs := secondsOf(action.Timeout)
			forward.TimeoutSeconds = &secs
		}
		if action.PrefixRewrite != "" {
			rewrite := action.PrefixRewrite
			forward.PrefixRewrite = &rewrite
		}
		if action.PathRewritePolicy != nil {
			var tpl uritemplaterewrite.UriTemplateRewriteConfig
			if err := action.PathRewritePolicy.GetTypedConfig().UnmarshalTo(&tpl); err != nil {
				return nil, fmt.Errorf("decode URI template rewrite: %w", err)
			}
			rewrite := tpl.PathTemplateRewrite
			forward.TemplateRewrite = &rewrite
		}
		return &models.RouteAction{Type: models.RouteActionForward, Forward: forward}, nil

	case *route.RouteAction_WeightedClusters:
		weighted := &models.WeightedAction{}
		for _, target := range cs.WeightedClusters.GetClusters() {
			filterConfigs, err := anyMapToScopedFilterConfigs(target.TypedPerFilterConfig)
			if err != nil {
				return nil, fmt.Errorf("weighted cluster %q: %w", target.Name, err)
			}
			weighted.Clusters = append(weighted.Clusters, models.WeightedClusterSpec{
				Name:                 target.Name,
				Weight:               target.GetWeight().GetValue(),
				TypedPerFilterConfig: filterConfigs,
			})
		}
		return &models.RouteAction{Type: models.RouteActionWeighted, Weighted: weighted}, nil

	default:
		return nil, fmt.Errorf("unsupported cluster specifier %T", action.ClusterSpecifier)
	}
}

func redirectActionToSpec(action *route.RedirectAction) models.RouteAction {
	redirect := &models.RedirectAction{}
	if action.HostRedirect != "" {
		host := action.HostRedirect
		redirect.HostRedirect = &host
	}
	if path, ok := action.PathRewriteSpecifier.(*route.RedirectAction_PathRedirect); ok {
		value := path.PathRedirect
		redirect.PathRedirect = &value
	}
	for status, code := range redirectResponseCodes {
		if code == action.ResponseCode {
			s := status
			redirect.ResponseCode = &s
			break
		}
	}
	return models.RouteAction{Type: models.RouteActionRedirect, Redirect: redirect}
}

func scopedFilterConfigsToAny(configs models.ScopedFilterConfigs) (map[string]*anypb.Any, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	out := make(map[string]*anypb.Any, len(configs))
	for name, cfg := range configs {
		typed, err := scopedFilterConfigToAny(name, cfg)
		if err != nil {
			return nil, err
		}
		out[name] = typed
	}
	return out, nil
}

func scopedFilterConfigToAny(name string, cfg *models.ScopedFilterConfig) (*anypb.Any, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("filter %q: empty scoped config", name)
	case cfg.LocalRateLimit != nil:
		return localRateLimitToAny(cfg.LocalRateLimit)
	case cfg.Cors != nil:
		return corsPolicyToAny(cfg.Cors)
	case cfg.Typed != nil:
		raw, err := base64.StdEncoding.DecodeString(cfg.Typed.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: invalid base64 value: %w", name, err)
		}
		return &anypb.Any{TypeUrl: cfg.Typed.TypeURL, Value: raw}, nil
	default:
		return nil, fmt.Errorf("filter %q: scoped config has no variant", name)
	}
}

func anyMapToScopedFilterConfigs(configs map[string]*anypb.Any) (models.ScopedFilterConfigs, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	out := make(models.ScopedFilterConfigs, len(configs))
	for name, typed := range configs {
		cfg, err := anyToScopedFilterConfig(name, typed)
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

func anyToScopedFilterConfig(name string, typed *anypb.Any) (*models.ScopedFilterConfig, error) {
	switch name {
	case constants.FilterLocalRateLimit:
		var wire localratelimitv3.LocalRateLimit
		if err := typed.UnmarshalTo(&wire); err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		return &models.ScopedFilterConfig{LocalRateLimit: localRateLimitToSpec(&wire)}, nil
	case constants.FilterCORS:
		var wire corsv3.CorsPolicy
		if err := typed.UnmarshalTo(&wire); err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		return &models.ScopedFilterConfig{Cors: corsPolicyToSpec(&wire)}, nil
	default:
		return &models.ScopedFilterConfig{Typed: &models.TypedFilterConfig{
			TypeURL: typed.TypeUrl,
			Value:   base64.StdEncoding.EncodeToString(typed.Value),
		}}, nil
	}
}

func localRateLimitToAny(cfg *models.LocalRateLimitConfig) (*anypb.Any, error) {
	wire := &localratelimitv3.LocalRateLimit{StatPrefix: cfg.StatPrefix}

	if cfg.TokenBucket != nil {
		bucket := &typev3.TokenBucket{
			MaxTokens:    cfg.TokenBucket.MaxTokens,
			FillInterval: durationpb.New(time.Duration(cfg.TokenBucket.FillIntervalMs) * time.Millisecond),
		}
		if cfg.TokenBucket.TokensPerFill != nil {
			bucket.TokensPerFill = wrapperspb.UInt32(*cfg.TokenBucket.TokensPerFill)
		}
		wire.TokenBucket = bucket
	}
	if cfg.StatusCode != nil {
		wire.Status = &typev3.HttpStatus{Code: typev3.StatusCode(*cfg.StatusCode)}
	}
	if cfg.FilterEnabled != nil {
		wire.FilterEnabled = runtimeFractionFromSpec(cfg.FilterEnabled)
	}
	if cfg.FilterEnforced != nil {
		wire.FilterEnforced = runtimeFractionFromSpec(cfg.FilterEnforced)
	}
	if cfg.PerDownstreamConnection != nil {
		wire.LocalRateLimitPerDownstreamConnection = *cfg.PerDownstreamConnection
	}
	if cfg.RateLimitedAsResourceExhausted != nil {
		wire.RateLimitedAsResourceExhausted = *cfg.RateLimitedAsResourceExhausted
	}
	if cfg.MaxDynamicDescriptors != nil {
		wire.MaxDynamicDescriptors = wrapperspb.UInt32(*cfg.MaxDynamicDescriptors)
	}
	if cfg.AlwaysConsumeDefaultTokenBucket != nil {
		wire.AlwaysConsumeDefaultTokenBucket = wrapperspb.Bool(*cfg.AlwaysConsumeDefaultTokenBucket)
	}

	return anypb.New(wire)
}

func localRateLimitToSpec(wire *localratelimitv3.LocalRateLimit) *models.LocalRateLimitConfig {
	cfg := &models.LocalRateLimitConfig{StatPrefix: wire.StatPrefix}

	if wire.TokenBucket != nil {
		bucket := &models.TokenBucketConfig{
			MaxTokens:      wire.TokenBucket.MaxTokens,
			FillIntervalMs: uint64(wire.TokenBucket.GetFillInterval().AsDuration() / time.Millisecond),
		}
		if wire.TokenBucket.TokensPerFill != nil {
			v := wire.TokenBucket.TokensPerFill.GetValue()
			bucket.TokensPerFill = &v
		}
		cfg.TokenBucket = bucket
	}
	if wire.Status != nil {
		code := uint32(wire.Status.Code)
		cfg.StatusCode = &code
	}
	if wire.FilterEnabled != nil {
		cfg.FilterEnabled = runtimeFractionToSpec(wire.FilterEnabled)
	}
	if wire.FilterEnforced != nil {
		cfg.FilterEnforced = runtimeFractionToSpec(wire.FilterEnforced)
	}
	if wire.LocalRateLimitPerDownstreamConnection {
		v := true
		cfg.PerDownstreamConnection = &v
	}
	if wire.RateLimitedAsResourceExhausted {
		v := true
		cfg.RateLimitedAsResourceExhausted = &v
	}
	if wire.MaxDynamicDescriptors != nil {
		v := wire.MaxDynamicDescriptors.GetValue()
		cfg.MaxDynamicDescriptors = &v
	}
	if wire.AlwaysConsumeDefaultTokenBucket != nil {
		v := wire.AlwaysConsumeDefaultTokenBucket.GetValue()
		cfg.AlwaysConsumeDefaultTokenBucket = &v
	}

	return cfg
}

func runtimeFractionFromSpec(spec *models.RuntimeFractionalPercent) *core.RuntimeFractionalPercent {
	out := &core.RuntimeFractionalPercent{
		DefaultValue: &typev3.FractionalPercent{
			Numerator:   spec.Numerator,
			Denominator: denominatorFromSpec(spec.Denominator),
		},
	}
	if spec.RuntimeKey != nil {
		out.RuntimeKey = *spec.RuntimeKey
	}
	return out
}

func runtimeFractionToSpec(wire *core.RuntimeFractionalPercent) *models.RuntimeFractionalPercent {
	spec := &models.RuntimeFractionalPercent{
		Numerator:   wire.GetDefaultValue().GetNumerator(),
		Denominator: denominatorToSpec(wire.GetDefaultValue().GetDenominator()),
	}
	if wire.RuntimeKey != "" {
		key := wire.RuntimeKey
		spec.RuntimeKey = &key
	}
	return spec
}

func denominatorFromSpec(d models.FractionalPercentDenominator) typev3.FractionalPercent_DenominatorType {
	switch d {
	case models.DenominatorTenThousand:
		return typev3.FractionalPercent_TEN_THOUSAND
	case models.DenominatorMillion:
		return typev3.FractionalPercent_MILLION
	default:
		return typev3.FractionalPercent_HUNDRED
	}
}

func denominatorToSpec(d typev3.FractionalPercent_DenominatorType) models.FractionalPercentDenominator {
	switch d {
	case typev3.FractionalPercent_TEN_THOUSAND:
		return models.DenominatorTenThousand
	case typev3.FractionalPercent_MILLION:
		return models.DenominatorMillion
	default:
		return models.DenominatorHundred
	}
}

func corsPolicyToAny(cfg *models.CorsFilterConfig) (*anypb.Any, error) {
	policy := &corsv3.CorsPolicy{}
	for _, origin := range cfg.AllowOrigins {
		policy.AllowOriginStringMatch = append(policy.AllowOriginStringMatch, exactStringMatcher(origin))
	}
	if len(cfg.AllowMethods) > 0 {
		policy.AllowMethods = strings.Join(cfg.AllowMethods, ", ")
	}
	if len(cfg.AllowHeaders) > 0 {
		policy.AllowHeaders = strings.Join(cfg.AllowHeaders, ", ")
	}
	if len(cfg.ExposeHeaders) > 0 {
		policy.ExposeHeaders = strings.Join(cfg.ExposeHeaders, ", ")
	}
	if cfg.MaxAge != nil {
		policy.MaxAge = strconv.FormatUint(*cfg.MaxAge, 10)
	}
	if cfg.AllowCredentials != nil {
		policy.AllowCredentials = wrapperspb.Bool(*cfg.AllowCredentials)
	}
	return anypb.New(policy)
}

func corsPolicyToSpec(wire *corsv3.CorsPolicy) *models.CorsFilterConfig {
	cfg := &models.CorsFilterConfig{}
	for _, match := range wire.AllowOriginStringMatch {
		if exact, ok := match.MatchPattern.(*matcher.StringMatcher_Exact); ok {
			cfg.AllowOrigins = append(cfg.AllowOrigins, exact.Exact)
		}
	}
	cfg.AllowMethods = splitHeaderList(wire.AllowMethods)
	cfg.AllowHeaders = splitHeaderList(wire.AllowHeaders)
	cfg.ExposeHeaders = splitHeaderList(wire.ExposeHeaders)
	if wire.MaxAge != "" {
		if v, err := strconv.ParseUint(wire.MaxAge, 10, 64); err == nil {
			cfg.MaxAge = &v
		}
	}
	if wire.AllowCredentials != nil {
		v := wire.AllowCredentials.GetValue()
		cfg.AllowCredentials = &v
	}
	return cfg
}

func splitHeaderList(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func filterChainFromSpec(chain *models.FilterChainSpec) (*listener.FilterChain, error) {
	filters := make([]*listener.Filter, 0, len(chain.Filters))
	for i, f := range chain.Filters {
		wire, err := listenerFilterFromSpec(&f)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		filters = append(filters, wire)
	}

	out := &listener.FilterChain{Filters: filters}
	if chain.Name != nil {
		out.Name = *chain.Name
	}
	return out, nil
}

func filterChainToSpec(chain *listener.FilterChain) (*models.FilterChainSpec, error) {
	spec := &models.FilterChainSpec{}
	if chain.Name != "" {
		name := chain.Name
		spec.Name = &name
	}

	for i, f := range chain.Filters {
		parsed, err := listenerFilterToSpec(f)
		if err != nil {
			return nil, fmt.Errorf("filters[%d]: %w", i, err)
		}
		spec.Filters = append(spec.Filters, *parsed)
	}
	return spec, nil
}

func listenerFilterFromSpec(f *models.ListenerFilterSpec) (*listener.Filter, error) {
	switch f.Type {
	case models.ListenerFilterHTTPConnectionManager:
		if f.RouteConfigName == "" {
			return nil, fmt.Errorf("filter %q: httpConnectionManager requires routeConfigName", f.Name)
		}

		routerConfig, err := anypb.New(&routerv3.Router{})
		if err != nil {
			return nil, fmt.Errorf("filter %q: marshal router config: %w", f.Name, err)
		}

		manager := &hcm.HttpConnectionManager{
			CodecType:  hcm.HttpConnectionManager_AUTO,
			StatPrefix: f.Name,
			RouteSpecifier: &hcm.HttpConnectionManager_Rds{
				Rds: &hcm.Rds{
					ConfigSource:    adsConfigSource(),
					RouteConfigName: f.RouteConfigName,
				},
			},
			HttpFilters: []*hcm.HttpFilter{{
				Name:       wellknown.Router,
				ConfigType: &hcm.HttpFilter_TypedConfig{TypedConfig: routerConfig},
			}},
		}

		typed, err := anypb.New(manager)
		if err != nil {
			return nil, fmt.Errorf("filter %q: marshal connection manager: %w", f.Name, err)
		}
		return &listener.Filter{
			Name:       f.Name,
			ConfigType: &listener.Filter_TypedConfig{TypedConfig: typed},
		}, nil

	case models.ListenerFilterTCPProxy:
		if f.Cluster == "" {
			return nil, fmt.Errorf("filter %q: tcpProxy requires cluster", f.Name)
		}

		proxy := &tcpproxyv3.TcpProxy{
			StatPrefix:       f.Name,
			ClusterSpecifier: &tcpproxyv3.TcpProxy_Cluster{Cluster: f.Cluster},
		}
		typed, err := anypb.New(proxy)
		if err != nil {
			return nil, fmt.Errorf("filter %q: marshal tcp proxy: %w", f.Name, err)
		}
		return &listener.Filter{
			Name:       f.Name,
			ConfigType: &listener.Filter_TypedConfig{TypedConfig: typed},
		}, nil

	default:
		return nil, fmt.Errorf("filter %q: unknown filter type %q", f.Name, f.Type)
	}
}

func listenerFilterToSpec(f *listener.Filter) (*models.ListenerFilterSpec, error) {
	typed := f.GetTypedConfig()
	if typed == nil {
		return nil, fmt.Errorf("filter %q has no typed config", f.Name)
	}

	switch {
	case typed.MessageIs(&hcm.HttpConnectionManager{}):
		var manager hcm.HttpConnectionManager
		if err := typed.UnmarshalTo(&manager); err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Name, err)
		}
		rds := manager.GetRds()
		if rds == nil {
			return nil, fmt.Errorf("filter %q: connection manager is not RDS-backed", f.Name)
		}
		return &models.ListenerFilterSpec{
			Name:            f.Name,
			Type:            models.ListenerFilterHTTPConnectionManager,
			RouteConfigName: rds.GetRouteConfigName(),
		}, nil

	case typed.MessageIs(&tcpproxyv3.TcpProxy{}):
		var proxy tcpproxyv3.TcpProxy
		if err := typed.UnmarshalTo(&proxy); err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Name, err)
		}
		return &models.ListenerFilterSpec{
			Name:    f.Name,
			Type:    models.ListenerFilterTCPProxy,
			Cluster: proxy.GetCluster(),
		}, nil

	default:
		return nil, fmt.Errorf("filter %q: unsupported filter config %q", f.Name, typed.TypeUrl)
	}
}

func adsConfigSource() *core.ConfigSource {
	return &core.ConfigSource{
		ResourceApiVersion:    core.ApiVersion_V3,
		ConfigSourceSpecifier: &core.ConfigSource_Ads{Ads: &core.AggregatedConfigSource{}},
	}
}

func socketAddress(host string, port uint32) *core.Address {
	return &core.Address{
		Address: &core.Address_SocketAddress{
			SocketAddress: &core.SocketAddress{
				Protocol:      core.SocketAddress_TCP,
				Address:       host,
				PortSpecifier: &core.SocketAddress_PortValue{PortValue: port},
			},
		},
	}
}

func exactStringMatcher(value string) *matcher.StringMatcher {
	return &matcher.StringMatcher{
		MatchPattern: &matcher.StringMatcher_Exact{Exact: value},
	}
}

func regexStringMatcher(regex string) *matcher.StringMatcher {
	return &matcher.StringMatcher{
		MatchPattern: &matcher.StringMatcher_SafeRegex{
			SafeRegex: &matcher.RegexMatcher{Regex: regex},
		},
	}
}

func stringMatcherToSpec(m *matcher.StringMatcher) (value, regex *string, err error) {
	switch pattern := m.MatchPattern.(type) {
	case *matcher.StringMatcher_Exact:
		v := pattern.Exact
		return &v, nil, nil
	case *matcher.StringMatcher_SafeRegex:
		r := pattern.SafeRegex.GetRegex()
		return nil, &r, nil
	default:
		return nil, nil, fmt.Errorf("unsupported string match pattern %T", m.MatchPattern)
	}
}

func secondsOf(d *durationpb.Duration) uint64 {
	return uint64(d.AsDuration() / time.Second)
}
