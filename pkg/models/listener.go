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

// ListenerProtocol is the transport protocol a listener accepts.
type ListenerProtocol string

const (
	ListenerProtocolHTTP ListenerProtocol = "HTTP"
	ListenerProtocolTCP  ListenerProtocol = "TCP"
)

// ListenerFilterType discriminates the listener filter union.
type ListenerFilterType string

const (
	ListenerFilterHTTPConnectionManager ListenerFilterType = "httpConnectionManager"
	ListenerFilterTCPProxy              ListenerFilterType = "tcpProxy"
)

// ListenerSpec is the canonical representation of a listener. It is both
// the API payload shape and the form persisted in the listeners table.
type ListenerSpec struct {
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	Port         uint32            `json:"port"`
	Protocol     ListenerProtocol  `json:"protocol,omitempty"`
	FilterChains []FilterChainSpec `json:"filterChains"`
}

// EffectiveProtocol returns the configured protocol or HTTP.
func (l *ListenerSpec) EffectiveProtocol() ListenerProtocol {
	if l.Protocol == "" {
		return ListenerProtocolHTTP
	}
	return l.Protocol
}

// FilterChainSpec is one ordered set of network filters on a listener.
type FilterChainSpec struct {
	Name    *string              `json:"name,omitempty"`
	Filters []ListenerFilterSpec `json:"filters"`
}

// ListenerFilterSpec is one network filter in a chain. HTTP connection
// manager filters reference a route configuration by name; TCP proxy
// filters reference a cluster.
type ListenerFilterSpec struct {
	Name            string             `json:"name"`
	Type            ListenerFilterType `json:"type"`
	RouteConfigName string             `json:"routeConfigName,omitempty"`
	Cluster         string             `json:"cluster,omitempty"`
}
