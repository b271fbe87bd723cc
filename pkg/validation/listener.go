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
	"fmt"
	"strings"

	"github.com/flowplane/flowplane/pkg/models"
)

// ValidateListenerSpec checks a listener payload: bind address and port,
// protocol, and that every filter chain carries usable filters.
func ValidateListenerSpec(spec *models.ListenerSpec) error {
	if spec.Name == "" {
		return newError("name", "Listener name is required")
	}
	if len(spec.Name) > 255 {
		return newError("name", "Listener name must be 1-255 characters")
	}
	if strings.TrimSpace(spec.Address) == "" {
		return newError("address", "Listener address is required")
	}
	if err := validatePort("port", spec.Port); err != nil {
		return err
	}

	switch spec.EffectiveProtocol() {
	case models.ListenerProtocolHTTP, models.ListenerProtocolTCP:
	default:
		return newError("protocol", fmt.Sprintf("Unsupported listener protocol '%s'", spec.Protocol))
	}

	if len(spec.FilterChains) == 0 {
		return newError("filterChains", "At least one filter chain is required")
	}
	for i, chain := range spec.FilterChains {
		chainField := fmt.Sprintf("filterChains[%d]", i)
		if len(chain.Filters) == 0 {
			return newError(chainField+".filters", "At least one filter is required")
		}
		for j, filter := range chain.Filters {
			filterField := fmt.Sprintf("%s.filters[%d]", chainField, j)
			switch filter.Type {
			case models.ListenerFilterHTTPConnectionManager:
				if strings.TrimSpace(filter.RouteConfigName) == "" {
					return newError(filterField+".routeConfigName", "httpConnectionManager filters require a routeConfigName")
				}
			case models.ListenerFilterTCPProxy:
				if strings.TrimSpace(filter.Cluster) == "" {
					return newError(filterField+".cluster", "tcpProxy filters require a cluster")
				}
			default:
				return newError(filterField+".type", fmt.Sprintf("Unsupported listener filter type '%s'", filter.Type))
			}
		}
	}

	return nil
}
