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

// ValidateClusterSpec checks a cluster payload: name grammar, at least one
// well-formed endpoint, and enum-valued tuning fields.
func ValidateClusterSpec(spec *models.ClusterSpec) error {
	if spec.Name == "" {
		return newError("name", "Cluster name is required")
	}
	if len(spec.Name) > 255 {
		return newError("name", "Cluster name must be 1-255 characters")
	}
	if !clusterNameRegex.MatchString(spec.Name) {
		return newError("name", "Cluster name may only contain letters, digits, underscores, and hyphens")
	}

	if len(spec.Endpoints) == 0 {
		return newError("endpoints", "At least one endpoint is required")
	}
	for i, endpoint := range spec.Endpoints {
		if strings.TrimSpace(endpoint.Host) == "" {
			return newError(fmt.Sprintf("endpoints[%d].host", i), "Endpoint host is required")
		}
		if err := validatePort(fmt.Sprintf("endpoints[%d].port", i), endpoint.Port); err != nil {
			return err
		}
	}

	if spec.LbPolicy != nil && *spec.LbPolicy != "" {
		switch *spec.LbPolicy {
		case models.LbPolicyRoundRobin, models.LbPolicyLeastRequest, models.LbPolicyRandom,
			models.LbPolicyRingHash, models.LbPolicyMaglev:
		default:
			return newError("lbPolicy", fmt.Sprintf("Unsupported load balancing policy '%s'", *spec.LbPolicy))
		}
	}

	if spec.DnsLookupFamily != nil && *spec.DnsLookupFamily != "" {
		switch *spec.DnsLookupFamily {
		case models.DnsLookupFamilyV4, models.DnsLookupFamilyV6, models.DnsLookupFamilyAuto:
		default:
			return newError("dnsLookupFamily", fmt.Sprintf("Unsupported DNS lookup family '%s'", *spec.DnsLookupFamily))
		}
	}

	for i, check := range spec.HealthChecks {
		switch check.Type {
		case models.HealthCheckTypeHTTP:
			if check.HTTP == nil || strings.TrimSpace(check.HTTP.Path) == "" {
				return newError(fmt.Sprintf("healthChecks[%d].path", i), "HTTP health check path is required")
			}
		case models.HealthCheckTypeTCP:
			if check.TCP == nil {
				return newError(fmt.Sprintf("healthChecks[%d]", i), "TCP health check is missing its body")
			}
		default:
			return newError(fmt.Sprintf("healthChecks[%d].type", i), fmt.Sprintf("Unsupported health check type '%s'", check.Type))
		}
	}

	return nil
}
