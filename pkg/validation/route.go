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

	uritemplate "github.com/envoyproxy/go-control-plane/envoy/extensions/path/match/uri_template/v3"
	"google.golang.org/protobuf/proto"

	"github.com/flowplane/flowplane/pkg/models"
)

// ValidateRouteConfigSpec checks a route configuration payload: virtual host
// and route shapes, path/header/query matches, actions, and the pairing
// rules between template path matches and rewrites.
func ValidateRouteConfigSpec(spec *models.RouteConfigSpec) error {
	if spec.Name == "" {
		return newError("name", "Route configuration name is required")
	}
	if len(spec.Name) > 100 {
		return newError("name", "Route configuration name must be 1-100 characters")
	}
	if len(spec.VirtualHosts) == 0 {
		return newError("virtualHosts", "At least one virtual host is required")
	}

	for i, vh := range spec.VirtualHosts {
		vhField := fmt.Sprintf("virtualHosts[%d]", i)
		if vh.Name == "" {
			return newError(vhField+".name", "Virtual host name is required")
		}
		if len(vh.Name) > 100 {
			return newError(vhField+".name", "Virtual host name must be 1-100 characters")
		}
		if len(vh.Domains) == 0 {
			return newError(vhField+".domains", "Virtual host requires at least one domain")
		}
		for _, domain := range vh.Domains {
			if strings.TrimSpace(domain) == "" {
				return newError(vhField+".domains", "Virtual host domains must not be empty")
			}
		}
		if len(vh.Routes) == 0 {
			return newError(vhField+".routes", "Virtual host requires at least one route")
		}

		for j, route := range vh.Routes {
			routeField := fmt.Sprintf("%s.routes[%d]", vhField, j)
			if route.Name != nil && (*route.Name == "" || len(*route.Name) > 100) {
				return newError(routeField+".name", "Route name must be 1-100 characters")
			}
			if err := validateRouteMatch(routeField+".match", &route.Match); err != nil {
				return err
			}
			if err := validateRouteAction(routeField+".action", &route.Action); err != nil {
				return err
			}
			if err := validateMatchActionPairing(routeField, &route.Match, &route.Action); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRouteMatch(field string, match *models.RouteMatchSpec) error {
	switch match.Path.Type {
	case models.PathMatchExact, models.PathMatchPrefix, models.PathMatchRegex:
		if strings.TrimSpace(match.Path.Value) == "" {
			return newError(field+".path", "Route match path value must not be empty")
		}
	case models.PathMatchTemplate:
		if strings.TrimSpace(match.Path.Template) == "" {
			return newError(field+".path", "Route match template must not be empty")
		}
		if err := ensureValidURITemplate(field+".path", match.Path.Template); err != nil {
			return err
		}
	default:
		return newError(field+".path", fmt.Sprintf("Unsupported path match type '%s'", match.Path.Type))
	}

	for i, header := range match.Headers {
		if strings.TrimSpace(header.Name) == "" {
			return newError(fmt.Sprintf("%s.headers[%d].name", field, i), "Header match name must not be empty")
		}
	}
	for i, param := range match.QueryParameters {
		if strings.TrimSpace(param.Name) == "" {
			return newError(fmt.Sprintf("%s.queryParameters[%d].name", field, i), "Query parameter match name must not be empty")
		}
	}

	return nil
}

func validateRouteAction(field string, action *models.RouteAction) error {
	switch action.Type {
	case models.RouteActionForward:
		forward := action.Forward
		if forward == nil || strings.TrimSpace(forward.Cluster) == "" {
			return newError(field+".cluster", "Forward action requires a cluster name")
		}
		if forward.PrefixRewrite != nil {
			if strings.TrimSpace(*forward.PrefixRewrite) == "" {
				return newError(field+".prefixRewrite", "prefixRewrite must not be an empty string")
			}
			if !strings.HasPrefix(*forward.PrefixRewrite, "/") {
				return newError(field+".prefixRewrite", "prefixRewrite must start with a slash")
			}
		}
		if forward.TemplateRewrite != nil {
			if strings.TrimSpace(*forward.TemplateRewrite) == "" {
				return newError(field+".templateRewrite", "templateRewrite must not be an empty string")
			}
			if err := ensureValidURITemplate(field+".templateRewrite", *forward.TemplateRewrite); err != nil {
				return err
			}
		}
	case models.RouteActionWeighted:
		weighted := action.Weighted
		if weighted == nil || len(weighted.Clusters) == 0 {
			return newError(field+".clusters", "Weighted action must include at least one cluster")
		}
		for i, cluster := range weighted.Clusters {
			if strings.TrimSpace(cluster.Name) == "" {
				return newError(fmt.Sprintf("%s.clusters[%d].name", field, i), "Weighted action cluster names must not be empty")
			}
		}
		for i, cluster := range weighted.Clusters {
			if cluster.Weight == 0 {
				return newError(fmt.Sprintf("%s.clusters[%d].weight", field, i), "Weighted action cluster weights must be greater than zero")
			}
		}
	case models.RouteActionRedirect:
		redirect := action.Redirect
		if redirect == nil {
			return nil
		}
		if (redirect.HostRedirect != nil && strings.TrimSpace(*redirect.HostRedirect) == "") ||
			(redirect.PathRedirect != nil && strings.TrimSpace(*redirect.PathRedirect) == "") {
			return newError(field, "Redirect action values must not be empty strings")
		}
	default:
		return newError(field, fmt.Sprintf("Unsupported route action type '%s'", action.Type))
	}

	return nil
}

// validateMatchActionPairing enforces the template-path pairing rules:
// template matches must forward and may not prefix-rewrite, and a
// templateRewrite is only meaningful against a template match.
func validateMatchActionPairing(field string, match *models.RouteMatchSpec, action *models.RouteAction) error {
	if match.Path.Type == models.PathMatchTemplate {
		if action.Type != models.RouteActionForward {
			return newError(field, "Template path matches require a forward action")
		}
		if action.Forward != nil && action.Forward.PrefixRewrite != nil {
			return newError(field, "Template path matches do not support prefixRewrite")
		}
		return nil
	}

	if action.Type == models.RouteActionForward && action.Forward != nil && action.Forward.TemplateRewrite != nil {
		return newError(field, "templateRewrite requires a template path match")
	}
	return nil
}

// ensureValidURITemplate checks the template against Envoy's uri_template
// grammar, then round-trips it through the URI template match proto; a
// non-empty encoded form is required.
func ensureValidURITemplate(field, template string) error {
	if !isWellFormedURITemplate(template) {
		return newError(field, "Invalid URI template")
	}
	encoded, err := proto.Marshal(&uritemplate.UriTemplateMatchConfig{PathTemplate: template})
	if err != nil || len(encoded) == 0 {
		return newError(field, "Invalid URI template")
	}
	return nil
}

// isWellFormedURITemplate scans a path template the way Envoy's
// uri_template matcher parses it: a leading slash, literal segments,
// {var} or {var=subpath} captures with distinct identifier names, and the
// ** glob only in the final segment.
func isWellFormedURITemplate(template string) bool {
	if !strings.HasPrefix(template, "/") {
		return false
	}

	seen := map[string]bool{}
	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return false
			}
			capture := template[i+1 : i+end]
			name := capture
			if eq := strings.IndexByte(capture, '='); eq >= 0 {
				name = capture[:eq]
				if capture[eq+1:] == "" {
					return false
				}
			}
			if !uriTemplateVarRegex.MatchString(name) || seen[name] {
				return false
			}
			seen[name] = true
			i += end
		case '}':
			return false
		case '*':
			if i+1 < len(template) && template[i+1] == '*' {
				// ** matches the rest of the path, nothing may follow
				return i+2 == len(template)
			}
		}
	}
	return true
}
