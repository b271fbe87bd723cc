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
)

// RouteConfigSpec is the canonical representation of a route configuration.
// It is both the API payload shape and the form persisted in the routes table.
type RouteConfigSpec struct {
	Name         string            `json:"name"`
	VirtualHosts []VirtualHostSpec `json:"virtualHosts"`
}

// VirtualHostSpec groups routes under a set of domains.
type VirtualHostSpec struct {
	Name                 string              `json:"name"`
	Domains              []string            `json:"domains"`
	Routes               []RouteRuleSpec     `json:"routes"`
	TypedPerFilterConfig ScopedFilterConfigs `json:"typedPerFilterConfig,omitempty"`
}

// RouteRuleSpec pairs a match with an action.
type RouteRuleSpec struct {
	Name                 *string             `json:"name,omitempty"`
	Match                RouteMatchSpec      `json:"match"`
	Action               RouteAction         `json:"action"`
	TypedPerFilterConfig ScopedFilterConfigs `json:"typedPerFilterConfig,omitempty"`
}

// RouteMatchSpec selects requests by path plus optional header and query
// parameter constraints.
type RouteMatchSpec struct {
	Path            PathMatch                 `json:"path"`
	Headers         []HeaderMatchSpec         `json:"headers,omitempty"`
	QueryParameters []QueryParameterMatchSpec `json:"queryParameters,omitempty"`
}

// PathMatchType discriminates the path match union.
type PathMatchType string

const (
	PathMatchExact    PathMatchType = "exact"
	PathMatchPrefix   PathMatchType = "prefix"
	PathMatchRegex    PathMatchType = "regex"
	PathMatchTemplate PathMatchType = "template"
)

// PathMatch is a tagged union over exact, prefix, regex and URI-template
// path matches. Exact/prefix/regex carry Value; template carries Template.
type PathMatch struct {
	Type     PathMatchType
	Value    string
	Template string
}

func (p PathMatch) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PathMatchTemplate:
		return json.Marshal(struct {
			Type     PathMatchType `json:"type"`
			Template string        `json:"template"`
		}{p.Type, p.Template})
	case PathMatchExact, PathMatchPrefix, PathMatchRegex:
		return json.Marshal(struct {
			Type  PathMatchType `json:"type"`
			Value string        `json:"value"`
		}{p.Type, p.Value})
	default:
		return nil, fmt.Errorf("unknown path match type %q", p.Type)
	}
}

func (p *PathMatch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     PathMatchType `json:"type"`
		Value    string        `json:"value"`
		Template string        `json:"template"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case PathMatchExact, PathMatchPrefix, PathMatchRegex:
		*p = PathMatch{Type: raw.Type, Value: raw.Value}
	case PathMatchTemplate:
		*p = PathMatch{Type: raw.Type, Template: raw.Template}
	default:
		return fmt.Errorf("unknown path match type %q", raw.Type)
	}
	return nil
}

// HeaderMatchSpec matches a request header by exact value, regex, or presence.
type HeaderMatchSpec struct {
	Name    string  `json:"name"`
	Value   *string `json:"value,omitempty"`
	Regex   *string `json:"regex,omitempty"`
	Present *bool   `json:"present,omitempty"`
}

// QueryParameterMatchSpec matches a query parameter by exact value, regex,
// or presence.
type QueryParameterMatchSpec struct {
	Name    string  `json:"name"`
	Value   *string `json:"value,omitempty"`
	Regex   *string `json:"regex,omitempty"`
	Present *bool   `json:"present,omitempty"`
}

// RouteActionType discriminates the route action union.
type RouteActionType string

const (
	RouteActionForward  RouteActionType = "forward"
	RouteActionWeighted RouteActionType = "weighted"
	RouteActionRedirect RouteActionType = "redirect"
)

// RouteAction is a tagged union over forward, weighted-cluster and redirect
// actions. Exactly one variant is populated, selected by Type.
type RouteAction struct {
	Type     RouteActionType
	Forward  *ForwardAction
	Weighted *WeightedAction
	Redirect *RedirectAction
}

// ForwardAction sends matched traffic to a single cluster.
type ForwardAction struct {
	Cluster         string  `json:"cluster"`
	TimeoutSeconds  *uint64 `json:"timeoutSeconds,omitempty"`
	PrefixRewrite   *string `json:"prefixRewrite,omitempty"`
	TemplateRewrite *string `json:"templateRewrite,omitempty"`
}

// WeightedAction splits matched traffic across clusters by weight.
type WeightedAction struct {
	Clusters    []WeightedClusterSpec `json:"clusters"`
	TotalWeight *uint32               `json:"totalWeight,omitempty"`
}

// RedirectAction answers matched traffic with an HTTP redirect.
type RedirectAction struct {
	HostRedirect *string `json:"hostRedirect,omitempty"`
	PathRedirect *string `json:"pathRedirect,omitempty"`
	ResponseCode *uint32 `json:"responseCode,omitempty"`
}

// WeightedClusterSpec is one weighted target of a weighted action.
type WeightedClusterSpec struct {
	Name                 string              `json:"name"`
	Weight               uint32              `json:"weight"`
	TypedPerFilterConfig ScopedFilterConfigs `json:"typedPerFilterConfig,omitempty"`
}

func (a RouteAction) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case RouteActionForward:
		if a.Forward == nil {
			return nil, fmt.Errorf("forward action missing body")
		}
		return json.Marshal(struct {
			Type RouteActionType `json:"type"`
			*ForwardAction
		}{a.Type, a.Forward})
	case RouteActionWeighted:
		if a.Weighted == nil {
			return nil, fmt.Errorf("weighted action missing body")
		}
		return json.Marshal(struct {
			Type RouteActionType `json:"type"`
			*WeightedAction
		}{a.Type, a.Weighted})
	case RouteActionRedirect:
		if a.Redirect == nil {
			return nil, fmt.Errorf("redirect action missing body")
		}
		return json.Marshal(struct {
			Type RouteActionType `json:"type"`
			*RedirectAction
		}{a.Type, a.Redirect})
	default:
		return nil, fmt.Errorf("unknown route action type %q", a.Type)
	}
}

func (a *RouteAction) UnmarshalJSON(data []byte) error {
	var head struct {
		Type RouteActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case RouteActionForward:
		var body ForwardAction
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*a = RouteAction{Type: head.Type, Forward: &body}
	case RouteActionWeighted:
		var body WeightedAction
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*a = RouteAction{Type: head.Type, Weighted: &body}
	case RouteActionRedirect:
		var body RedirectAction
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		*a = RouteAction{Type: head.Type, Redirect: &body}
	default:
		return fmt.Errorf("unknown route action type %q", head.Type)
	}
	return nil
}

// PathPrefix summarizes the first route's path match for the routes table
// summary column: the raw value for exact/prefix matches, "regex:{value}",
// "template:{template}", or "*" when no route exists.
func (r *RouteConfigSpec) PathPrefix() string {
	for _, vh := range r.VirtualHosts {
		for _, route := range vh.Routes {
			switch route.Match.Path.Type {
			case PathMatchExact, PathMatchPrefix:
				return route.Match.Path.Value
			case PathMatchRegex:
				return "regex:" + route.Match.Path.Value
			case PathMatchTemplate:
				return "template:" + route.Match.Path.Template
			}
		}
	}
	return "*"
}

// ClusterTargets summarizes the first route's action for the routes table
// summary column: the forward cluster, the first weighted cluster,
// "__redirect__" for redirects, or "unknown" when no route exists.
func (r *RouteConfigSpec) ClusterTargets() string {
	for _, vh := range r.VirtualHosts {
		for _, route := range vh.Routes {
			switch route.Action.Type {
			case RouteActionForward:
				if route.Action.Forward != nil {
					return route.Action.Forward.Cluster
				}
			case RouteActionWeighted:
				if route.Action.Weighted != nil && len(route.Action.Weighted.Clusters) > 0 {
					return route.Action.Weighted.Clusters[0].Name
				}
				return ""
			case RouteActionRedirect:
				return "__redirect__"
			}
		}
	}
	return "unknown"
}
