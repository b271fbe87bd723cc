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

	"github.com/flowplane/flowplane/pkg/constants"
)

// ScopedFilterConfigs maps an Envoy HTTP filter name to its per-scope
// override. The filter name selects which config shape the value decodes
// into: local_ratelimit and cors decode natively, every other name must be
// a typed passthrough carrying its own type URL.
type ScopedFilterConfigs map[string]*ScopedFilterConfig

func (m *ScopedFilterConfigs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(ScopedFilterConfigs, len(raw))
	for name, body := range raw {
		cfg, err := decodeScopedFilterConfig(name, body)
		if err != nil {
			return err
		}
		out[name] = cfg
	}
	*m = out
	return nil
}

// ScopedFilterConfig is one per-scope filter override. Exactly one variant
// is populated, selected by the filter name it is keyed under.
type ScopedFilterConfig struct {
	LocalRateLimit *LocalRateLimitConfig
	Cors           *CorsFilterConfig
	Typed          *TypedFilterConfig
}

func (c ScopedFilterConfig) MarshalJSON() ([]byte, error) {
	switch {
	case c.LocalRateLimit != nil:
		return json.Marshal(c.LocalRateLimit)
	case c.Cors != nil:
		return json.Marshal(c.Cors)
	case c.Typed != nil:
		return json.Marshal(c.Typed)
	default:
		return nil, fmt.Errorf("scoped filter config has no variant set")
	}
}

func decodeScopedFilterConfig(name string, data []byte) (*ScopedFilterConfig, error) {
	switch name {
	case constants.FilterLocalRateLimit:
		var cfg LocalRateLimitConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", name, err)
		}
		return &ScopedFilterConfig{LocalRateLimit: &cfg}, nil
	case constants.FilterCORS:
		var cfg CorsFilterConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", name, err)
		}
		return &ScopedFilterConfig{Cors: &cfg}, nil
	default:
		var cfg TypedFilterConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid scoped config for filter %q: %w", name, err)
		}
		if cfg.TypeURL == "" {
			return nil, fmt.Errorf("scoped config for filter %q requires a typeUrl", name)
		}
		return &ScopedFilterConfig{Typed: &cfg}, nil
	}
}

// LocalRateLimitConfig mirrors the Envoy local rate limit filter config.
// Member names stay snake_case to match the filter's wire shape.
type LocalRateLimitConfig struct {
	StatPrefix                      string                    `json:"stat_prefix"`
	TokenBucket                     *TokenBucketConfig        `json:"token_bucket,omitempty"`
	StatusCode                      *uint32                   `json:"status_code,omitempty"`
	FilterEnabled                   *RuntimeFractionalPercent `json:"filter_enabled,omitempty"`
	FilterEnforced                  *RuntimeFractionalPercent `json:"filter_enforced,omitempty"`
	PerDownstreamConnection         *bool                     `json:"per_downstream_connection,omitempty"`
	RateLimitedAsResourceExhausted  *bool                     `json:"rate_limited_as_resource_exhausted,omitempty"`
	MaxDynamicDescriptors           *uint32                   `json:"max_dynamic_descriptors,omitempty"`
	AlwaysConsumeDefaultTokenBucket *bool                     `json:"always_consume_default_token_bucket,omitempty"`
}

// TokenBucketConfig is the bucket backing a local rate limit.
type TokenBucketConfig struct {
	MaxTokens      uint32  `json:"max_tokens"`
	TokensPerFill  *uint32 `json:"tokens_per_fill,omitempty"`
	FillIntervalMs uint64  `json:"fill_interval_ms"`
}

// FractionalPercentDenominator scales a runtime fractional percent.
type FractionalPercentDenominator string

const (
	DenominatorHundred     FractionalPercentDenominator = "HUNDRED"
	DenominatorTenThousand FractionalPercentDenominator = "TEN_THOUSAND"
	DenominatorMillion     FractionalPercentDenominator = "MILLION"
)

func (d *FractionalPercentDenominator) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch FractionalPercentDenominator(strings.ToUpper(raw)) {
	case DenominatorHundred, DenominatorTenThousand, DenominatorMillion:
		*d = FractionalPercentDenominator(strings.ToUpper(raw))
		return nil
	default:
		return fmt.Errorf("unknown fractional percent denominator %q", raw)
	}
}

// RuntimeFractionalPercent gates a filter by a runtime-adjustable fraction.
type RuntimeFractionalPercent struct {
	RuntimeKey  *string                      `json:"runtime_key,omitempty"`
	Numerator   uint32                       `json:"numerator"`
	Denominator FractionalPercentDenominator `json:"denominator"`
}

// CorsFilterConfig is the per-scope CORS policy override.
type CorsFilterConfig struct {
	AllowOrigins     []string `json:"allowOrigins"`
	AllowMethods     []string `json:"allowMethods,omitempty"`
	AllowHeaders     []string `json:"allowHeaders,omitempty"`
	ExposeHeaders    []string `json:"exposeHeaders,omitempty"`
	MaxAge           *uint64  `json:"maxAge,omitempty"`
	AllowCredentials *bool    `json:"allowCredentials,omitempty"`
}

// TypedFilterConfig carries an arbitrary filter override as a protobuf Any:
// the type URL plus the base64-encoded serialized message.
type TypedFilterConfig struct {
	TypeURL string `json:"typeUrl"`
	Value   string `json:"value,omitempty"`
}
