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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowplane/flowplane/pkg/constants"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestPersonalAccessTokenIsExpired(t *testing.T) {
	tests := []struct {
		name     string
		token    PersonalAccessToken
		expected bool
	}{
		{
			name:     "no expiry",
			token:    PersonalAccessToken{Status: TokenStatusActive},
			expected: false,
		},
		{
			name: "future expiry",
			token: PersonalAccessToken{
				Status:    TokenStatusActive,
				ExpiresAt: timePtr(time.Now().Add(time.Hour)),
			},
			expected: false,
		},
		{
			name: "past expiry",
			token: PersonalAccessToken{
				Status:    TokenStatusActive,
				ExpiresAt: timePtr(time.Now().Add(-time.Hour)),
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.token.IsExpired())
		})
	}
}

func TestPersonalAccessTokenIsActive(t *testing.T) {
	tests := []struct {
		name     string
		token    PersonalAccessToken
		expected bool
	}{
		{
			name:     "active without expiry",
			token:    PersonalAccessToken{Status: TokenStatusActive},
			expected: true,
		},
		{
			name: "active with future expiry",
			token: PersonalAccessToken{
				Status:    TokenStatusActive,
				ExpiresAt: timePtr(time.Now().Add(time.Hour)),
			},
			expected: true,
		},
		{
			name: "active but past expiry",
			token: PersonalAccessToken{
				Status:    TokenStatusActive,
				ExpiresAt: timePtr(time.Now().Add(-time.Hour)),
			},
			expected: false,
		},
		{
			name:     "revoked",
			token:    PersonalAccessToken{Status: TokenStatusRevoked},
			expected: false,
		},
		{
			name:     "marked expired",
			token:    PersonalAccessToken{Status: TokenStatusExpired},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.token.IsActive())
		})
	}
}

func TestPersonalAccessTokenHasScope(t *testing.T) {
	token := PersonalAccessToken{
		Status: TokenStatusActive,
		Scopes: []string{constants.ScopeClustersRead, constants.ScopeRouteConfigsWrite},
	}

	assert.True(t, token.HasScope(constants.ScopeClustersRead))
	assert.True(t, token.HasScope(constants.ScopeRouteConfigsWrite))
	assert.False(t, token.HasScope(constants.ScopeTokensWrite))
	assert.False(t, token.HasScope(""))
}
