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

// Package validation enforces the field and cross-field constraints of the
// canonical resource models before anything is persisted or translated to
// xDS. Validators stop at the first violation and return a *ValidationError
// whose message is written for API consumers.
package validation

import (
	"fmt"
	"regexp"

	"github.com/flowplane/flowplane/pkg/models"
)

// ValidationError is a field-level validation failure. Field locates the
// offending value when one can be named; Message stands alone.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	clusterNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenNameRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	scopeRegex       = regexp.MustCompile(`^[a-z][a-z-]*:[a-z]+$`)

	// Envoy uri_template capture names: identifier, no leading digit
	uriTemplateVarRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// ValidateTokenName checks a personal access token name.
func ValidateTokenName(name string) error {
	if !tokenNameRegex.MatchString(name) {
		return newError("name", "Token name must be 3-64 characters of letters, digits, underscores, and hyphens")
	}
	return nil
}

// ValidateScope checks a single scope string against the scope grammar.
func ValidateScope(scope string) error {
	if !scopeRegex.MatchString(scope) {
		return newError("scopes", fmt.Sprintf("Invalid scope '%s'", scope))
	}
	return nil
}

// ValidateScopes checks a non-empty list of scope strings.
func ValidateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return newError("scopes", "At least one scope is required")
	}
	for _, scope := range scopes {
		if err := ValidateScope(scope); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTokenStatus checks a token status transition target.
func ValidateTokenStatus(status models.TokenStatus) error {
	switch status {
	case models.TokenStatusActive, models.TokenStatusRevoked, models.TokenStatusExpired:
		return nil
	}
	return newError("status", fmt.Sprintf("Invalid token status '%s'", status))
}

func validatePort(field string, port uint32) error {
	if port == 0 || port > 65535 {
		return newError(field, "Port must be between 1 and 65535")
	}
	return nil
}
