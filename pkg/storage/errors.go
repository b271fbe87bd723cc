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

package storage

import "errors"

// Common storage errors - implementation agnostic
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when a resource with the same name already exists
	ErrConflict = errors.New("resource already exists")

	// ErrDatabaseUnavailable is returned when the backing store cannot be reached
	ErrDatabaseUnavailable = errors.New("database storage is unavailable")
)

// IsConflictError checks if an error is a conflict error
// This function allows handlers to distinguish between conflict errors
// and other types of errors for appropriate logging and response handling
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDatabaseUnavailableError(err error) bool {
	return errors.Is(err, ErrDatabaseUnavailable)
}
