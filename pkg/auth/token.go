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

// Package auth issues and verifies the personal access tokens guarding the
// REST API. Token secrets are random, prefixed, and stored only as SHA-256
// hashes; the plaintext leaves the process exactly once, on create and on
// rotate.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/flowplane/flowplane/pkg/constants"
)

// GenerateSecret returns a fresh bearer secret and the hash it is stored
// under. The secret is the token prefix followed by hex-encoded random
// bytes.
func GenerateSecret() (secret, hash string, err error) {
	raw := make([]byte, constants.TokenSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	secret = constants.TokenPrefix + hex.EncodeToString(raw)
	return secret, HashSecret(secret), nil
}

// HashSecret returns the SHA-256 hex digest of a secret. The digest is
// deterministic so authentication can look tokens up by hash.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// MaskSecret renders a secret safe for logs, keeping the first eight and
// last four characters.
func MaskSecret(secret string) string {
	if len(secret) <= 12 {
		return "****"
	}
	return secret[:8] + "****" + secret[len(secret)-4:]
}
