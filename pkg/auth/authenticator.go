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

package auth

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/metrics"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

// ErrUnauthenticated covers every authentication failure with one message
// so responses never reveal whether a token exists.
var ErrUnauthenticated = errors.New("authentication failed")

// Authenticator resolves presented bearer secrets to active tokens.
type Authenticator struct {
	tokens *storage.TokenStore
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator over the token store.
func NewAuthenticator(tokens *storage.TokenStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, logger: logger}
}

// Authenticate verifies a bearer secret: prefix shape, hash lookup, active
// status, expiry. The token's last_used_at is updated best-effort; a
// failure there never fails the request. A non-nil error other than
// ErrUnauthenticated means the backing store was unavailable.
func (a *Authenticator) Authenticate(secret string) (*models.PersonalAccessToken, error) {
	if secret == "" || !strings.HasPrefix(secret, constants.TokenPrefix) {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrUnauthenticated
	}

	token, err := a.tokens.GetByHash(HashSecret(secret))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
			return nil, ErrUnauthenticated
		}
		metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !token.IsActive() {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrUnauthenticated
	}

	if err := a.tokens.UpdateLastUsed(token.ID, time.Now().UTC()); err != nil {
		a.logger.Warn("Failed to record token use",
			zap.Error(err),
			zap.String("id", token.ID))
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	return token, nil
}
