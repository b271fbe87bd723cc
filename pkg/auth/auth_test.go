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
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

func newTestService(t *testing.T) (*TokenService, *storage.TokenStore, *storage.AuditLogStore) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(storage.Options{Driver: storage.DriverSQLite, Path: dbPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	tokens := storage.NewTokenStore(db, logger)
	audit := storage.NewAuditLogStore(db, logger)
	return NewTokenService(tokens, audit, logger), tokens, audit
}

func testActor() AuditActor {
	return AuditActor{TokenID: "admin-1", ClientIP: "127.0.0.1", UserAgent: "curl/8.0"}
}

func TestGenerateSecret(t *testing.T) {
	secret, hash, err := GenerateSecret()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, "fp_"))
	assert.Len(t, secret, len("fp_")+64)
	assert.Equal(t, HashSecret(secret), hash)
	assert.Len(t, hash, 64)

	other, _, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestHashSecretDeterministic(t *testing.T) {
	assert.Equal(t, HashSecret("fp_abc"), HashSecret("fp_abc"))
	assert.NotEqual(t, HashSecret("fp_abc"), HashSecret("fp_abd"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("fp_short"))
	masked := MaskSecret("fp_0123456789abcdef")
	assert.Equal(t, "fp_01234****cdef", masked)
	assert.NotContains(t, masked, "56789abc")
}

func TestTokenServiceCreate(t *testing.T) {
	svc, tokens, audit := newTestService(t)

	token, secret, err := svc.Create(CreateTokenParams{
		Name:   "ci-deployer",
		Scopes: []string{"clusters:write", "clusters:read", "clusters:read"},
	}, testActor())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(secret, "fp_"))
	assert.Equal(t, models.TokenStatusActive, token.Status)
	// Scopes dedupe and sort.
	assert.Equal(t, []string{"clusters:read", "clusters:write"}, token.Scopes)
	require.NotNil(t, token.CreatedBy)
	assert.Equal(t, "admin-1", *token.CreatedBy)

	stored, err := tokens.GetByID(token.ID)
	require.NoError(t, err)
	assert.Equal(t, HashSecret(secret), stored.TokenHash)

	entries, err := audit.List(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionCreate, entries[0].Action)
	assert.Equal(t, "token", entries[0].ResourceType)
	assert.Equal(t, "ci-deployer", entries[0].ResourceName)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, "admin-1", *entries[0].UserID)
	// The stored configuration never contains the hash.
	require.NotNil(t, entries[0].NewConfiguration)
	assert.NotContains(t, *entries[0].NewConfiguration, stored.TokenHash)
}

func TestTokenServiceCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name   string
		params CreateTokenParams
	}{
		{"name too short", CreateTokenParams{Name: "ab", Scopes: []string{"clusters:read"}}},
		{"name has spaces", CreateTokenParams{Name: "bad name", Scopes: []string{"clusters:read"}}},
		{"no scopes", CreateTokenParams{Name: "valid-name"}},
		{"scope uppercase", CreateTokenParams{Name: "valid-name", Scopes: []string{"Clusters:write"}}},
		{"scope missing action", CreateTokenParams{Name: "valid-name", Scopes: []string{"clusters"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Create(tt.params, testActor())
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestTokenServiceUpdate(t *testing.T) {
	svc, _, audit := newTestService(t)

	token, _, err := svc.Create(CreateTokenParams{
		Name:   "ci-deployer",
		Scopes: []string{"clusters:write"},
	}, testActor())
	require.NoError(t, err)

	newName := "ci-deployer-v2"
	updated, err := svc.Update(token.ID, UpdateTokenParams{
		Name:   &newName,
		Scopes: []string{"routes:read", "clusters:read"},
	}, testActor())
	require.NoError(t, err)

	assert.Equal(t, "ci-deployer-v2", updated.Name)
	assert.Equal(t, []string{"clusters:read", "routes:read"}, updated.Scopes)
	assert.Equal(t, models.TokenStatusActive, updated.Status)

	entries, err := audit.List(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionUpdate, entries[0].Action)
	require.NotNil(t, entries[0].OldConfiguration)
	assert.Contains(t, *entries[0].OldConfiguration, `"ci-deployer"`)
}

func TestTokenServiceUpdateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	token, _, err := svc.Create(CreateTokenParams{
		Name:   "ci-deployer",
		Scopes: []string{"clusters:write"},
	}, testActor())
	require.NoError(t, err)

	badStatus := models.TokenStatus("suspended")
	_, err = svc.Update(token.ID, UpdateTokenParams{Status: &badStatus}, testActor())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update("no-such-id", UpdateTokenParams{}, testActor())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenServiceRevoke(t *testing.T) {
	svc, tokens, audit := newTestService(t)

	token, secret, err := svc.Create(CreateTokenParams{
		Name:   "short-lived",
		Scopes: []string{"clusters:read"},
	}, testActor())
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(token.ID, testActor()))

	revoked, err := svc.Get(token.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TokenStatusRevoked, revoked.Status)

	entries, err := audit.List(0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionRevoke, entries[0].Action)

	// A revoked secret no longer authenticates.
	authenticator := NewAuthenticator(tokens, zap.NewNop())
	_, err = authenticator.Authenticate(secret)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokenServiceRotate(t *testing.T) {
	svc, tokens, audit := newTestService(t)

	token, oldSecret, err := svc.Create(CreateTokenParams{
		Name:   "rotator",
		Scopes: []string{"clusters:read"},
	}, testActor())
	require.NoError(t, err)

	rotated, newSecret, err := svc.Rotate(token.ID, testActor())
	require.NoError(t, err)
	assert.Equal(t, token.ID, rotated.ID)
	assert.NotEqual(t, oldSecret, newSecret)

	authenticator := NewAuthenticator(tokens, zap.NewNop())

	_, err = authenticator.Authenticate(oldSecret)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	fresh, err := authenticator.Authenticate(newSecret)
	require.NoError(t, err)
	assert.Equal(t, token.ID, fresh.ID)

	entries, err := audit.List(0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionRotate, entries[0].Action)
}

func TestAuthenticate(t *testing.T) {
	svc, tokens, _ := newTestService(t)
	authenticator := NewAuthenticator(tokens, zap.NewNop())

	_, secret, err := svc.Create(CreateTokenParams{
		Name:   "api-caller",
		Scopes: []string{"clusters:read", "routes:read"},
	}, testActor())
	require.NoError(t, err)

	token, err := authenticator.Authenticate(secret)
	require.NoError(t, err)
	assert.Equal(t, "api-caller", token.Name)
	assert.Equal(t, []string{"clusters:read", "routes:read"}, token.Scopes)

	// Authentication touches last_used_at.
	stored, err := tokens.GetByID(token.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastUsedAt)
}

func TestAuthenticateRejections(t *testing.T) {
	svc, tokens, _ := newTestService(t)
	authenticator := NewAuthenticator(tokens, zap.NewNop())

	expired := time.Now().Add(-time.Hour)
	_, expiredSecret, err := svc.Create(CreateTokenParams{
		Name:      "expired-token",
		Scopes:    []string{"clusters:read"},
		ExpiresAt: &expired,
	}, testActor())
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"wrong prefix", "tok_0123456789abcdef0123456789abcdef"},
		{"unknown secret", "fp_0000000000000000000000000000000000000000000000000000000000000000"},
		{"expired token", expiredSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authenticator.Authenticate(tt.secret)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}
