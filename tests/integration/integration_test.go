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

// Package integration exercises the control plane the way a deployment
// does: requests enter through the full router with bearer authentication,
// land in SQLite, and surface in the xDS snapshot cache. Component-level
// behavior is covered by the package tests; these suites assert the
// end-to-end contract.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api"
	"github.com/flowplane/flowplane/pkg/api/handlers"
	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/bootstrap"
	"github.com/flowplane/flowplane/pkg/config"
	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/storage"
	"github.com/flowplane/flowplane/pkg/xds"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testNodeID = "integration-node"

// testEnvironment is a complete control plane wired over a SQLite file:
// stores, token service, bootstrap seeding, snapshot manager, and the
// production router with real authentication middleware.
type testEnvironment struct {
	dbPath     string
	db         *storage.DB
	router     *gin.Engine
	tokens     *auth.TokenService
	audit      *storage.AuditLogStore
	snapshots  *xds.SnapshotManager
	adminToken string
}

// newTestEnvironment starts a control plane on a fresh database and mints
// an admin token carrying every scope.
func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	env := openTestEnvironment(t, filepath.Join(t.TempDir(), "integration.db"))

	_, secret, err := env.tokens.Create(auth.CreateTokenParams{
		Name:   "integration-admin",
		Scopes: constants.AllScopes,
	}, auth.AuditActor{})
	require.NoError(t, err)
	env.adminToken = secret

	return env
}

// openTestEnvironment boots the control plane against an existing (or
// empty) database file, mirroring the production startup order: open
// storage, seed defaults, build the snapshot, mount the router. It does
// not mint a token, so restart tests can prove persisted credentials
// still authenticate.
func openTestEnvironment(t *testing.T, dbPath string) *testEnvironment {
	t.Helper()

	logger := zap.NewNop()

	db, err := storage.Open(storage.Options{
		Driver: storage.DriverSQLite,
		Path:   dbPath,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clusters := storage.NewClusterStore(db, logger)
	routes := storage.NewRouteStore(db, logger)
	listeners := storage.NewListenerStore(db, logger)
	definitions := storage.NewAPIDefinitionStore(db, logger)
	audit := storage.NewAuditLogStore(db, logger)
	tokenStore := storage.NewTokenStore(db, logger)
	tokens := auth.NewTokenService(tokenStore, audit, logger)
	authenticator := auth.NewAuthenticator(tokenStore, logger)

	seeder := bootstrap.NewSeeder(config.BootstrapConfig{
		SeedDefaultGateway: true,
		DefaultGatewayPort: 10000,
	}, clusters, routes, listeners, tokenStore, tokens, logger)
	require.NoError(t, seeder.Run())

	snapshots := xds.NewSnapshotManager(clusters, routes, listeners, testNodeID, logger)
	require.NoError(t, snapshots.Refresh(context.Background(), ""))

	server := handlers.NewAPIServer(clusters, routes, listeners, definitions, audit, tokens, snapshots, logger)
	router := gin.New()
	api.RegisterHandlers(router, server, authenticator, logger)

	return &testEnvironment{
		dbPath:    dbPath,
		db:        db,
		router:    router,
		tokens:    tokens,
		audit:     audit,
		snapshots: snapshots,
	}
}

// close shuts the database down, simulating a controller exit. The
// environment must not be used afterwards except to read dbPath.
func (env *testEnvironment) close(t *testing.T) {
	t.Helper()
	require.NoError(t, env.db.Close())
}

// request performs an authenticated HTTP request against the router.
// Body may be nil, a string, raw bytes, or any JSON-marshalable value.
func (env *testEnvironment) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if env.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+env.adminToken)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func mustDecode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "response body: %s", w.Body.String())
}

// createCluster creates a minimal cluster through the API and fails the
// test on any status other than 201.
func (env *testEnvironment) createCluster(t *testing.T, name string) handlers.ClusterResponse {
	t.Helper()

	w := env.request(t, http.MethodPost, "/api/v1/clusters", map[string]any{
		"name":        name,
		"serviceName": name + "-svc",
		"endpoints":   []map[string]any{{"host": "10.0.0.1", "port": 8080}},
	})
	require.Equal(t, http.StatusCreated, w.Code, "create cluster %s: %s", name, w.Body.String())

	var resp handlers.ClusterResponse
	mustDecode(t, w, &resp)
	return resp
}
