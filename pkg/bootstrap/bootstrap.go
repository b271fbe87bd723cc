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

// Package bootstrap seeds what a fresh control plane needs before it can
// serve: the default gateway resources every deployment starts from, and an
// admin token when none of the stored tokens can authenticate anymore.
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/config"
	"github.com/flowplane/flowplane/pkg/constants"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/storage"
)

const adminTokenName = "bootstrap-admin"

// Seeder writes the startup defaults through the same repositories the API
// uses, so seeded rows are versioned and audited like any other write.
type Seeder struct {
	cfg        config.BootstrapConfig
	clusters   *storage.ClusterStore
	routes     *storage.RouteStore
	listeners  *storage.ListenerStore
	tokenStore *storage.TokenStore
	tokens     *auth.TokenService
	logger     *zap.Logger
}

// NewSeeder creates a seeder over the given stores.
func NewSeeder(cfg config.BootstrapConfig, clusters *storage.ClusterStore, routes *storage.RouteStore,
	listeners *storage.ListenerStore, tokenStore *storage.TokenStore, tokens *auth.TokenService,
	logger *zap.Logger) *Seeder {
	return &Seeder{
		cfg:        cfg,
		clusters:   clusters,
		routes:     routes,
		listeners:  listeners,
		tokenStore: tokenStore,
		tokens:     tokens,
		logger:     logger,
	}
}

// Run seeds whatever is missing. It is idempotent: existing rows are left
// untouched, so it is safe on every startup.
func (s *Seeder) Run() error {
	if s.cfg.SeedDefaultGateway {
		if err := s.seedGatewayResources(); err != nil {
			return err
		}
	}
	if s.cfg.SeedAdminToken {
		return s.seedAdminToken()
	}
	return nil
}

// seedGatewayResources creates the default gateway cluster, route
// configuration, and listener when absent. Each resource is checked on its
// own: an operator who deleted one of them on purpose does not get the
// other two recreated differently.
func (s *Seeder) seedGatewayResources() error {
	if _, err := s.clusters.GetByName(constants.DefaultGatewayCluster); err != nil {
		if !storage.IsNotFoundError(err) {
			return fmt.Errorf("failed to check default gateway cluster: %w", err)
		}
		if _, err := s.clusters.Create(defaultGatewayCluster()); err != nil {
			return fmt.Errorf("failed to seed default gateway cluster: %w", err)
		}
		s.logger.Info("Seeded default gateway cluster", zap.String("name", constants.DefaultGatewayCluster))
	}

	if _, err := s.routes.GetByName(constants.DefaultGatewayRoutes); err != nil {
		if !storage.IsNotFoundError(err) {
			return fmt.Errorf("failed to check default gateway routes: %w", err)
		}
		if _, err := s.routes.Create(defaultGatewayRoutes()); err != nil {
			return fmt.Errorf("failed to seed default gateway routes: %w", err)
		}
		s.logger.Info("Seeded default gateway route configuration", zap.String("name", constants.DefaultGatewayRoutes))
	}

	if _, err := s.listeners.GetByName(constants.DefaultGatewayListener); err != nil {
		if !storage.IsNotFoundError(err) {
			return fmt.Errorf("failed to check default gateway listener: %w", err)
		}
		if _, err := s.listeners.Create(defaultGatewayListener(s.cfg.DefaultGatewayPort)); err != nil {
			return fmt.Errorf("failed to seed default gateway listener: %w", err)
		}
		s.logger.Info("Seeded default gateway listener", zap.String("name", constants.DefaultGatewayListener))
	}

	return nil
}

// seedAdminToken issues the bootstrap admin token when no stored token can
// authenticate. The plaintext secret is logged exactly once, at WARN so it
// stands out of the startup noise; it is not recoverable afterwards.
func (s *Seeder) seedAdminToken() error {
	active, err := s.tokenStore.CountActive()
	if err != nil {
		return fmt.Errorf("failed to count active tokens: %w", err)
	}
	if active > 0 {
		return nil
	}

	description := "Seeded admin token with every scope; rotate or replace it once real tokens exist"
	token, secret, err := s.tokens.Create(auth.CreateTokenParams{
		Name:        adminTokenName,
		Description: &description,
		Scopes:      constants.AllScopes,
	}, auth.AuditActor{})
	if err != nil {
		return fmt.Errorf("failed to seed admin token: %w", err)
	}

	s.logger.Warn("No active personal access tokens exist; seeded the bootstrap admin token. Store this secret now, it will not be shown again.",
		zap.String("token_id", token.ID),
		zap.String("name", token.Name),
		zap.String("token", secret))
	return nil
}

func defaultGatewayCluster() *models.ClusterSpec {
	return &models.ClusterSpec{
		Name:        constants.DefaultGatewayCluster,
		ServiceName: constants.DefaultGatewayService,
		Endpoints:   []models.EndpointSpec{{Host: "127.0.0.1", Port: 8080}},
	}
}

func defaultGatewayRoutes() *models.RouteConfigSpec {
	return &models.RouteConfigSpec{
		Name: constants.DefaultGatewayRoutes,
		VirtualHosts: []models.VirtualHostSpec{{
			Name:    "default",
			Domains: []string{"*"},
			Routes: []models.RouteRuleSpec{{
				Match: models.RouteMatchSpec{
					Path: models.PathMatch{Type: models.PathMatchPrefix, Value: "/"},
				},
				Action: models.RouteAction{
					Type:    models.RouteActionForward,
					Forward: &models.ForwardAction{Cluster: constants.DefaultGatewayCluster},
				},
			}},
		}},
	}
}

func defaultGatewayListener(port int) *models.ListenerSpec {
	return &models.ListenerSpec{
		Name:     constants.DefaultGatewayListener,
		Address:  "0.0.0.0",
		Port:     uint32(port),
		Protocol: models.ListenerProtocolHTTP,
		FilterChains: []models.FilterChainSpec{{
			Filters: []models.ListenerFilterSpec{{
				Name:            "envoy.filters.network.http_connection_manager",
				Type:            models.ListenerFilterHTTPConnectionManager,
				RouteConfigName: constants.DefaultGatewayRoutes,
			}},
		}},
	}
}
