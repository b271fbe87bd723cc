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

// Package api wires the REST surface onto a gin router: the public health
// endpoint and the bearer-authenticated /api/v1 group with per-route scope
// requirements.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api/handlers"
	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/constants"
)

// Platform API definition writes touch every derived resource class, so
// they demand the union of the native write scopes.
var apiDefinitionWriteScopes = []string{
	constants.ScopeApisWrite,
	constants.ScopeRouteConfigsWrite,
	constants.ScopeListenersWrite,
	constants.ScopeClustersWrite,
}

// RegisterHandlers attaches every route to the router. The health endpoint
// stays outside the authenticated group so probes work without a token.
func RegisterHandlers(router *gin.Engine, server *handlers.APIServer, authenticator *auth.Authenticator, logger *zap.Logger) {
	router.GET("/health", server.HealthCheck)

	requires := func(scopes ...string) gin.HandlerFunc {
		return middleware.RequireScopes(logger, scopes...)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(authenticator, logger))

	clusters := v1.Group("/clusters")
	{
		clusters.GET("", requires(constants.ScopeClustersRead), server.ListClusters)
		clusters.POST("", requires(constants.ScopeClustersWrite), server.CreateCluster)
		clusters.GET("/:name", requires(constants.ScopeClustersRead), server.GetCluster)
		clusters.PUT("/:name", requires(constants.ScopeClustersWrite), server.UpdateCluster)
		clusters.DELETE("/:name", requires(constants.ScopeClustersWrite), server.DeleteCluster)
	}

	routeConfigs := v1.Group("/route-configs")
	{
		routeConfigs.GET("", requires(constants.ScopeRouteConfigsRead), server.ListRoutes)
		routeConfigs.POST("", requires(constants.ScopeRouteConfigsWrite), server.CreateRoute)
		routeConfigs.GET("/:name", requires(constants.ScopeRouteConfigsRead), server.GetRoute)
		routeConfigs.PUT("/:name", requires(constants.ScopeRouteConfigsWrite), server.UpdateRoute)
		routeConfigs.DELETE("/:name", requires(constants.ScopeRouteConfigsWrite), server.DeleteRoute)
	}

	listeners := v1.Group("/listeners")
	{
		listeners.GET("", requires(constants.ScopeListenersRead), server.ListListeners)
		listeners.POST("", requires(constants.ScopeListenersWrite), server.CreateListener)
		listeners.GET("/:name", requires(constants.ScopeListenersRead), server.GetListener)
		listeners.PUT("/:name", requires(constants.ScopeListenersWrite), server.UpdateListener)
		listeners.DELETE("/:name", requires(constants.ScopeListenersWrite), server.DeleteListener)
	}

	apis := v1.Group("/platform/apis")
	{
		apis.GET("", requires(constants.ScopeApisRead), server.ListAPIDefinitions)
		apis.POST("", requires(apiDefinitionWriteScopes...), server.CreateAPIDefinition)
		apis.GET("/:id", requires(constants.ScopeApisRead), server.GetAPIDefinition)
		apis.PUT("/:id", requires(apiDefinitionWriteScopes...), server.UpdateAPIDefinition)
		apis.DELETE("/:id", requires(apiDefinitionWriteScopes...), server.DeleteAPIDefinition)
	}

	services := v1.Group("/platform/services")
	{
		services.GET("", requires(constants.ScopeServicesRead), server.ListServices)
		services.POST("", requires(constants.ScopeServicesWrite), server.CreateService)
		services.GET("/:name", requires(constants.ScopeServicesRead), server.GetService)
		services.PUT("/:name", requires(constants.ScopeServicesWrite), server.UpdateService)
		services.DELETE("/:name", requires(constants.ScopeServicesWrite), server.DeleteService)
	}

	v1.POST("/platform/import/openapi",
		requires(constants.ScopeApisWrite, constants.ScopeImportWrite), server.ImportOpenAPI)
	v1.POST("/gateways/openapi",
		requires(constants.ScopeGatewaysImport), server.GatewaysOpenAPI)

	tokens := v1.Group("/tokens")
	{
		tokens.GET("", requires(constants.ScopeTokensRead), server.ListTokens)
		tokens.POST("", requires(constants.ScopeTokensWrite), server.CreateToken)
		tokens.GET("/:id", requires(constants.ScopeTokensRead), server.GetToken)
		tokens.PATCH("/:id", requires(constants.ScopeTokensWrite), server.UpdateToken)
		tokens.DELETE("/:id", requires(constants.ScopeTokensWrite), server.DeleteToken)
		tokens.POST("/:id/rotate", requires(constants.ScopeTokensWrite), server.RotateToken)
	}
}
