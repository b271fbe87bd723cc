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

package xds

import (
	"context"
	"fmt"
	"net"
	"time"

	core "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	clusterservice "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	discoverygrpc "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	endpointservice "github.com/envoyproxy/go-control-plane/envoy/service/endpoint/v3"
	listenerservice "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	routeservice "github.com/envoyproxy/go-control-plane/envoy/service/route/v3"
	"github.com/envoyproxy/go-control-plane/pkg/server/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/flowplane/flowplane/pkg/metrics"
)

// grpcMaxConcurrentStreams bounds the streams one proxy connection may
// open; ADS needs one, per-type subscriptions need at most five.
const grpcMaxConcurrentStreams = 16

// Server serves the snapshot cache to connected proxies over gRPC. Both
// state-of-the-world and delta streams are accepted; the cache fans the
// same snapshot out to either protocol.
type Server struct {
	grpcServer *grpc.Server
	xdsServer  server.Server
	snapshots  *SnapshotManager
	port       int
	logger     *zap.Logger
}

// NewServer wires the snapshot manager's cache into a gRPC server with
// ADS and the individual CDS/EDS/RDS/LDS services registered, so proxies
// may use aggregated or per-type discovery.
func NewServer(snapshots *SnapshotManager, port int, logger *zap.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(grpcMaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	xdsServer := server.NewServer(context.Background(), snapshots.GetCache(), &serverCallbacks{logger: logger})

	discoverygrpc.RegisterAggregatedDiscoveryServiceServer(grpcServer, xdsServer)
	clusterservice.RegisterClusterDiscoveryServiceServer(grpcServer, xdsServer)
	endpointservice.RegisterEndpointDiscoveryServiceServer(grpcServer, xdsServer)
	routeservice.RegisterRouteDiscoveryServiceServer(grpcServer, xdsServer)
	listenerservice.RegisterListenerDiscoveryServiceServer(grpcServer, xdsServer)

	return &Server{
		grpcServer: grpcServer,
		xdsServer:  xdsServer,
		snapshots:  snapshots,
		port:       port,
		logger:     logger,
	}
}

// Start listens on the configured port and serves until Stop. It blocks.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	s.logger.Info("Starting xDS server",
		zap.Int("port", s.port),
		zap.String("node_id", s.snapshots.NodeID()))

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("xds server terminated: %w", err)
	}
	return nil
}

// Stop drains open streams and stops the server.
func (s *Server) Stop() {
	s.logger.Info("Stopping xDS server")
	s.grpcServer.GracefulStop()
}

// serverCallbacks implements server.Callbacks: connection accounting for
// the metrics gauges and debug-level request/response tracing.
type serverCallbacks struct {
	logger *zap.Logger
}

func (cb *serverCallbacks) OnStreamOpen(ctx context.Context, id int64, typ string) error {
	metrics.XDSClientsConnected.Inc()
	cb.logger.Info("xDS stream opened", zap.Int64("stream_id", id), zap.String("type", typ))
	return nil
}

func (cb *serverCallbacks) OnStreamClosed(id int64, node *core.Node) {
	metrics.XDSClientsConnected.Dec()
	fields := []zap.Field{zap.Int64("stream_id", id)}
	if node != nil {
		fields = append(fields, zap.String("node_id", node.Id))
	}
	cb.logger.Info("xDS stream closed", fields...)
}

func (cb *serverCallbacks) OnStreamRequest(id int64, req *discoverygrpc.DiscoveryRequest) error {
	metrics.XDSStreamRequestsTotal.WithLabelValues(req.TypeUrl).Inc()
	if req.ErrorDetail != nil {
		// The proxy NACKed the previous response; the snapshot stays as
		// built, so this needs operator attention.
		cb.logger.Warn("xDS resource rejected by proxy",
			zap.Int64("stream_id", id),
			zap.String("type_url", req.TypeUrl),
			zap.String("version", req.VersionInfo),
			zap.String("detail", req.ErrorDetail.Message),
		)
		return nil
	}
	cb.logger.Debug("xDS stream request",
		zap.Int64("stream_id", id),
		zap.String("type_url", req.TypeUrl),
		zap.String("version", req.VersionInfo),
	)
	return nil
}

func (cb *serverCallbacks) OnStreamResponse(ctx context.Context, id int64, req *discoverygrpc.DiscoveryRequest, resp *discoverygrpc.DiscoveryResponse) {
	cb.logger.Debug("xDS stream response",
		zap.Int64("stream_id", id),
		zap.String("type_url", resp.TypeUrl),
		zap.String("version", resp.VersionInfo),
		zap.Int("num_resources", len(resp.Resources)),
	)
}

func (cb *serverCallbacks) OnFetchRequest(ctx context.Context, req *discoverygrpc.DiscoveryRequest) error {
	cb.logger.Debug("xDS fetch request", zap.String("type_url", req.TypeUrl))
	return nil
}

func (cb *serverCallbacks) OnFetchResponse(req *discoverygrpc.DiscoveryRequest, resp *discoverygrpc.DiscoveryResponse) {
	cb.logger.Debug("xDS fetch response",
		zap.String("type_url", resp.TypeUrl),
		zap.String("version", resp.VersionInfo),
	)
}

func (cb *serverCallbacks) OnDeltaStreamOpen(ctx context.Context, id int64, typ string) error {
	metrics.XDSClientsConnected.Inc()
	cb.logger.Info("xDS delta stream opened", zap.Int64("stream_id", id), zap.String("type", typ))
	return nil
}

func (cb *serverCallbacks) OnDeltaStreamClosed(id int64, node *core.Node) {
	metrics.XDSClientsConnected.Dec()
	cb.logger.Info("xDS delta stream closed", zap.Int64("stream_id", id))
}

func (cb *serverCallbacks) OnStreamDeltaRequest(id int64, req *discoverygrpc.DeltaDiscoveryRequest) error {
	metrics.XDSStreamRequestsTotal.WithLabelValues(req.TypeUrl).Inc()
	cb.logger.Debug("xDS delta stream request",
		zap.Int64("stream_id", id),
		zap.String("type_url", req.TypeUrl),
	)
	return nil
}

func (cb *serverCallbacks) OnStreamDeltaResponse(id int64, req *discoverygrpc.DeltaDiscoveryRequest, resp *discoverygrpc.DeltaDiscoveryResponse) {
	cb.logger.Debug("xDS delta stream response",
		zap.Int64("stream_id", id),
		zap.String("type_url", resp.TypeUrl),
		zap.String("version", resp.SystemVersionInfo),
	)
}
