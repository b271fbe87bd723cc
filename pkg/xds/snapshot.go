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
	"strconv"
	"sync"
	"time"

	"github.com/envoyproxy/go-control-plane/pkg/cache/types"
	"github.com/envoyproxy/go-control-plane/pkg/cache/v3"
	"github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/metrics"
	"github.com/flowplane/flowplane/pkg/storage"
)

// SnapshotManager rebuilds the xDS snapshot from persisted state and hands
// it to the cache serving connected proxies. Every refresh is a full
// rebuild: the latest version of every cluster, route configuration, and
// listener is read back, translated, versioned, and swapped in atomically.
type SnapshotManager struct {
	cache     cache.SnapshotCache
	clusters  *storage.ClusterStore
	routes    *storage.RouteStore
	listeners *storage.ListenerStore
	logger    *zap.Logger
	nodeID    string

	// mu serializes rebuilds so snapshot versions stay monotonic even when
	// API writes land concurrently.
	mu      sync.Mutex
	version uint64
}

// NewSnapshotManager creates a snapshot manager over the given stores.
func NewSnapshotManager(clusters *storage.ClusterStore, routes *storage.RouteStore, listeners *storage.ListenerStore, nodeID string, logger *zap.Logger) *SnapshotManager {
	snapshotCache := cache.NewSnapshotCache(false, cache.IDHash{}, logger.Sugar())

	return &SnapshotManager{
		cache:     snapshotCache,
		clusters:  clusters,
		routes:    routes,
		listeners: listeners,
		logger:    logger,
		nodeID:    nodeID,
	}
}

// GetCache returns the snapshot cache backing the ADS server.
func (sm *SnapshotManager) GetCache() cache.SnapshotCache {
	return sm.cache
}

// NodeID returns the node the snapshots are published under.
func (sm *SnapshotManager) NodeID() string {
	return sm.nodeID
}

// Refresh rebuilds the snapshot from the full persisted state. Startup uses
// it to serve existing resources before the first write arrives.
func (sm *SnapshotManager) Refresh(ctx context.Context, correlationID string) error {
	return sm.refresh(ctx, "startup", correlationID)
}

// RefreshClusters rebuilds the snapshot after a cluster write.
func (sm *SnapshotManager) RefreshClusters(ctx context.Context, correlationID string) error {
	return sm.refresh(ctx, "clusters", correlationID)
}

// RefreshRouteConfigurations rebuilds the snapshot after a route
// configuration write.
func (sm *SnapshotManager) RefreshRouteConfigurations(ctx context.Context, correlationID string) error {
	return sm.refresh(ctx, "routes", correlationID)
}

// RefreshListeners rebuilds the snapshot after a listener write.
func (sm *SnapshotManager) RefreshListeners(ctx context.Context, correlationID string) error {
	return sm.refresh(ctx, "listeners", correlationID)
}

func (sm *SnapshotManager) refresh(ctx context.Context, trigger, correlationID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	log := sm.logger
	if correlationID != "" {
		log = sm.logger.With(zap.String("correlation_id", correlationID))
	}

	start := time.Now()

	resources, err := sm.buildResources(log)
	if err != nil {
		metrics.SnapshotGenerationTotal.WithLabelValues(trigger, "error").Inc()
		log.Error("Failed to build xDS resources", zap.Error(err))
		return err
	}

	sm.version++
	snapshot, err := cache.NewSnapshot(strconv.FormatUint(sm.version, 10), resources)
	if err != nil {
		metrics.SnapshotGenerationTotal.WithLabelValues(trigger, "error").Inc()
		log.Error("Failed to create snapshot", zap.Error(err))
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	// No Consistent() gate: it demands the RDS set equal exactly what the
	// listeners reference, but this snapshot deliberately carries every
	// stored route configuration, referenced or not.
	if err := sm.cache.SetSnapshot(ctx, sm.nodeID, snapshot); err != nil {
		metrics.SnapshotGenerationTotal.WithLabelValues(trigger, "error").Inc()
		log.Error("Failed to set snapshot", zap.Error(err))
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	numClusters := len(resources[resource.ClusterType])
	numRoutes := len(resources[resource.RouteType])
	numListeners := len(resources[resource.ListenerType])

	metrics.SnapshotGenerationTotal.WithLabelValues(trigger, "success").Inc()
	metrics.SnapshotGenerationDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.SnapshotResources.WithLabelValues("clusters").Set(float64(numClusters))
	metrics.SnapshotResources.WithLabelValues("routes").Set(float64(numRoutes))
	metrics.SnapshotResources.WithLabelValues("listeners").Set(float64(numListeners))

	log.Info("Updated xDS snapshot",
		zap.Uint64("version", sm.version),
		zap.String("trigger", trigger),
		zap.Int("num_clusters", numClusters),
		zap.Int("num_routes", numRoutes),
		zap.Int("num_listeners", numListeners),
	)
	return nil
}

// buildResources reads the latest persisted state and translates it to xDS
// protos. Rows that fail to decode or translate are skipped with a warning
// so one bad resource cannot take down the whole snapshot.
func (sm *SnapshotManager) buildResources(log *zap.Logger) (map[resource.Type][]types.Resource, error) {
	clusterRecords, err := sm.clusters.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load clusters: %w", err)
	}
	routeRecords, err := sm.routes.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load route configurations: %w", err)
	}
	listenerRecords, err := sm.listeners.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load listeners: %w", err)
	}

	var clusterResources []types.Resource
	for _, rec := range clusterRecords {
		spec, err := rec.Spec()
		if err != nil {
			log.Warn("Skipping cluster with undecodable configuration",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		wire, err := ClusterFromSpec(spec)
		if err != nil {
			log.Warn("Skipping cluster that fails translation",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		clusterResources = append(clusterResources, wire)
	}

	var listenerResources []types.Resource
	referenced := make(map[string]struct{})
	var referencedOrder []string
	for _, rec := range listenerRecords {
		spec, err := rec.Spec()
		if err != nil {
			log.Warn("Skipping listener with undecodable configuration",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		wire, err := ListenerFromSpec(spec)
		if err != nil {
			log.Warn("Skipping listener that fails translation",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		listenerResources = append(listenerResources, wire)
		for _, name := range RouteConfigNames(spec) {
			if _, ok := referenced[name]; !ok {
				referenced[name] = struct{}{}
				referencedOrder = append(referencedOrder, name)
			}
		}
	}

	// Every stored route configuration is served, whether or not a
	// listener references it yet; platform-derived configs reach the
	// snapshot before their listener exists, and RDS subscriptions ignore
	// names the proxy never asks for.
	var routeResources []types.Resource
	stored := make(map[string]struct{}, len(routeRecords))
	for _, rec := range routeRecords {
		spec, err := rec.Spec()
		if err != nil {
			log.Warn("Skipping route configuration with undecodable configuration",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		wire, err := RouteConfigurationFromSpec(spec)
		if err != nil {
			log.Warn("Skipping route configuration that fails translation",
				zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		stored[wire.Name] = struct{}{}
		routeResources = append(routeResources, wire)
	}

	// A referenced name with no stored configuration gets a catch-all so
	// the listener answers 404 instead of stalling its RDS subscription.
	for _, name := range referencedOrder {
		if _, ok := stored[name]; ok {
			continue
		}
		log.Warn("Listener references missing route configuration; serving catch-all",
			zap.String("route_config", name))
		routeResources = append(routeResources, CatchAllRouteConfiguration(name))
	}

	return map[resource.Type][]types.Resource{
		resource.ClusterType:  clusterResources,
		resource.RouteType:    routeResources,
		resource.ListenerType: listenerResources,
	}, nil
}
