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

import (
	"testing"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/flowplane/flowplane/pkg/models"
)

func testListenerSpec(name string) *models.ListenerSpec {
	return &models.ListenerSpec{
		Name:    name,
		Address: "0.0.0.0",
		Port:    10000,
		FilterChains: []models.FilterChainSpec{
			{
				Filters: []models.ListenerFilterSpec{
					{
						Name:            "http",
						Type:            models.ListenerFilterHTTPConnectionManager,
						RouteConfigName: "default-gateway-routes",
					},
				},
			},
		},
	}
}

func TestListenerStoreCreateAndGet(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	created, err := store.Create(testListenerSpec("default-gateway-listener"))
	assert.NilError(t, err)
	assert.Equal(t, created.Version, int64(1))
	assert.Equal(t, created.Address, "0.0.0.0")
	assert.Equal(t, created.Port, int64(10000))
	assert.Equal(t, created.Protocol, "HTTP")

	fetched, err := store.GetByName("default-gateway-listener")
	assert.NilError(t, err)
	assert.Equal(t, fetched.ID, created.ID)

	spec, err := fetched.Spec()
	assert.NilError(t, err)
	assert.Equal(t, spec.FilterChains[0].Filters[0].RouteConfigName, "default-gateway-routes")
}

func TestListenerStoreTCPProtocolSummary(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	spec := &models.ListenerSpec{
		Name:     "tcp-edge",
		Address:  "0.0.0.0",
		Port:     9400,
		Protocol: models.ListenerProtocolTCP,
		FilterChains: []models.FilterChainSpec{
			{
				Filters: []models.ListenerFilterSpec{
					{Name: "tcp", Type: models.ListenerFilterTCPProxy, Cluster: "tcp-backend"},
				},
			},
		},
	}

	created, err := store.Create(spec)
	assert.NilError(t, err)
	assert.Equal(t, created.Protocol, "TCP")
}

func TestListenerStoreCreateDuplicateName(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	_, err := store.Create(testListenerSpec("edge"))
	assert.NilError(t, err)

	_, err = store.Create(testListenerSpec("edge"))
	assert.Assert(t, IsConflictError(err))
}

func TestListenerStoreUpdateInsertsNewVersion(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	created, err := store.Create(testListenerSpec("edge"))
	assert.NilError(t, err)

	updatedSpec := testListenerSpec("edge")
	updatedSpec.Port = 10443

	updated, err := store.Update(created.ID, updatedSpec)
	assert.NilError(t, err)
	assert.Equal(t, updated.ID, created.ID)
	assert.Equal(t, updated.Version, int64(2))
	assert.Equal(t, updated.Port, int64(10443))

	latest, err := store.GetByName("edge")
	assert.NilError(t, err)
	assert.Equal(t, latest.Version, int64(2))
}

func TestListenerStoreDelete(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	created, err := store.Create(testListenerSpec("edge"))
	assert.NilError(t, err)

	assert.NilError(t, store.Delete(created.ID))

	_, err = store.GetByID(created.ID)
	assert.Assert(t, IsNotFoundError(err))
}

func TestListenerStoreList(t *testing.T) {
	store := NewListenerStore(newTestDB(t), zap.NewNop())

	_, err := store.Create(testListenerSpec("edge-a"))
	assert.NilError(t, err)
	_, err = store.Create(testListenerSpec("edge-b"))
	assert.NilError(t, err)

	recs, err := store.List(0, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 2)

	all, err := store.ListAll()
	assert.NilError(t, err)
	assert.Equal(t, len(all), 2)
}
