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

func testClusterSpec(name string) *models.ClusterSpec {
	return &models.ClusterSpec{
		Name: name,
		Endpoints: []models.EndpointSpec{
			{Host: "127.0.0.1", Port: 8080},
		},
	}
}

func TestClusterStoreCreateAndGet(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	created, err := store.Create(testClusterSpec("api-cluster"))
	assert.NilError(t, err)
	assert.Equal(t, created.Name, "api-cluster")
	assert.Equal(t, created.Version, int64(1))
	assert.Equal(t, created.ServiceName, "api-cluster")
	assert.Assert(t, created.ID != "")

	fetched, err := store.GetByName("api-cluster")
	assert.NilError(t, err)
	assert.Equal(t, fetched.ID, created.ID)
	assert.Equal(t, fetched.Version, int64(1))

	spec, err := fetched.Spec()
	assert.NilError(t, err)
	assert.Equal(t, len(spec.Endpoints), 1)
	assert.Equal(t, spec.Endpoints[0].Host, "127.0.0.1")
	assert.Equal(t, spec.Endpoints[0].Port, uint32(8080))
}

func TestClusterStoreCreateUsesServiceNameOverride(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	spec := testClusterSpec("users-api-cluster")
	spec.ServiceName = "users-backend"

	created, err := store.Create(spec)
	assert.NilError(t, err)
	assert.Equal(t, created.ServiceName, "users-backend")
}

func TestClusterStoreCreateDuplicateName(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	_, err := store.Create(testClusterSpec("api-cluster"))
	assert.NilError(t, err)

	_, err = store.Create(testClusterSpec("api-cluster"))
	assert.Assert(t, IsConflictError(err))
}

func TestClusterStoreGetByNameNotFound(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	_, err := store.GetByName("missing")
	assert.Assert(t, IsNotFoundError(err))
}

func TestClusterStoreGetByIDNotFound(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	_, err := store.GetByID("missing")
	assert.Assert(t, IsNotFoundError(err))
}

func TestClusterStoreUpdateInsertsNewVersion(t *testing.T) {
	db := newTestDB(t)
	store := NewClusterStore(db, zap.NewNop())

	created, err := store.Create(testClusterSpec("api-cluster"))
	assert.NilError(t, err)

	updatedSpec := testClusterSpec("api-cluster")
	updatedSpec.Endpoints = append(updatedSpec.Endpoints, models.EndpointSpec{Host: "127.0.0.2", Port: 8080})

	updated, err := store.Update(created.ID, updatedSpec)
	assert.NilError(t, err)
	assert.Equal(t, updated.ID, created.ID)
	assert.Equal(t, updated.Name, "api-cluster")
	assert.Equal(t, updated.Version, int64(2))
	assert.Assert(t, updated.CreatedAt.Equal(created.CreatedAt))

	// History rows stay in place.
	var count int
	assert.NilError(t, db.Get(&count, "SELECT COUNT(*) FROM clusters WHERE name = ?", "api-cluster"))
	assert.Equal(t, count, 2)

	// Reads resolve to the latest version.
	latest, err := store.GetByName("api-cluster")
	assert.NilError(t, err)
	assert.Equal(t, latest.Version, int64(2))

	spec, err := latest.Spec()
	assert.NilError(t, err)
	assert.Equal(t, len(spec.Endpoints), 2)
}

func TestClusterStoreUpdateNotFound(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	_, err := store.Update("missing", testClusterSpec("api-cluster"))
	assert.Assert(t, IsNotFoundError(err))
}

func TestClusterStoreDeleteRemovesAllVersions(t *testing.T) {
	db := newTestDB(t)
	store := NewClusterStore(db, zap.NewNop())

	created, err := store.Create(testClusterSpec("api-cluster"))
	assert.NilError(t, err)
	_, err = store.Update(created.ID, testClusterSpec("api-cluster"))
	assert.NilError(t, err)

	assert.NilError(t, store.Delete(created.ID))

	_, err = store.GetByName("api-cluster")
	assert.Assert(t, IsNotFoundError(err))

	var count int
	assert.NilError(t, db.Get(&count, "SELECT COUNT(*) FROM clusters WHERE name = ?", "api-cluster"))
	assert.Equal(t, count, 0)
}

func TestClusterStoreDeleteNotFound(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	err := store.Delete("missing")
	assert.Assert(t, IsNotFoundError(err))
}

func TestClusterStoreListReturnsLatestPerName(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	a, err := store.Create(testClusterSpec("a-cluster"))
	assert.NilError(t, err)
	_, err = store.Create(testClusterSpec("b-cluster"))
	assert.NilError(t, err)
	_, err = store.Update(a.ID, testClusterSpec("a-cluster"))
	assert.NilError(t, err)

	recs, err := store.List(0, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 2)
	assert.Equal(t, recs[0].Name, "a-cluster")
	assert.Equal(t, recs[0].Version, int64(2))
	assert.Equal(t, recs[1].Name, "b-cluster")
	assert.Equal(t, recs[1].Version, int64(1))
}

func TestClusterStoreListPaging(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	_, err := store.Create(testClusterSpec("a-cluster"))
	assert.NilError(t, err)
	_, err = store.Create(testClusterSpec("b-cluster"))
	assert.NilError(t, err)

	page, err := store.List(1, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(page), 1)
	assert.Equal(t, page[0].Name, "a-cluster")

	page, err = store.List(1, 1)
	assert.NilError(t, err)
	assert.Equal(t, len(page), 1)
	assert.Equal(t, page[0].Name, "b-cluster")
}

func TestClusterStoreListAll(t *testing.T) {
	store := NewClusterStore(newTestDB(t), zap.NewNop())

	for _, name := range []string{"a-cluster", "b-cluster", "c-cluster"} {
		_, err := store.Create(testClusterSpec(name))
		assert.NilError(t, err)
	}

	recs, err := store.ListAll()
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 3)
}
