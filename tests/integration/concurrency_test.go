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

package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/api/handlers"
)

// TestConcurrentCreateSameName races two identical create requests. The
// unique name constraint must let exactly one through; the loser gets a
// conflict, never a duplicate row or a write error.
func TestConcurrentCreateSameName(t *testing.T) {
	env := newTestEnvironment(t)

	payload := map[string]any{
		"name":      "contested",
		"endpoints": []map[string]any{{"host": "10.0.0.1", "port": 8080}},
	}

	var (
		wg    sync.WaitGroup
		codes = make(chan int, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.request(t, http.MethodPost, "/api/v1/clusters", payload)
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	var created, conflicted int
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created, "exactly one create must win")
	assert.Equal(t, 1, conflicted, "the losing create must conflict")

	// Only one row landed.
	w := env.request(t, http.MethodGet, "/api/v1/clusters/contested", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ClusterResponse
	mustDecode(t, w, &resp)
	assert.Equal(t, int64(1), resp.Version)
}

// TestConcurrentWritesDistinctNames runs parallel creates against
// distinct names. SQLite serializes the writes; every request must
// succeed and every row must be readable afterwards.
func TestConcurrentWritesDistinctNames(t *testing.T) {
	env := newTestEnvironment(t)

	const writers = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("parallel-%d", id)
			w := env.request(t, http.MethodPost, "/api/v1/clusters", map[string]any{
				"name":      name,
				"endpoints": []map[string]any{{"host": "10.0.0.1", "port": 8080}},
			})
			if w.Code != http.StatusCreated {
				errs <- fmt.Errorf("create %s: status %d: %s", name, w.Code, w.Body.String())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	for i := 0; i < writers; i++ {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/clusters/parallel-%d", i), nil)
		assert.Equal(t, http.StatusOK, w.Code, "cluster parallel-%d must exist", i)
	}
}

// TestConcurrentUpdatesStaySequential hammers one cluster with parallel
// updates. Regardless of arrival order, the version counter must land on
// 1 + number of updates with no gaps skipped or repeated.
func TestConcurrentUpdatesStaySequential(t *testing.T) {
	env := newTestEnvironment(t)
	env.createCluster(t, "hammered")

	const updates = 8

	var wg sync.WaitGroup
	errs := make(chan error, updates)
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := env.request(t, http.MethodPut, "/api/v1/clusters/hammered", map[string]any{
				"name":        "hammered",
				"serviceName": "hammered-svc",
				"endpoints":   []map[string]any{{"host": fmt.Sprintf("10.1.0.%d", id+1), "port": 8080}},
			})
			if w.Code != http.StatusOK {
				errs <- fmt.Errorf("update %d: status %d: %s", id, w.Code, w.Body.String())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	w := env.request(t, http.MethodGet, "/api/v1/clusters/hammered", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ClusterResponse
	mustDecode(t, w, &resp)
	assert.Equal(t, int64(1+updates), resp.Version)
}
