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

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowplane/flowplane/pkg/metrics"
)

// MetricsMiddleware records per-request HTTP metrics: counts by status,
// latency, request/response sizes and the in-flight gauge.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.ConcurrentRequests.Inc()
		defer metrics.ConcurrentRequests.Dec()

		started := time.Now()
		requestSize := max(c.Request.ContentLength, 0)

		c.Next()

		recordHTTPMetrics(c, started, requestSize)
	}
}

func recordHTTPMetrics(c *gin.Context, started time.Time, requestSize int64) {
	// Label on the route pattern so path parameters do not explode
	// cardinality; unmatched requests have no pattern, use the raw path.
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	method := c.Request.Method
	status := strconv.Itoa(c.Writer.Status())

	metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	metrics.HTTPRequestDurationSeconds.WithLabelValues(method, endpoint).Observe(time.Since(started).Seconds())
	metrics.HTTPRequestSizeBytes.WithLabelValues(endpoint).Observe(float64(requestSize))
	metrics.HTTPResponseSizeBytes.WithLabelValues(endpoint).Observe(float64(max(c.Writer.Size(), 0)))
}
