package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orgmgr/orgmgr/internal/metrics"
)

// Metrics records request count, latency, and in-flight gauge per route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		c.Next()
		m.RequestsInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
