package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/pipeline"
	"github.com/kbukum/relay/version"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Snapshotter is a pipeline whose stages can be listed.
type Snapshotter interface {
	Name() string
	Snapshot() []pipeline.StageInfo
}

// Healthz returns a handler that reports overall health and every
// component's status. It answers 503 when any component is unhealthy.
func Healthz(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var components []component.Health
		if checker != nil {
			components = checker(c.Request.Context())
		}
		status := component.Overall(components)

		httpStatus := http.StatusOK
		if status == component.StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":     status,
			"service":    serviceName,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		})
	}
}

// Stages returns a handler listing the stages of every pipeline, keyed by
// pipeline name.
func Stages(pipelines func() []Snapshotter) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make(map[string][]pipeline.StageInfo)
		for _, p := range pipelines() {
			out[p.Name()] = p.Snapshot()
		}
		c.JSON(http.StatusOK, gin.H{"pipelines": out})
	}
}

// Version returns a handler reporting the build information of the binary.
func Version() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	}
}
