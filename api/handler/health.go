package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/skimmer/cache"
	"github.com/use-agent/skimmer/models"
	"github.com/use-agent/skimmer/pool"
	"github.com/use-agent/skimmer/reliability"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation, breaker state and cache size; status degrades
// when > 80% of instances are checked out or the breaker is open.
func Health(p *pool.Pool, d *reliability.Dispatcher, store cache.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := p.Stats()
		breakerState := d.Breaker().State()

		status := "healthy"
		if stats.MaxSize > 0 && stats.Active > int(float64(stats.MaxSize)*0.8) {
			status = "degraded"
		}
		if breakerState == reliability.Open {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: "0.1.0",
			Pool: models.PoolStatus{
				Size:        stats.Size,
				Idle:        stats.Idle,
				Active:      stats.Active,
				MaxSize:     stats.MaxSize,
				MemoryBytes: stats.Memory,
			},
			Breaker:      breakerState.String(),
			CacheEntries: store.Len(),
		})
	}
}
