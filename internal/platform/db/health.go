package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/hospital/hms/pkg/envelope"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// HealthChecker is what the health endpoint needs from the database.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

type poolChecker struct{ pool *pgxpool.Pool }

// NewHealthChecker adapts a pgx pool to HealthChecker.
func NewHealthChecker(pool *pgxpool.Pool) HealthChecker {
	return poolChecker{pool: pool}
}

func (p poolChecker) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p poolChecker) Stats() *PoolStats {
	stat := p.pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(hc HealthChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := hc.Ping(ctx)
		stats := hc.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, envelope.Body{
				Success: false,
				Error:   err.Error(),
				Data:    map[string]interface{}{"status": "unhealthy", "pool": stats},
			})
		}
		return envelope.OK(c, http.StatusOK, map[string]interface{}{"status": "healthy", "pool": stats}, "")
	}
}
