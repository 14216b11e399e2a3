package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyCheck reports whether one dependency is ready. Name shows up in
// the readyz error body.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter builds the operational surface every service exposes:
// liveness, readiness over its dependencies, and Prometheus metrics.
func NewRouter(checks ...ReadyCheck) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(500, gin.H{
					"status": "not_ready",
					"check":  check.Name,
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Router{Engine: r}
}

// DBCheck is the standard readiness check for a PostgreSQL pool.
func DBCheck(db *pgxpool.Pool) ReadyCheck {
	return ReadyCheck{
		Name: "db",
		Check: func(ctx context.Context) error {
			return db.Ping(ctx)
		},
	}
}
