package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/letterspace/core/internal/middleware"
	"github.com/letterspace/core/internal/modules/newsletter"
	"github.com/letterspace/core/internal/modules/subscription"
	"github.com/letterspace/core/internal/pkg/delivery"
	"github.com/letterspace/core/internal/pkg/response"
	"github.com/letterspace/core/internal/pkg/token"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(codec *token.Codec, pipeline *delivery.Pipeline) {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "not found")
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "letterspace",
		"version":  "1.0.0",
		"homepage": "https://github.com/letterspace/core",
	}

	r.GET("/health", a.health)

	adminMW := middleware.AdminKey(a.cfg.AdminKey)

	store := subscription.NewGormStore(a.db)
	subSvc := subscription.NewService(store, codec, pipeline, a.logger)
	newsSvc := newsletter.NewService(store, pipeline, a.logger)

	api := r.Group(apiPrefix)
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(processStart)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})

	subscription.NewHandler(subSvc, a.db).RegisterRoutes(api, adminMW)
	newsletter.NewHandler(newsSvc).RegisterRoutes(api, adminMW)
}

// health reports liveness of the process and its backing stores.
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if a.rc == nil {
		checks["redis"] = "disabled"
	} else if err := a.rc.Raw().Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status, overall := http.StatusOK, "ok"
	if !healthy {
		status, overall = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(status, gin.H{
		"status": overall,
		"checks": checks,
	})
}

var processStart = time.Now()
