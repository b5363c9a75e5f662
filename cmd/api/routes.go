package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/rbac"
	"voiceagent-platform/internal/webhook"
	"voiceagent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerPublicRoutes wires health checks and the provider webhook.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerPublicRoutes(r *gin.Engine, cfg config.Config, a *app, db *sql.DB, rdb *redis.Client) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := utils.HealthCheck(ctx, db, time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Signature verification happens inside the pipeline, before any parsing.
	hooks := r.Group("/webhooks")
	webhook.NewHandler(a.pipeline).RegisterRoutes(hooks,
		webhook.InFlight(int64(cfg.App.MaxInFlight), cfg.Webhook.DatastoreTimeout))
}

// registerProtectedRoutes wires the dashboard API. Every route is scoped to the
// tenant in the caller's access token.
func registerProtectedRoutes(r *gin.Engine, a *app, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireTenant())

	agents := v1.Group("/agents")
	agents.Use(rbac.RequireAnyRole(rbac.RoleOwner))
	{
		agents.PUT("/:role", a.api.SyncAgent)
	}

	claims := v1.Group("/claims")
	{
		claims.GET("", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleStaff, rbac.RoleViewer), a.api.ListClaims)
		claims.DELETE("/:claim_id", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleStaff), a.api.CancelClaim)
	}

	v1.GET("/calls/:call_id", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleStaff, rbac.RoleViewer, rbac.RoleSupport), a.api.GetCall)
}
