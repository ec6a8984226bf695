package main

import (
	"database/sql"
	"net/http"
	"time"

	"verify-orchestrator/internal/config"
	"verify-orchestrator/internal/dispatch"
	"verify-orchestrator/internal/queuectrl"
	"verify-orchestrator/internal/rbac"
	"verify-orchestrator/internal/sweep"
	"verify-orchestrator/internal/webhook"
	"verify-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW     gin.HandlerFunc
	DB         *sql.DB
	Dispatcher *dispatch.Dispatcher
	Sweeper    *sweep.Sweeper
	Control    queuectrl.Control
	Callbacks  *webhook.Service
	Dispatch   config.DispatchConfig
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic; handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: protect with provider signature validation when the provider
	// supports it; until then correlation against known call refs is the gate.
	r.POST("/webhooks/vapi/calls", webhook.CallbackHandler(deps.Callbacks))

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.AuthMW)
	{
		// DISPATCH routes: manual cycle triggers for operators.
		dispatchGroup := v1.Group("/dispatch")
		dispatchGroup.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			dispatchGroup.POST("/run", func(c *gin.Context) {
				var req struct {
					BatchSize int `json:"batch_size"`
				}
				// Body is optional; defaults apply.
				_ = c.ShouldBindJSON(&req)
				batch := req.BatchSize
				if batch <= 0 {
					batch = deps.Dispatch.BatchSize
				}
				if batch > deps.Dispatch.MaxBatchSize {
					batch = deps.Dispatch.MaxBatchSize
				}
				sum, err := deps.Dispatcher.Run(c.Request.Context(), batch)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatch cycle failed"})
					return
				}
				c.JSON(http.StatusOK, sum)
			})
		}

		// QUEUE routes: the global pause switch.
		queue := v1.Group("/queue")
		{
			queue.GET("/pause", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer, rbac.RoleSuperAdmin), func(c *gin.Context) {
				paused, err := deps.Control.IsPaused(c.Request.Context())
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pause flag unreadable"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"paused": paused})
			})
			queue.PUT("/pause", rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSuperAdmin), func(c *gin.Context) {
				var req struct {
					Paused *bool `json:"paused"`
				}
				if err := c.ShouldBindJSON(&req); err != nil || req.Paused == nil {
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "paused (bool) required"})
					return
				}
				if err := deps.Control.SetPaused(c.Request.Context(), *req.Paused); err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pause flag write failed"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
			})
		}

		// SWEEP routes: manual trigger for the callback-timeout sweep.
		sweepGroup := v1.Group("/sweep")
		sweepGroup.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			sweepGroup.POST("/run", func(c *gin.Context) {
				swept, err := deps.Sweeper.Run(c.Request.Context(), sweepLimit)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"swept": swept})
			})
		}
	}
}
