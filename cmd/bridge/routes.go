package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-bridge/internal/httpapi"
	"voice-bridge/pkg/logger"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
// health may be nil when there is no backing store to check.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlersChain, metrics http.Handler, health func(context.Context) error, devTokens bool) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics))

	// Voice application webhook (public).
	r.POST("/webhooks/voice", h.VoiceWebhook)

	if devTokens {
		r.POST("/auth/token", h.IssueToken)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW...)
	{
		calls := v1.Group("/calls")
		calls.POST("", h.StartCall)
		calls.POST("/incoming", h.ReportIncomingCall)
		calls.GET("", h.ListCalls)
		calls.GET("/summary", h.CallsSummary)
		calls.GET("/:call_id", h.GetCall)

		active := calls.Group("/active")
		active.GET("", h.ActiveCall)
		active.POST("/hangup", h.HangUp)
		active.POST("/mute", h.Mute)
		active.POST("/hold", h.Hold)
		active.POST("/speaker", h.Speaker)
	}
}
