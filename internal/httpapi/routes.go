package httpapi

import (
	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/rbac"
)

// Register wires HTTP routes to handlers.
// Keep this file free of business logic.
func Register(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	// Voice bot callback (public, same contract as the bot expects).
	r.POST("/api/actualizar_resultado", h.ReportResult)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	api := v1.Group("")
	api.Use(authMW, rbac.RequireUser())
	api.GET("/me", h.Me)

	read := api.Group("")
	read.Use(rbac.RequireAnyRole(rbac.Readers...))
	{
		read.GET("/dispatcher/status", h.DispatcherStatus)
		read.GET("/schedule", h.ListSchedule)
		read.GET("/schedule/due", h.DueCalls)
		read.GET("/schedule/export", h.ExportSchedule)
		read.GET("/calls/recent", h.RecentCalls)
		read.GET("/calls/summary", h.CallsSummary)
		read.GET("/stats", h.Stats)
		read.GET("/leads/:id", h.GetLead)
	}

	ops := api.Group("/leads")
	ops.Use(rbac.RequireAnyRole(rbac.Operators...))
	{
		ops.POST("/select", h.SelectLeads)
		ops.POST("/deselect", h.DeselectLeads)
		ops.POST("/manual", h.SetManual)
		ops.POST("/:id/call", h.CallLead)
		ops.POST("/:id/callback", h.ScheduleCallback)
	}

	sup := api.Group("")
	sup.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
	{
		sup.POST("/dispatcher/start", h.StartDispatcher)
		sup.POST("/dispatcher/stop", h.StopDispatcher)
		sup.GET("/config", h.GetConfig)
		sup.PUT("/config/:key", h.PutConfig)
		sup.GET("/audit", h.AuditLog)
	}
}
