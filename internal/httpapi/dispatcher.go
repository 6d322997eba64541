package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/audit"
	"outbound-campaigns/pkg/logger"
)

func (h Handlers) StartDispatcher(c *gin.Context) {
	started := h.Dispatcher.Start(c.Request.Context())
	if started {
		logger.FromGin(c).Info("dispatcher started via api")
		h.record(c, func(ctx context.Context, s *audit.Service) error {
			return s.LogDispatcher(ctx, actor(c), "start")
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "changed": started, "status": h.Dispatcher.Status()})
}

func (h Handlers) StopDispatcher(c *gin.Context) {
	stopped := h.Dispatcher.Stop()
	if stopped {
		logger.FromGin(c).Info("dispatcher stopped via api")
		h.record(c, func(ctx context.Context, s *audit.Service) error {
			return s.LogDispatcher(ctx, actor(c), "stop")
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "changed": stopped, "status": h.Dispatcher.Status()})
}

func (h Handlers) DispatcherStatus(c *gin.Context) {
	out := gin.H{"success": true, "status": h.Dispatcher.Status()}
	if h.Scheduler != nil {
		snap := h.Scheduler.Snapshot(c.Request.Context())
		out["daemon_enabled"] = snap.DaemonEnabled
		out["interval_minutes"] = snap.IntervalMinutes
		out["max_calls_per_cycle"] = snap.MaxCallsPerCycle
	}
	c.JSON(http.StatusOK, out)
}
