package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/audit"
	"outbound-campaigns/internal/dispatcher"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/pkg/logger"
)

const maxBatchIDs = 1000

type leadIDsRequest struct {
	LeadIDs []int64 `json:"lead_ids"`
}

type manualRequest struct {
	LeadIDs []int64 `json:"lead_ids"`
	Manual  *bool   `json:"manual"`
}

type callbackRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

func bindIDs(c *gin.Context, ids []int64) bool {
	if len(ids) == 0 || len(ids) > maxBatchIDs {
		fail(c, http.StatusBadRequest, "lead_ids must hold 1 to 1000 ids")
		return false
	}
	for _, id := range ids {
		if id <= 0 {
			fail(c, http.StatusBadRequest, "invalid lead id")
			return false
		}
	}
	return true
}

func (h Handlers) SelectLeads(c *gin.Context)   { h.setSelected(c, true) }
func (h Handlers) DeselectLeads(c *gin.Context) { h.setSelected(c, false) }

func (h Handlers) setSelected(c *gin.Context, selected bool) {
	var req leadIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !bindIDs(c, req.LeadIDs) {
		return
	}
	n, err := h.Leads.SetSelected(c.Request.Context(), req.LeadIDs, selected)
	if err != nil {
		logger.FromGin(c).Error("lead selection failed", "err", err)
		fail(c, http.StatusInternalServerError, "lead selection failed")
		return
	}
	h.record(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogLeadFlags(ctx, actor(c), "selected_for_calling", selected, req.LeadIDs, n)
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

// SetManual toggles manual_management. Moving a lead to manual management
// cancels its pending retries.
func (h Handlers) SetManual(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !bindIDs(c, req.LeadIDs) {
		return
	}
	manual := true
	if req.Manual != nil {
		manual = *req.Manual
	}

	ctx := c.Request.Context()
	n, err := h.Leads.SetManual(ctx, req.LeadIDs, manual)
	if err != nil {
		logger.FromGin(c).Error("manual flag update failed", "err", err)
		fail(c, http.StatusInternalServerError, "manual flag update failed")
		return
	}
	cancelled := 0
	if manual && h.Scheduler != nil {
		for _, id := range req.LeadIDs {
			k, err := h.Scheduler.CancelForLead(ctx, id)
			if err != nil && !errors.Is(err, scheduler.ErrLeadNotFound) {
				logger.FromGin(c).Error("pending retries not cancelled", "lead_id", id, "err", err)
				fail(c, http.StatusInternalServerError, "cancel pending retries failed")
				return
			}
			cancelled += k
		}
	}
	h.record(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogLeadFlags(ctx, actor(c), "manual_management", manual, req.LeadIDs, n)
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n, "cancelled_retries": cancelled})
}

func (h Handlers) GetLead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	l, err := h.Leads.Get(c.Request.Context(), id)
	if errors.Is(err, leads.ErrNotFound) {
		fail(c, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "lead lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lead": l})
}

// CallLead starts a call to one lead now, outside the schedule.
func (h Handlers) CallLead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	l, err := h.Dispatcher.CallNow(c.Request.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrLeadNotFound):
		fail(c, http.StatusNotFound, "lead not found")
		return
	case errors.Is(err, scheduler.ErrLeadClosed):
		fail(c, http.StatusConflict, "lead is closed")
		return
	case errors.Is(err, dispatcher.ErrBusy):
		fail(c, http.StatusServiceUnavailable, "all call slots busy")
		return
	default:
		logger.FromGin(c).Error("manual call failed", "lead_id", id, "err", err)
		fail(c, http.StatusInternalServerError, "call could not be started")
		return
	}
	h.record(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogManualCall(ctx, actor(c), id)
	})
	c.JSON(http.StatusAccepted, gin.H{"success": true, "lead_id": l.ID, "call_status": l.CallStatus})
}

// ScheduleCallback books a retry for a lead at the requested time, moved
// into the next working slot.
func (h Handlers) ScheduleCallback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	at, ok := parseTime(req.ScheduledAt, h.loc())
	if !ok {
		fail(c, http.StatusBadRequest, "scheduled_at must be RFC3339 or YYYY-MM-DD HH:MM")
		return
	}
	row, err := h.Scheduler.ScheduleCallback(c.Request.Context(), id, at)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrLeadNotFound):
		fail(c, http.StatusNotFound, "lead not found")
		return
	case errors.Is(err, scheduler.ErrLeadClosed):
		fail(c, http.StatusConflict, "lead is closed")
		return
	case errors.Is(err, scheduler.ErrManualLead):
		fail(c, http.StatusConflict, "lead is manually managed")
		return
	default:
		logger.FromGin(c).Error("callback not scheduled", "lead_id", id, "err", err)
		fail(c, http.StatusInternalServerError, "callback not scheduled")
		return
	}
	h.record(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogCallback(ctx, actor(c), id, row.ScheduledAt)
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "schedule": row})
}
