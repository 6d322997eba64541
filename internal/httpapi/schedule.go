package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/reporting"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h Handlers) DueCalls(c *gin.Context) {
	rows, err := h.Scheduler.Due(c.Request.Context(), queryLimit(c, 0, 500))
	if err != nil {
		logger.FromGin(c).Error("due calls lookup failed", "err", err)
		fail(c, http.StatusInternalServerError, "due calls lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rows), "due": rows})
}

func (h Handlers) scheduleFilter(c *gin.Context) (scheduler.Filter, bool) {
	f := scheduler.Filter{
		Status: scheduler.Status(c.Query("status")),
		Limit:  queryLimit(c, 100, 500),
	}
	if f.Status != "" && !f.Status.Valid() {
		fail(c, http.StatusBadRequest, "status must be pending, completed or cancelled")
		return f, false
	}
	if v := c.Query("lead_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			fail(c, http.StatusBadRequest, "invalid lead_id")
			return f, false
		}
		f.LeadID = id
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, ok := parseTime(v, h.loc())
		if !ok {
			fail(c, http.StatusBadRequest, "invalid "+p.name)
			return f, false
		}
		*p.dst = t
	}
	return f, true
}

func (h Handlers) ListSchedule(c *gin.Context) {
	f, ok := h.scheduleFilter(c)
	if !ok {
		return
	}
	rows, err := h.Scheduler.List(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("schedule lookup failed", "err", err)
		fail(c, http.StatusInternalServerError, "schedule lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rows), "schedule": rows})
}

func (h Handlers) ExportSchedule(c *gin.Context) {
	f, ok := h.scheduleFilter(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	n, err := h.Reporting.ExportSchedule(c.Request.Context(), f, &buf)
	if err != nil {
		logger.FromGin(c).Error("schedule export failed", "err", err)
		fail(c, http.StatusInternalServerError, "schedule export failed")
		return
	}
	name := fmt.Sprintf("rellamadas-%s.xlsx", time.Now().In(h.loc()).Format("20060102-1504"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("X-Row-Count", strconv.Itoa(n))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h Handlers) RecentCalls(c *gin.Context) {
	rows, err := h.Calls.ListRecent(c.Request.Context(), queryLimit(c, 50, 500))
	if err != nil {
		logger.FromGin(c).Error("recent calls lookup failed", "err", err)
		fail(c, http.StatusInternalServerError, "recent calls lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(rows), "calls": rows})
}

func (h Handlers) Stats(c *gin.Context) {
	st, err := h.Reporting.SchedulerStats(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("stats failed", "err", err)
		fail(c, http.StatusInternalServerError, "stats failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": st})
}

// CallsSummary defaults to today in the campaign time zone.
func (h Handlers) CallsSummary(c *gin.Context) {
	now := time.Now().In(h.loc())
	y, m, d := now.Date()
	r := reporting.TimeRange{From: time.Date(y, m, d, 0, 0, 0, 0, h.loc())}
	r.To = r.From.AddDate(0, 0, 1)
	if v := c.Query("from"); v != "" {
		t, ok := parseTime(v, h.loc())
		if !ok {
			fail(c, http.StatusBadRequest, "invalid from")
			return
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, ok := parseTime(v, h.loc())
		if !ok {
			fail(c, http.StatusBadRequest, "invalid to")
			return
		}
		r.To = t
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), r)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		fail(c, http.StatusBadRequest, "to must be after from")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		fail(c, http.StatusInternalServerError, "calls summary failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": out})
}

func (h Handlers) AuditLog(c *gin.Context) {
	if h.Audit == nil {
		fail(c, http.StatusNotFound, "audit disabled")
		return
	}
	evs, err := h.Audit.Recent(c.Request.Context(), queryLimit(c, 100, 500))
	if err != nil {
		fail(c, http.StatusInternalServerError, "audit lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": evs})
}
