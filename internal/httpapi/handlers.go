package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/audit"
	"outbound-campaigns/internal/auth"
	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/dispatcher"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/internal/reporting"
	"outbound-campaigns/internal/results"
	"outbound-campaigns/internal/scheduler"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/pkg/logger"
)

// Dispatcher is the admin surface of the dispatcher daemon.
type Dispatcher interface {
	Start(ctx context.Context) bool
	Stop() bool
	Status() dispatcher.Status
	CallNow(ctx context.Context, leadID int64) (leads.Lead, error)
}

// LeadStore is the lead access the admin routes need.
type LeadStore interface {
	Get(ctx context.Context, id int64) (leads.Lead, error)
	SetSelected(ctx context.Context, ids []int64, selected bool) (int, error)
	SetManual(ctx context.Context, ids []int64, manual bool) (int, error)
}

type CallLister interface {
	ListRecent(ctx context.Context, limit int) ([]calls.Record, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth       *auth.Manager
	Scheduler  *scheduler.Service
	Dispatcher Dispatcher
	Leads      LeadStore
	Calls      CallLister
	Settings   settings.Store
	Results    *results.Service
	Reporting  *reporting.Service
	Audit      *audit.Service
	Location   *time.Location

	// LoginEnabled exposes POST /v1/auth/login outside production.
	LoginEnabled bool
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func (h Handlers) loc() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

func actor(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// record writes an audit event. Failures are logged and never fail the request.
func (h Handlers) record(c *gin.Context, fn func(ctx context.Context, s *audit.Service) error) {
	if h.Audit == nil {
		return
	}
	if err := fn(c.Request.Context(), h.Audit); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid lead id")
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// parseTime accepts RFC3339, a local "YYYY-MM-DD HH:MM" or a date.
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: development only. Production tokens are issued by the identity provider
// sharing JWT_SECRET.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || !h.LoginEnabled {
		fail(c, http.StatusNotFound, "login disabled")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		fail(c, http.StatusBadRequest, "user_id and role required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token issuance failed")
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a new pair.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		fail(c, http.StatusNotFound, "auth disabled")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, "refresh_token required")
		return
	}
	pair, err := h.Auth.Refresh(time.Now(), req.RefreshToken)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}
