package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/audit"
	"outbound-campaigns/internal/settings"
	"outbound-campaigns/pkg/logger"
)

type configValue struct {
	Value string `json:"value"`
}

// GetConfig returns the stored values and the effective configuration after
// defaults and fallbacks.
func (h Handlers) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := h.Settings.All(ctx)
	if err != nil {
		logger.FromGin(c).Error("config lookup failed", "err", err)
		fail(c, http.StatusInternalServerError, "config lookup failed")
		return
	}
	eff := settings.Load(ctx, h.Settings, logger.FromGin(c))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stored":    raw,
		"effective": eff,
		"slots":     eff.Calendar(h.loc()).Describe(),
	})
}

// PutConfig validates and stores one key. The next scheduler operation and
// the next dispatcher tick see the new value.
func (h Handlers) PutConfig(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var req configValue
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	value := strings.TrimSpace(req.Value)
	if err := settings.Validate(key, value); err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			fail(c, http.StatusNotFound, err.Error())
			return
		}
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	old, _, err := h.Settings.Get(ctx, key)
	if err != nil {
		fail(c, http.StatusInternalServerError, "config lookup failed")
		return
	}
	if err := h.Settings.Set(ctx, key, value); err != nil {
		logger.FromGin(c).Error("config write failed", "key", key, "err", err)
		fail(c, http.StatusInternalServerError, "config write failed")
		return
	}
	logger.FromGin(c).Info("config updated", "key", key, "old", old, "new", value)
	h.record(c, func(ctx context.Context, s *audit.Service) error {
		return s.LogConfigChange(ctx, actor(c), key, old, value)
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key, "value": value})
}
