package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"outbound-campaigns/internal/results"
	"outbound-campaigns/pkg/logger"
)

// ReportResult receives the voice bot's end-of-conversation notification.
func (h Handlers) ReportResult(c *gin.Context) {
	var n results.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	resp, err := h.Results.Handle(c.Request.Context(), n)
	switch {
	case err == nil:
	case errors.Is(err, results.ErrPhoneRequired),
		errors.Is(err, results.ErrInvalidPhone),
		errors.Is(err, results.ErrInvalidDate):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, results.ErrLeadNotFound):
		fail(c, http.StatusNotFound, "no lead found for telefono")
		return
	default:
		logger.FromGin(c).Error("result not applied", "err", err)
		fail(c, http.StatusInternalServerError, "result not applied")
		return
	}
	logger.FromGin(c).Info("result applied",
		"lead_id", resp.LeadID, "outcome", resp.Outcome, "action", resp.Action)
	c.JSON(http.StatusOK, resp)
}
