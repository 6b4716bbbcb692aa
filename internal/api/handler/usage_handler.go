package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultUsageDays = 7
	maxUsageDays     = 90
)

// DailyUsage handles GET /api/v1/usage/daily. It returns per-day token and
// credit totals for the caller over the last N days.
func (h *JobHandler) DailyUsage(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID := identity.UserID
	if identity.Privileged && c.Query("user_id") != "" {
		userID = c.Query("user_id")
	}

	days := defaultUsageDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = parsed
	}
	if days < 1 {
		days = 1
	}
	if days > maxUsageDays {
		days = maxUsageDays
	}

	totals, err := h.usage.DailyTotals(c.Request.Context(), userID, days)
	if err != nil {
		h.logger.Error("Failed to load daily usage",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": totals})
}
