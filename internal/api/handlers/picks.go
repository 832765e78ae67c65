package handlers

import (
	"errors"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/utils"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type PicksHandler struct {
	picks  *services.PicksService
	logger *logrus.Logger
}

func NewPicksHandler(picks *services.PicksService, logger *logrus.Logger) *PicksHandler {
	return &PicksHandler{
		picks:  picks,
		logger: logger,
	}
}

// GetPicks returns the slate for a date, defaulting to today.
func (h *PicksHandler) GetPicks(c *gin.Context) {
	date := c.DefaultQuery("date", services.TodayDate())
	if !datePattern.MatchString(date) {
		utils.SendValidationError(c, "Invalid date", "Use YYYY-MM-DD format")
		return
	}

	picks, err := h.picks.GetPicksByDate(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendNotFound(c, "No picks for date "+date)
			return
		}
		h.logger.WithField("error", err.Error()).Error("Failed to fetch picks")
		utils.SendDatabaseError(c, "Failed to fetch picks")
		return
	}

	utils.SendSuccess(c, gin.H{
		"date":  date,
		"picks": picks,
	})
}

// GeneratePicks triggers pick generation, admin only. force=true overwrites
// an existing slate; otherwise an existing slate is returned as-is.
func (h *PicksHandler) GeneratePicks(c *gin.Context) {
	var req struct {
		Date  string `json:"date"`
		Force bool   `json:"force"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendValidationError(c, "Invalid request body", err.Error())
			return
		}
	}

	date := req.Date
	if date == "" {
		date = services.TodayDate()
	}
	if !datePattern.MatchString(date) {
		utils.SendValidationError(c, "Invalid date", "Use YYYY-MM-DD format")
		return
	}

	ctx := c.Request.Context()
	if !req.Force && !h.picks.ShouldRegenerate(ctx, date) {
		picks, err := h.picks.GetPicksByDate(ctx, date)
		if err == nil {
			utils.SendSuccess(c, gin.H{
				"date":      date,
				"picks":     picks,
				"generated": false,
			})
			return
		}
	}

	picks, err := h.picks.GeneratePicks(ctx, date)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"pick_date": date,
			"error":     err.Error(),
		}).Error("Pick generation failed")
		utils.SendInternalError(c, "Pick generation failed")
		return
	}

	utils.SendSuccess(c, gin.H{
		"date":      date,
		"picks":     picks,
		"generated": true,
	})
}
