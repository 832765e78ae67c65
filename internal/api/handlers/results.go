package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/utils"
)

type ResultsHandler struct {
	results *services.ResultsService
	logger  *logrus.Logger
}

func NewResultsHandler(results *services.ResultsService, logger *logrus.Logger) *ResultsHandler {
	return &ResultsHandler{
		results: results,
		logger:  logger,
	}
}

// GetResults returns graded results plus a summary. With ?date= it serves
// one day's ledger; without it, the most recent results across dates.
func (h *ResultsHandler) GetResults(c *gin.Context) {
	date := c.Query("date")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	if date != "" {
		if !datePattern.MatchString(date) {
			utils.SendValidationError(c, "Invalid date", "Use YYYY-MM-DD format")
			return
		}
		results, err := h.results.GetResultsByDate(date)
		if err != nil {
			h.logger.WithField("error", err.Error()).Error("Failed to fetch results")
			utils.SendDatabaseError(c, "Failed to fetch results")
			return
		}
		utils.SendSuccess(c, gin.H{
			"date":    date,
			"results": results,
			"summary": services.Summarize(results),
		})
		return
	}

	results, err := h.results.GetRecentResults(limit)
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to fetch results")
		utils.SendDatabaseError(c, "Failed to fetch results")
		return
	}
	utils.SendSuccess(c, gin.H{
		"results": results,
		"summary": services.Summarize(results),
	})
}

// GradeResults grades a date's picks against final scores, admin only.
func (h *ResultsHandler) GradeResults(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendValidationError(c, "Invalid request body", err.Error())
			return
		}
	}
	if req.Date == "" {
		utils.SendValidationError(c, "Missing date", "Pass the date to grade as {\"date\": \"YYYY-MM-DD\"}")
		return
	}
	if !datePattern.MatchString(req.Date) {
		utils.SendValidationError(c, "Invalid date", "Use YYYY-MM-DD format")
		return
	}

	graded, err := h.results.GradeDate(c.Request.Context(), req.Date)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"pick_date": req.Date,
			"error":     err.Error(),
		}).Error("Grading failed")
		utils.SendInternalError(c, "Grading failed")
		return
	}

	utils.SendSuccess(c, gin.H{
		"date":    req.Date,
		"graded":  len(graded),
		"results": graded,
		"summary": services.Summarize(graded),
	})
}
