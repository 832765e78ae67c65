package handlers

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/utils"
)

// proxyBodyLimit bounds completion request bodies forwarded upstream.
const proxyBodyLimit = 4 << 20

// ProxyHandler forwards front-end requests to the third-party APIs with
// server-side key injection, so no key ever ships in client code.
type ProxyHandler struct {
	openai     *services.OpenAIClient
	perplexity *services.PerplexityClient
	odds       *providers.OddsClient
	sportsdb   *providers.SportsDBClient
	logger     *logrus.Logger
}

func NewProxyHandler(openai *services.OpenAIClient, perplexity *services.PerplexityClient, odds *providers.OddsClient, sportsdb *providers.SportsDBClient, logger *logrus.Logger) *ProxyHandler {
	return &ProxyHandler{
		openai:     openai,
		perplexity: perplexity,
		odds:       odds,
		sportsdb:   sportsdb,
		logger:     logger,
	}
}

// OpenAIProxy forwards a chat-completion body to OpenAI verbatim.
func (h *ProxyHandler) OpenAIProxy(c *gin.Context) {
	payload, ok := h.readCompletionBody(c)
	if !ok {
		return
	}

	body, status, err := h.openai.Forward(c.Request.Context(), payload)
	if err != nil {
		h.logger.WithField("error", err.Error()).Warn("OpenAI proxy request failed")
		utils.SendUpstreamError(c, "OpenAI request failed", err.Error())
		return
	}

	c.Data(status, "application/json", body)
}

// PerplexityProxy forwards a chat-completion body to Perplexity. Models
// outside the allow-list are rejected before anything goes upstream.
func (h *ProxyHandler) PerplexityProxy(c *gin.Context) {
	payload, ok := h.readCompletionBody(c)
	if !ok {
		return
	}

	var probe struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}
	if err := h.perplexity.ValidateModel(probe.Model); err != nil {
		utils.SendValidationError(c, "Model not allowed", err.Error())
		return
	}

	body, status, err := h.perplexity.Forward(c.Request.Context(), payload)
	if err != nil {
		h.logger.WithField("error", err.Error()).Warn("Perplexity proxy request failed")
		utils.SendUpstreamError(c, "Perplexity request failed", err.Error())
		return
	}

	c.Data(status, "application/json", body)
}

// OddsProxy forwards an odds API query, e.g.
// /api/odds-proxy?endpoint=sports/basketball_nba/odds&regions=us.
func (h *ProxyHandler) OddsProxy(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		utils.SendValidationError(c, "Missing endpoint", "Pass the upstream path in ?endpoint=")
		return
	}

	query := c.Request.URL.Query()
	query.Del("endpoint")

	body, status, err := h.odds.Passthrough(c.Request.Context(), endpoint, query.Encode())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("Odds proxy request failed")
		utils.SendUpstreamError(c, "Odds API request failed", err.Error())
		return
	}

	c.Data(status, "application/json", body)
}

// SportsDBProxy forwards a TheSportsDB query. Responses are cached
// server-side and concurrent identical lookups collapse to one upstream
// call, keeping the free-tier quota intact.
func (h *ProxyHandler) SportsDBProxy(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		utils.SendValidationError(c, "Missing endpoint", "Pass the upstream path in ?endpoint=")
		return
	}

	query := c.Request.URL.Query()
	query.Del("endpoint")

	body, status, err := h.sportsdb.Passthrough(c.Request.Context(), endpoint, query.Encode())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("SportsDB proxy request failed")
		utils.SendUpstreamError(c, "SportsDB request failed", err.Error())
		return
	}

	c.Data(status, "application/json", body)
}

// readCompletionBody reads and bounds a completion request body.
func (h *ProxyHandler) readCompletionBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, proxyBodyLimit))
	if err != nil {
		utils.SendBadRequest(c, "Failed to read request body")
		return nil, false
	}
	if len(payload) == 0 {
		utils.SendValidationError(c, "Empty request body", "Expected a chat completion request")
		return nil, false
	}
	return payload, true
}
