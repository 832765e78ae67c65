package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/internal/services"
)

// newProxyTestRouter builds the proxy surface with keyless clients. Every
// test here stops at validation, before anything would go upstream.
func newProxyTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := logrus.New()

	openai := services.NewOpenAIClient("", "gpt-4o", 6000, 5, log)
	perplexity := services.NewPerplexityClient("", "sonar", []string{"sonar", "sonar-pro"}, 6000, 5, log)
	odds := providers.NewOddsClient("", time.Second, 5, log)
	sportsdb := providers.NewSportsDBClient("", time.Second, time.Minute, nil, log)

	handler := NewProxyHandler(openai, perplexity, odds, sportsdb, log)

	router := gin.New()
	router.POST("/api/openai-proxy", handler.OpenAIProxy)
	router.POST("/api/perplexity-proxy", handler.PerplexityProxy)
	router.GET("/api/odds-proxy", handler.OddsProxy)
	router.GET("/api/sportsdb-proxy", handler.SportsDBProxy)
	return router
}

// TestPerplexityProxyRejectsDisallowedModel tests the allow-list gate: the
// request dies with 400 before any upstream traffic.
func TestPerplexityProxyRejectsDisallowedModel(t *testing.T) {
	router := newProxyTestRouter(t)

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/perplexity-proxy", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Model not allowed", errorMessage(resp))
}

func TestPerplexityProxyRejectsEmptyBody(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/perplexity-proxy", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Empty request body", errorMessage(decodeResponse(t, w)))
}

func TestPerplexityProxyRejectsMalformedJSON(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/perplexity-proxy", strings.NewReader(`{"model": `))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", errorMessage(decodeResponse(t, w)))
}

func TestOpenAIProxyRejectsEmptyBody(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/openai-proxy", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Empty request body", errorMessage(decodeResponse(t, w)))
}

func TestOddsProxyRequiresEndpoint(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/odds-proxy?regions=us", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing endpoint", errorMessage(decodeResponse(t, w)))
}

func TestSportsDBProxyRequiresEndpoint(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sportsdb-proxy", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing endpoint", errorMessage(decodeResponse(t, w)))
}

func TestSportsDBProxyRejectsEscapingEndpoint(t *testing.T) {
	router := newProxyTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sportsdb-proxy?endpoint=../admin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, false, resp["success"])
}
