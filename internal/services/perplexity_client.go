package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/gary-ai/backend/pkg/metrics"
)

const defaultPerplexityBaseURL = "https://api.perplexity.ai"

// PerplexityClient handles interaction with the Perplexity API, which the
// pick pipeline uses for recent-news context. The API is OpenAI-compatible,
// so it shares the chat completion types. Only allow-listed models may be
// requested; the proxy surface is otherwise an open relay on a paid key.
type PerplexityClient struct {
	httpClient     *http.Client
	logger         *logrus.Logger
	apiKey         string
	baseURL        string
	defaultModel   string
	allowedModels  map[string]bool
	rateLimiter    *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
}

// NewPerplexityClient creates a new Perplexity API client
func NewPerplexityClient(apiKey, defaultModel string, allowedModels []string, requestsPerMinute, breakerThreshold int, logger *logrus.Logger) *PerplexityClient {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 5
	}

	allowed := make(map[string]bool, len(allowedModels))
	for _, m := range allowedModels {
		allowed[m] = true
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "perplexity-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(breakerThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Perplexity circuit breaker state changed")
		},
	})

	return &PerplexityClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:         logger,
		apiKey:         apiKey,
		baseURL:        defaultPerplexityBaseURL,
		defaultModel:   defaultModel,
		allowedModels:  allowed,
		rateLimiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		circuitBreaker: cb,
	}
}

// ValidateModel rejects model identifiers outside the fixed allow-list.
func (c *PerplexityClient) ValidateModel(model string) error {
	if model == "" || c.allowedModels[model] {
		return nil
	}
	return fmt.Errorf("model %q is not allowed", model)
}

// CreateChatCompletion sends a chat completion request. A single attempt per
// call; news context is optional and the caller degrades without it.
func (c *PerplexityClient) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("Perplexity API key not configured")
	}
	if request.Model == "" {
		request.Model = c.defaultModel
	}
	if err := c.ValidateModel(request.Model); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	response, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.makeRequest(ctx, request)
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues("perplexity", "error").Inc()
		return nil, fmt.Errorf("Perplexity request failed: %w", err)
	}

	metrics.LLMRequests.WithLabelValues("perplexity", "ok").Inc()
	return response.(*ChatCompletionResponse), nil
}

func (c *PerplexityClient) makeRequest(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr chatCompletionError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("perplexity error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &completion, nil
}

// Forward sends a pre-encoded completion payload upstream and returns the
// response verbatim, for the proxy endpoint. The handler validates the model
// against the allow-list before calling.
func (c *PerplexityClient) Forward(ctx context.Context, payload []byte) ([]byte, int, error) {
	if c.apiKey == "" {
		return nil, 0, fmt.Errorf("Perplexity API key not configured")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("perplexity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
