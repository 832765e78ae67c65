package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/gary-ai/backend/pkg/metrics"
)

const defaultSportsDBBaseURL = "https://www.thesportsdb.com/api/v1/json"

// SportsDBEvent is one event row from TheSportsDB. Scores arrive as strings
// and are empty until the game finishes.
type SportsDBEvent struct {
	IDEvent   string `json:"idEvent"`
	Event     string `json:"strEvent"`
	League    string `json:"strLeague"`
	HomeTeam  string `json:"strHomeTeam"`
	AwayTeam  string `json:"strAwayTeam"`
	HomeScore string `json:"intHomeScore"`
	AwayScore string `json:"intAwayScore"`
	Status    string `json:"strStatus"`
	DateEvent string `json:"dateEvent"`
}

// Scores returns the final score when both values are present.
func (e *SportsDBEvent) Scores() (home, away int, ok bool) {
	h, errH := strconv.Atoi(e.HomeScore)
	a, errA := strconv.Atoi(e.AwayScore)
	if errH != nil || errA != nil {
		return 0, 0, false
	}
	return h, a, true
}

type sportsDBEventsResponse struct {
	Events []SportsDBEvent `json:"events"`
}

// SportsDBClient forwards TheSportsDB requests with server-side key
// injection. Responses are cached for the configured TTL and concurrent
// identical requests collapse to one upstream call.
type SportsDBClient struct {
	httpClient  *http.Client
	cache       CacheProvider
	logger      *logrus.Logger
	rateLimiter *rate.Limiter
	flight      SingleFlight
	apiKey      string
	baseURL     string
	cacheTTL    time.Duration
}

// NewSportsDBClient creates a new TheSportsDB client
func NewSportsDBClient(apiKey string, timeout, cacheTTL time.Duration, cache CacheProvider, logger *logrus.Logger) *SportsDBClient {
	return &SportsDBClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:       cache,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1), // free tier allows ~30/min
		apiKey:      apiKey,
		baseURL:     defaultSportsDBBaseURL,
		cacheTTL:    cacheTTL,
	}
}

// Passthrough forwards an arbitrary sportsdb request, serving repeats from
// cache. Only successful upstream responses are cached.
func (s *SportsDBClient) Passthrough(ctx context.Context, endpoint, rawQuery string) ([]byte, int, error) {
	cleaned, err := sanitizeProxyEndpoint(endpoint)
	if err != nil {
		return nil, 0, err
	}

	cacheKey := fmt.Sprintf("sportsdb:%s?%s", cleaned, rawQuery)
	if s.cache != nil {
		if cached, err := s.cache.GetRaw(ctx, cacheKey); err == nil {
			metrics.ProxyCacheHits.WithLabelValues("sportsdb").Inc()
			return cached, http.StatusOK, nil
		}
	}
	metrics.ProxyCacheMisses.WithLabelValues("sportsdb").Inc()

	body, err, shared := s.flight.Do(cacheKey, func() ([]byte, error) {
		return s.fetch(ctx, cleaned, rawQuery)
	})
	if err != nil {
		return nil, 0, err
	}
	if shared {
		s.logger.WithField("endpoint", cleaned).Debug("sportsdb request collapsed into in-flight call")
	}

	if s.cache != nil && !shared {
		if err := s.cache.SetRaw(ctx, cacheKey, body, s.cacheTTL); err != nil {
			s.logger.WithField("error", err.Error()).Warn("Failed to cache sportsdb response")
		}
	}

	return body, http.StatusOK, nil
}

func (s *SportsDBClient) fetch(ctx context.Context, endpoint, rawQuery string) ([]byte, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query string: %w", err)
	}

	target := fmt.Sprintf("%s/%s/%s", s.baseURL, s.apiKey, endpoint)
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sportsdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sportsdb returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sportsdb response: %w", err)
	}

	return body, nil
}

// GetEventsByDate returns the day's events for a league, used by results
// grading to match final scores against picks.
func (s *SportsDBClient) GetEventsByDate(ctx context.Context, date, league string) ([]SportsDBEvent, error) {
	query := url.Values{}
	query.Set("d", date)
	query.Set("l", league)

	body, _, err := s.Passthrough(ctx, "eventsday.php", query.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for %s on %s: %w", league, date, err)
	}

	var resp sportsDBEventsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode events response: %w", err)
	}

	return resp.Events, nil
}
