package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/gary-ai/backend/pkg/metrics"
)

const defaultOddsBaseURL = "https://api.the-odds-api.com/v4"

// Sport keys recognized by The Odds API for the leagues we cover.
const (
	SportKeyNBA = "basketball_nba"
	SportKeyNFL = "americanfootball_nfl"
	SportKeyMLB = "baseball_mlb"
	SportKeyNHL = "icehockey_nhl"
)

// SportKeyForLeague maps a league tag onto its odds API sport key.
func SportKeyForLeague(league string) (string, bool) {
	switch league {
	case "NBA":
		return SportKeyNBA, true
	case "NFL":
		return SportKeyNFL, true
	case "MLB":
		return SportKeyMLB, true
	case "NHL":
		return SportKeyNHL, true
	}
	return "", false
}

// The Odds API response structures
type OddsGame struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

type Bookmaker struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Markets []Market `json:"markets"`
}

type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Point float64 `json:"point,omitempty"`
}

// OddsClient fetches upcoming games with bookmaker prices from The Odds API.
// Generation-path calls never fail outward: any upstream problem substitutes
// the fixed mock game for the sport so downstream logic always has a game.
type OddsClient struct {
	httpClient *http.Client
	logger     *logrus.Logger
	breaker    *gobreaker.CircuitBreaker
	apiKey     string
	baseURL    string
}

// NewOddsClient creates a new odds API client
func NewOddsClient(apiKey string, timeout time.Duration, breakerThreshold int, logger *logrus.Logger) *OddsClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "odds-api",
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
			}).Info("Odds API circuit breaker state changed")
		},
	})

	return &OddsClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		breaker: cb,
		apiKey:  apiKey,
		baseURL: defaultOddsBaseURL,
	}
}

// GetUpcomingGames returns upcoming games with moneyline/spread/total prices
// for a sport key. One attempt per call, no retry. On any failure (missing
// key, non-2xx, timeout, open breaker, empty result) it returns exactly one
// mock game for the sport, never an empty list.
func (c *OddsClient) GetUpcomingGames(ctx context.Context, sportKey string) []OddsGame {
	if c.apiKey == "" {
		c.logger.Warn("Odds API key not configured, using mock game data")
		metrics.MockFallbacks.WithLabelValues(sportKey).Inc()
		return []OddsGame{MockGameForSport(sportKey)}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchGames(ctx, sportKey)
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"sport_key": sportKey,
			"error":     err.Error(),
		}).Warn("Odds API request failed, using mock game data")
		metrics.MockFallbacks.WithLabelValues(sportKey).Inc()
		return []OddsGame{MockGameForSport(sportKey)}
	}

	games := result.([]OddsGame)
	if len(games) == 0 {
		c.logger.WithField("sport_key", sportKey).Info("Odds API returned no games, using mock game data")
		metrics.MockFallbacks.WithLabelValues(sportKey).Inc()
		return []OddsGame{MockGameForSport(sportKey)}
	}

	return games
}

func (c *OddsClient) fetchGames(ctx context.Context, sportKey string) ([]OddsGame, error) {
	endpoint := fmt.Sprintf("%s/sports/%s/odds", c.baseURL, sportKey)
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", "us")
	params.Set("markets", "h2h,spreads,totals")
	params.Set("oddsFormat", "american")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odds API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("odds API returned status %d: %s", resp.StatusCode, string(body))
	}

	var games []OddsGame
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return nil, fmt.Errorf("failed to decode odds response: %w", err)
	}

	return games, nil
}

// Passthrough forwards an arbitrary odds API request for the proxy endpoint,
// injecting the server-side API key. Upstream status and body are returned
// verbatim; no mock substitution here.
func (c *OddsClient) Passthrough(ctx context.Context, endpoint, rawQuery string) ([]byte, int, error) {
	cleaned, err := sanitizeProxyEndpoint(endpoint)
	if err != nil {
		return nil, 0, err
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid query string: %w", err)
	}
	params.Set("apiKey", c.apiKey)

	target := fmt.Sprintf("%s/%s?%s", c.baseURL, cleaned, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("odds API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read odds response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// sanitizeProxyEndpoint rejects absolute URLs and path escapes so the proxy
// only ever reaches its own upstream.
func sanitizeProxyEndpoint(endpoint string) (string, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(endpoint), "/")
	if cleaned == "" {
		return "", fmt.Errorf("endpoint is required")
	}
	if strings.Contains(cleaned, "://") || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid endpoint %q", endpoint)
	}
	return cleaned, nil
}

// MockGameForSport returns the fixed hand-authored fallback game for a sport
// key. Unknown keys get a generic matchup so the result is still non-empty.
func MockGameForSport(sportKey string) OddsGame {
	home, away, title, total := "Home Team", "Away Team", "Sports", 45.5
	switch sportKey {
	case SportKeyNBA:
		home, away, title, total = "Los Angeles Lakers", "Boston Celtics", "NBA", 224.5
	case SportKeyNFL:
		home, away, title, total = "Kansas City Chiefs", "Buffalo Bills", "NFL", 47.5
	case SportKeyMLB:
		home, away, title, total = "New York Yankees", "Los Angeles Dodgers", "MLB", 8.5
	case SportKeyNHL:
		home, away, title, total = "New York Rangers", "Toronto Maple Leafs", "NHL", 6.5
	}

	return OddsGame{
		ID:           "mock-" + sportKey,
		SportKey:     sportKey,
		SportTitle:   title,
		CommenceTime: time.Now().UTC().Add(6 * time.Hour).Truncate(time.Minute),
		HomeTeam:     home,
		AwayTeam:     away,
		Bookmakers: []Bookmaker{
			{
				Key:   "draftkings",
				Title: "DraftKings",
				Markets: []Market{
					{
						Key: "h2h",
						Outcomes: []Outcome{
							{Name: home, Price: -145},
							{Name: away, Price: 125},
						},
					},
					{
						Key: "spreads",
						Outcomes: []Outcome{
							{Name: home, Price: -110, Point: -3.5},
							{Name: away, Price: -110, Point: 3.5},
						},
					},
					{
						Key: "totals",
						Outcomes: []Outcome{
							{Name: "Over", Price: -110, Point: total},
							{Name: "Under", Price: -110, Point: total},
						},
					},
				},
			},
		},
	}
}
