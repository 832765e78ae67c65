package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/pkg/metrics"
)

// ErrInvalidAnalysis marks model output that failed JSON extraction or
// schema validation. The raw text travels back with it so callers can log
// or persist what the model actually said.
var ErrInvalidAnalysis = errors.New("analysis output failed validation")

const analysisSystemPrompt = "You are Gary A.I., a sharp sports betting analyst. " +
	"You respond with exactly one JSON object and no other text."

// GameAnalysis is the object the model is instructed to return for a game.
type GameAnalysis struct {
	Pick       string  `json:"pick"`
	BetType    string  `json:"betType"`
	Odds       int     `json:"odds"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	HomeTeam   string  `json:"homeTeam"`
	AwayTeam   string  `json:"awayTeam"`
	GameTime   string  `json:"gameTime"`
}

// Validate checks the fixed key set the prompt demands. Confidence is
// accepted on (0, 1] here; the normalizer clamps it to the published range.
func (a *GameAnalysis) Validate() error {
	if strings.TrimSpace(a.Pick) == "" {
		return fmt.Errorf("missing pick")
	}
	if !models.IsValidBetType(a.BetType) {
		return fmt.Errorf("invalid betType %q", a.BetType)
	}
	if a.Odds == 0 {
		return fmt.Errorf("missing odds")
	}
	if a.Confidence <= 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", a.Confidence)
	}
	return nil
}

// AnalysisService turns game data plus news context into a validated pick
// via the LLM. It owns the prompt, the response surgery and the schema gate.
type AnalysisService struct {
	openai     *OpenAIClient
	perplexity *PerplexityClient
	cache      *CacheService
	logger     *logrus.Logger
}

func NewAnalysisService(openai *OpenAIClient, perplexity *PerplexityClient, cache *CacheService, logger *logrus.Logger) *AnalysisService {
	return &AnalysisService{
		openai:     openai,
		perplexity: perplexity,
		cache:      cache,
		logger:     logger,
	}
}

// AnalyzeGame asks the model for a recommendation on one game. On success it
// returns the validated analysis plus the raw model text; on parse or
// validation failure it returns the raw text with ErrInvalidAnalysis so the
// caller applies its fallback policy instead of building a partial record.
func (s *AnalysisService) AnalyzeGame(ctx context.Context, game providers.OddsGame, news string) (*GameAnalysis, string, error) {
	prompt := BuildGamePrompt(game, news)

	completion, err := s.openai.CreateChatCompletion(ctx, ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, "", err
	}

	raw := completion.FirstChoiceText()
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		metrics.AnalysisParseFailures.Inc()
		s.logger.WithFields(logrus.Fields{
			"game":  game.ID,
			"error": err.Error(),
		}).Warn("Model output failed analysis parsing")
		return nil, raw, err
	}

	return analysis, raw, nil
}

// GetGameNews fetches recent-news context for a matchup. Best effort: any
// failure returns an empty string and the analysis proceeds without news.
func (s *AnalysisService) GetGameNews(ctx context.Context, league string, game providers.OddsGame) string {
	matchup := fmt.Sprintf("%s vs %s", game.HomeTeam, game.AwayTeam)
	cacheKey := NewsCacheKey(league, matchup)

	var cached string
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached
		}
	}

	completion, err := s.perplexity.CreateChatCompletion(ctx, ChatCompletionRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: fmt.Sprintf(
				"Summarize the most recent injury reports, lineup changes and betting-relevant news for the %s game %s. Keep it under 150 words.",
				league, matchup)},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"league": league,
			"game":   matchup,
			"error":  err.Error(),
		}).Warn("News lookup failed, analyzing without news context")
		return ""
	}

	news := completion.FirstChoiceText()
	if s.cache != nil && news != "" {
		if err := s.cache.Set(ctx, cacheKey, news, 30*time.Minute); err != nil {
			s.logger.WithField("error", err.Error()).Debug("Failed to cache news")
		}
	}

	return news
}

// BuildGamePrompt embeds the game's bookmaker prices and the news block into
// the instruction the model answers.
func BuildGamePrompt(game providers.OddsGame, news string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Analyze this upcoming %s game and give me your single best bet.\n\n", game.SportTitle))
	prompt.WriteString(fmt.Sprintf("Game: %s vs %s\n", game.HomeTeam, game.AwayTeam))
	prompt.WriteString(fmt.Sprintf("Tip-off: %s\n\n", game.CommenceTime.Format(time.RFC1123)))

	prompt.WriteString("Current bookmaker prices:\n")
	for _, bookmaker := range game.Bookmakers {
		for _, market := range bookmaker.Markets {
			for _, outcome := range market.Outcomes {
				if market.Key == "h2h" {
					prompt.WriteString(fmt.Sprintf("- [%s] %s moneyline: %s %s\n",
						bookmaker.Title, market.Key, outcome.Name, FormatAmericanOdds(int(outcome.Price))))
				} else {
					prompt.WriteString(fmt.Sprintf("- [%s] %s: %s %.1f at %s\n",
						bookmaker.Title, market.Key, outcome.Name, outcome.Point, FormatAmericanOdds(int(outcome.Price))))
				}
			}
		}
	}

	if news != "" {
		prompt.WriteString("\nRecent news:\n")
		prompt.WriteString(news)
		prompt.WriteString("\n")
	}

	prompt.WriteString("\nRules: pick a moneyline or spread bet only, never an over/under.\n")
	prompt.WriteString("Respond with exactly one JSON object with these keys:\n")
	prompt.WriteString(`{
  "pick": "team name and line, e.g. Lakers -3.5",
  "betType": "moneyline or spread",
  "odds": -110,
  "confidence": 0.74,
  "rationale": "two or three sentences",
  "homeTeam": "home team name",
  "awayTeam": "away team name",
  "gameTime": "game start time"
}`)

	return prompt.String()
}

var leadingPlusOdds = regexp.MustCompile(`([:\[,]\s*)\+(\d)`)

// NormalizeOddsNotation strips the leading + sign models put on positive
// American odds, which breaks JSON parsing ("odds": +120 is not valid JSON).
func NormalizeOddsNotation(jsonText string) string {
	return leadingPlusOdds.ReplaceAllString(jsonText, "${1}${2}")
}

// ExtractJSONObject pulls the first {...} span out of free-form model text.
func ExtractJSONObject(raw string) (string, error) {
	startIdx := strings.Index(raw, "{")
	endIdx := strings.LastIndex(raw, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return raw[startIdx : endIdx+1], nil
}

// ParseAnalysis runs the full response surgery: extract the JSON span,
// normalize odds notation, decode, validate. Any failure wraps
// ErrInvalidAnalysis.
func ParseAnalysis(raw string) (*GameAnalysis, error) {
	extracted, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	normalized := NormalizeOddsNotation(extracted)

	var analysis GameAnalysis
	if err := json.Unmarshal([]byte(normalized), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	return &analysis, nil
}
