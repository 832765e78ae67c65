package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
)

const (
	// MinConfidence and MaxConfidence bound every published pick.
	MinConfidence = 0.5
	MaxConfidence = 1.0

	defaultConfidence = 0.65
	defaultOdds       = -110

	maxParlayLegs = 3
)

// FormatAmericanOdds renders a signed odds integer the way sportsbooks
// print it: positive prices keep an explicit plus sign.
func FormatAmericanOdds(odds int) string {
	if odds > 0 {
		return fmt.Sprintf("+%d", odds)
	}
	return fmt.Sprintf("%d", odds)
}

// ClampConfidence forces a model-reported confidence into the published
// range. Zero (missing) gets the default rather than the floor.
func ClampConfidence(confidence float64) float64 {
	if confidence == 0 {
		return defaultConfidence
	}
	if confidence < MinConfidence {
		return MinConfidence
	}
	if confidence > MaxConfidence {
		return MaxConfidence
	}
	return confidence
}

// AmericanToDecimal converts American odds to decimal multiplier form.
func AmericanToDecimal(odds int) float64 {
	if odds > 0 {
		return 1 + float64(odds)/100
	}
	if odds < 0 {
		return 1 + 100/math.Abs(float64(odds))
	}
	return 1
}

// DecimalToAmerican converts a decimal multiplier back to American odds.
func DecimalToAmerican(decimal float64) int {
	if decimal >= 2 {
		return int(math.Round((decimal - 1) * 100))
	}
	if decimal > 1 {
		return -int(math.Round(100 / (decimal - 1)))
	}
	return 0
}

// NormalizePick merges a validated model analysis with the game context
// into the persisted pick shape: id assignment, league/game defaults,
// confidence clamping, bet-type policy, team backfill and display strings.
func NormalizePick(analysis *GameAnalysis, game providers.OddsGame, league string) models.Pick {
	pick := models.Pick{
		ID:         uuid.New().String(),
		League:     league,
		Game:       fmt.Sprintf("%s vs %s", game.HomeTeam, game.AwayTeam),
		BetType:    analysis.BetType,
		Pick:       strings.TrimSpace(analysis.Pick),
		Odds:       analysis.Odds,
		Confidence: ClampConfidence(analysis.Confidence),
		Rationale:  strings.TrimSpace(analysis.Rationale),
		HomeTeam:   strings.TrimSpace(analysis.HomeTeam),
		AwayTeam:   strings.TrimSpace(analysis.AwayTeam),
		GameTime:   strings.TrimSpace(analysis.GameTime),
	}

	// Team picks never publish as over/unders.
	if pick.BetType == models.BetTypeTotal || !models.IsValidBetType(pick.BetType) {
		pick.BetType = models.BetTypeMoneyline
	}
	if pick.Odds == 0 {
		pick.Odds = defaultOdds
	}
	if pick.GameTime == "" {
		pick.GameTime = game.CommenceTime.Format(time.RFC3339)
	}
	if pick.HomeTeam == "" {
		pick.HomeTeam = game.HomeTeam
	}
	if pick.AwayTeam == "" {
		pick.AwayTeam = game.AwayTeam
	}
	// The odds feed occasionally sends blank team names on mock-adjacent
	// rows; recover them from the pick and rationale text.
	if pick.HomeTeam == "" {
		pick.HomeTeam = matchTeamInText(pick.Pick+" "+pick.Rationale, game.HomeTeam, game.AwayTeam)
	}
	if pick.AwayTeam == "" && pick.HomeTeam != game.AwayTeam {
		pick.AwayTeam = matchTeamInText(pick.Pick+" "+pick.Rationale, game.AwayTeam, game.HomeTeam)
	}

	pick.FormattedOdds = FormatAmericanOdds(pick.Odds)
	pick.FormattedPick = fmt.Sprintf("%s (%s)", pick.Pick, pick.FormattedOdds)

	return pick
}

// matchTeamInText returns candidate if the text mentions it, by full name
// or by nickname (last word). Empty string when no mention is found.
func matchTeamInText(text, candidate, other string) string {
	if candidate == "" {
		return ""
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(candidate)) {
		return candidate
	}
	parts := strings.Fields(candidate)
	if len(parts) > 1 {
		nickname := strings.ToLower(parts[len(parts)-1])
		if strings.Contains(lower, nickname) && !strings.Contains(strings.ToLower(other), nickname) {
			return candidate
		}
	}
	return ""
}

// FallbackPicks returns the fixed example set published when generation
// produced fewer than the daily minimum. Times land at 7pm ET on the
// given date so the cards render with a plausible slate.
func FallbackPicks(date string) []models.Pick {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		parsed = time.Now().UTC()
	}
	gameTime := parsed.Add(23 * time.Hour).Format(time.RFC3339)

	picks := []models.Pick{
		{
			League:     models.LeagueNBA,
			Game:       "Los Angeles Lakers vs Boston Celtics",
			BetType:    models.BetTypeMoneyline,
			Pick:       "Boston Celtics ML",
			Odds:       -145,
			Confidence: 0.72,
			Rationale:  "Boston's top-five defense travels well and Los Angeles is on the second night of a back-to-back.",
			HomeTeam:   "Los Angeles Lakers",
			AwayTeam:   "Boston Celtics",
		},
		{
			League:     models.LeagueNFL,
			Game:       "Kansas City Chiefs vs Buffalo Bills",
			BetType:    models.BetTypeSpread,
			Pick:       "Kansas City Chiefs -3.5",
			Odds:       -110,
			Confidence: 0.68,
			Rationale:  "Kansas City covers at home in primetime and Buffalo's secondary is banged up.",
			HomeTeam:   "Kansas City Chiefs",
			AwayTeam:   "Buffalo Bills",
		},
		{
			League:     models.LeagueMLB,
			Game:       "New York Yankees vs Los Angeles Dodgers",
			BetType:    models.BetTypeMoneyline,
			Pick:       "New York Yankees ML",
			Odds:       120,
			Confidence: 0.61,
			Rationale:  "Yankees have the pitching edge with their ace on full rest against a Dodgers lineup that struggles versus lefties.",
			HomeTeam:   "New York Yankees",
			AwayTeam:   "Los Angeles Dodgers",
		},
		{
			League:     models.LeagueNHL,
			Game:       "New York Rangers vs Toronto Maple Leafs",
			BetType:    models.BetTypeMoneyline,
			Pick:       "New York Rangers ML",
			Odds:       -125,
			Confidence: 0.64,
			Rationale:  "Rangers goaltending has been elite at home and Toronto is without its top-pair defenseman.",
			HomeTeam:   "New York Rangers",
			AwayTeam:   "Toronto Maple Leafs",
		},
	}

	for i := range picks {
		picks[i].ID = uuid.New().String()
		picks[i].GameTime = gameTime
		picks[i].FormattedOdds = FormatAmericanOdds(picks[i].Odds)
		picks[i].FormattedPick = fmt.Sprintf("%s (%s)", picks[i].Pick, picks[i].FormattedOdds)
	}

	return picks
}

// BuildParlayPick combines the highest-confidence picks of the day into a
// single parlay record. Needs at least two team picks; returns false when
// the slate is too thin.
func BuildParlayPick(picks []models.Pick) (models.Pick, bool) {
	candidates := make([]models.Pick, 0, len(picks))
	for _, p := range picks {
		if p.League == models.LeagueParlay || p.BetType == models.BetTypeParlay {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) < 2 {
		return models.Pick{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > maxParlayLegs {
		candidates = candidates[:maxParlayLegs]
	}

	legs := make([]models.ParlayLeg, 0, len(candidates))
	labels := make([]string, 0, len(candidates))
	combinedDecimal := 1.0
	confidence := 1.0

	for _, leg := range candidates {
		legs = append(legs, models.ParlayLeg{
			League: leg.League,
			Game:   leg.Game,
			Pick:   leg.Pick,
			Odds:   leg.Odds,
		})
		labels = append(labels, leg.Pick)
		combinedDecimal *= AmericanToDecimal(leg.Odds)
		confidence *= leg.Confidence
	}

	odds := DecimalToAmerican(combinedDecimal)
	parlay := models.Pick{
		ID:         uuid.New().String(),
		League:     models.LeagueParlay,
		Game:       fmt.Sprintf("%d-Leg Parlay", len(legs)),
		BetType:    models.BetTypeParlay,
		Pick:       strings.Join(labels, " + "),
		Odds:       odds,
		Confidence: ClampConfidence(confidence),
		Rationale:  fmt.Sprintf("Combining the %d strongest edges on today's board into one ticket.", len(legs)),
		GameTime:   candidates[0].GameTime,
		ParlayLegs: legs,
	}
	parlay.FormattedOdds = FormatAmericanOdds(parlay.Odds)
	parlay.FormattedPick = fmt.Sprintf("%d-Leg Parlay (%s)", len(legs), parlay.FormattedOdds)

	return parlay, true
}
