package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/pkg/database"
)

// EventSource provides the final scores grading runs against.
// *providers.SportsDBClient satisfies it.
type EventSource interface {
	GetEventsByDate(ctx context.Context, date, league string) ([]providers.SportsDBEvent, error)
}

// ResultsService grades persisted picks against final scores and serves
// the win/loss ledger. Units are tracked in decimal so the running ROI
// never drifts from float rounding.
type ResultsService struct {
	db     *database.DB
	events EventSource
	logger *logrus.Logger
}

func NewResultsService(db *database.DB, events EventSource, log *logrus.Logger) *ResultsService {
	return &ResultsService{
		db:     db,
		events: events,
		logger: log,
	}
}

// ResultsSummary aggregates a set of graded results.
type ResultsSummary struct {
	Wins   int             `json:"wins"`
	Losses int             `json:"losses"`
	Pushes int             `json:"pushes"`
	Voids  int             `json:"voids"`
	Record string          `json:"record"`
	Units  decimal.Decimal `json:"units"`
	ROI    decimal.Decimal `json:"roi"`
}

// GradeDate grades every pick persisted for a date. Picks whose game has
// no final score yet are skipped so the grader can rerun later; picks that
// already have a result row get their grade replaced.
func (s *ResultsService) GradeDate(ctx context.Context, date string) ([]models.PickResult, error) {
	sets, err := models.GetDailyPicksByDate(s.db, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load picks for %s: %w", date, err)
	}
	if len(sets) == 0 {
		return nil, nil
	}

	var picks []models.Pick
	leagues := make(map[string]bool)
	for _, set := range sets {
		picks = append(picks, set.Picks...)
		if set.League != models.LeagueParlay {
			leagues[set.League] = true
		}
	}

	events := make(map[string][]providers.SportsDBEvent)
	for league := range leagues {
		leagueEvents, err := s.events.GetEventsByDate(ctx, date, league)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"pick_date": date,
				"league":    league,
				"error":     err.Error(),
			}).Warn("Could not fetch final scores, league stays ungraded")
			continue
		}
		events[league] = leagueEvents
	}

	now := time.Now().UTC()
	var graded []models.PickResult
	for _, pick := range picks {
		result, ok := s.gradePick(pick, date, events)
		if !ok {
			continue
		}
		result.GradedAt = now
		if err := models.UpsertPickResult(s.db, &result); err != nil {
			s.logger.WithFields(logrus.Fields{
				"pick_id": pick.ID,
				"error":   err.Error(),
			}).Error("Failed to persist graded result")
			continue
		}
		graded = append(graded, result)
	}

	s.logger.WithFields(logrus.Fields{
		"pick_date": date,
		"picks":     len(picks),
		"graded":    len(graded),
	}).Info("Grading pass complete")
	return graded, nil
}

// GetResultsByDate returns the graded ledger for one date.
func (s *ResultsService) GetResultsByDate(date string) ([]models.PickResult, error) {
	return models.GetResultsByDate(s.db, date)
}

// GetRecentResults returns the latest graded results across dates.
func (s *ResultsService) GetRecentResults(limit int) ([]models.PickResult, error) {
	return models.GetRecentResults(s.db, limit)
}

// Summarize folds graded results into a record line, net units and ROI
// (net units over units risked, one unit per graded bet).
func Summarize(results []models.PickResult) ResultsSummary {
	summary := ResultsSummary{Units: decimal.Zero, ROI: decimal.Zero}
	for _, result := range results {
		switch result.Outcome {
		case models.OutcomeWon:
			summary.Wins++
		case models.OutcomeLost:
			summary.Losses++
		case models.OutcomePush:
			summary.Pushes++
		case models.OutcomeVoid:
			summary.Voids++
		}
		summary.Units = summary.Units.Add(result.Units)
	}

	summary.Record = fmt.Sprintf("%d-%d-%d", summary.Wins, summary.Losses, summary.Pushes)
	risked := summary.Wins + summary.Losses
	if risked > 0 {
		summary.ROI = summary.Units.Div(decimal.NewFromInt(int64(risked))).Round(4)
	}
	summary.Units = summary.Units.Round(4)
	return summary
}

// gradePick resolves one pick to an outcome. ok is false when the pick
// cannot be graded yet (no matching event or no final score).
func (s *ResultsService) gradePick(pick models.Pick, date string, events map[string][]providers.SportsDBEvent) (models.PickResult, bool) {
	if pick.BetType == models.BetTypeParlay {
		return s.gradeParlay(pick, date, events)
	}

	event, ok := findEvent(events[pick.League], pick.HomeTeam, pick.AwayTeam)
	if !ok {
		return models.PickResult{}, false
	}
	homeScore, awayScore, ok := event.Scores()
	if !ok {
		return models.PickResult{}, false
	}

	outcome, ok := gradeTeamPick(pick.Pick, pick.BetType, event, homeScore, awayScore)
	if !ok {
		return models.PickResult{}, false
	}

	return models.PickResult{
		PickID:    pick.ID,
		PickDate:  date,
		League:    pick.League,
		BetType:   pick.BetType,
		PickText:  pick.Pick,
		Odds:      pick.Odds,
		Outcome:   outcome,
		HomeTeam:  event.HomeTeam,
		AwayTeam:  event.AwayTeam,
		HomeScore: homeScore,
		AwayScore: awayScore,
		Units:     unitsFor(outcome, pick.Odds),
	}, true
}

// gradeParlay settles a parlay from its legs: every leg must grade. Any
// lost leg loses the ticket; all legs won wins it; a push anywhere voids
// the ticket rather than repricing it.
func (s *ResultsService) gradeParlay(pick models.Pick, date string, events map[string][]providers.SportsDBEvent) (models.PickResult, bool) {
	if len(pick.ParlayLegs) == 0 {
		return models.PickResult{}, false
	}

	outcome := models.OutcomeWon
	for _, leg := range pick.ParlayLegs {
		home, away := splitMatchup(leg.Game)
		event, ok := findEvent(events[leg.League], home, away)
		if !ok {
			return models.PickResult{}, false
		}
		homeScore, awayScore, ok := event.Scores()
		if !ok {
			return models.PickResult{}, false
		}

		betType := models.BetTypeMoneyline
		if _, isSpread := spreadLine(leg.Pick); isSpread {
			betType = models.BetTypeSpread
		}
		legOutcome, ok := gradeTeamPick(leg.Pick, betType, event, homeScore, awayScore)
		if !ok {
			return models.PickResult{}, false
		}
		switch legOutcome {
		case models.OutcomeLost:
			outcome = models.OutcomeLost
		case models.OutcomePush, models.OutcomeVoid:
			if outcome != models.OutcomeLost {
				outcome = models.OutcomeVoid
			}
		}
	}

	return models.PickResult{
		PickID:   pick.ID,
		PickDate: date,
		League:   pick.League,
		BetType:  pick.BetType,
		PickText: pick.Pick,
		Odds:     pick.Odds,
		Outcome:  outcome,
		Units:    unitsFor(outcome, pick.Odds),
	}, true
}

// gradeTeamPick settles a single-game pick against final scores.
func gradeTeamPick(pickText, betType string, event providers.SportsDBEvent, homeScore, awayScore int) (string, bool) {
	switch betType {
	case models.BetTypeTotal:
		side, line, ok := totalSide(pickText)
		if !ok {
			return "", false
		}
		total := float64(homeScore + awayScore)
		switch {
		case total == line:
			return models.OutcomePush, true
		case (side == "over") == (total > line):
			return models.OutcomeWon, true
		default:
			return models.OutcomeLost, true
		}

	case models.BetTypeSpread:
		pickedHome, ok := pickedHomeSide(pickText, event)
		if !ok {
			return "", false
		}
		line, ok := spreadLine(pickText)
		if !ok {
			return "", false
		}
		margin := float64(homeScore - awayScore)
		if !pickedHome {
			margin = -margin
		}
		adjusted := margin + line
		switch {
		case adjusted > 0:
			return models.OutcomeWon, true
		case adjusted == 0:
			return models.OutcomePush, true
		default:
			return models.OutcomeLost, true
		}

	default: // moneyline
		pickedHome, ok := pickedHomeSide(pickText, event)
		if !ok {
			return "", false
		}
		switch {
		case homeScore == awayScore:
			return models.OutcomePush, true
		case pickedHome == (homeScore > awayScore):
			return models.OutcomeWon, true
		default:
			return models.OutcomeLost, true
		}
	}
}

// unitsFor prices an outcome at one risked unit in American odds.
func unitsFor(outcome string, odds int) decimal.Decimal {
	switch outcome {
	case models.OutcomeWon:
		if odds > 0 {
			return decimal.NewFromInt(int64(odds)).Div(decimal.NewFromInt(100)).Round(4)
		}
		if odds < 0 {
			return decimal.NewFromInt(100).Div(decimal.NewFromInt(int64(-odds))).Round(4)
		}
		return decimal.Zero
	case models.OutcomeLost:
		return decimal.NewFromInt(-1)
	default:
		return decimal.Zero
	}
}

// findEvent locates the event whose teams match the pick's teams. Matching
// is loose: full-name containment or shared nickname, either orientation.
func findEvent(events []providers.SportsDBEvent, homeTeam, awayTeam string) (providers.SportsDBEvent, bool) {
	for _, event := range events {
		if (teamsMatch(event.HomeTeam, homeTeam) && teamsMatch(event.AwayTeam, awayTeam)) ||
			(teamsMatch(event.HomeTeam, awayTeam) && teamsMatch(event.AwayTeam, homeTeam)) {
			return event, true
		}
	}
	return providers.SportsDBEvent{}, false
}

func teamsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == lb || strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}
	return lastWord(la) == lastWord(lb)
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// splitMatchup splits a "Home Team vs Away Team" game label.
func splitMatchup(game string) (string, string) {
	parts := strings.SplitN(game, " vs ", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(game), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// pickedHomeSide reports which side of the event the pick text names.
func pickedHomeSide(pickText string, event providers.SportsDBEvent) (pickedHome bool, ok bool) {
	lower := strings.ToLower(pickText)
	homeHit := strings.Contains(lower, strings.ToLower(event.HomeTeam)) || strings.Contains(lower, lastWord(strings.ToLower(event.HomeTeam)))
	awayHit := strings.Contains(lower, strings.ToLower(event.AwayTeam)) || strings.Contains(lower, lastWord(strings.ToLower(event.AwayTeam)))
	if homeHit == awayHit {
		return false, false
	}
	return homeHit, true
}

var (
	spreadLinePattern = regexp.MustCompile(`([-+]\d+(?:\.\d+)?)\s*$`)
	totalSidePattern  = regexp.MustCompile(`(?i)\b(over|under)\b\s*([\d.]+)`)
)

// spreadLine extracts the trailing signed line from pick text like
// "Chiefs -3.5".
func spreadLine(pickText string) (float64, bool) {
	match := spreadLinePattern.FindStringSubmatch(strings.TrimSpace(pickText))
	if match == nil {
		return 0, false
	}
	line, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return line, true
}

// totalSide extracts side and line from pick text like "Over 224.5".
func totalSide(pickText string) (string, float64, bool) {
	match := totalSidePattern.FindStringSubmatch(pickText)
	if match == nil {
		return "", 0, false
	}
	line, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return "", 0, false
	}
	return strings.ToLower(match[1]), line, true
}
