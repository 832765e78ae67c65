package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
)

// stubEventSource serves canned final scores per league.
type stubEventSource struct {
	events map[string][]providers.SportsDBEvent
	err    error
	calls  int
}

func (s *stubEventSource) GetEventsByDate(ctx context.Context, date, league string) ([]providers.SportsDBEvent, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events[league], nil
}

func finalEvent(home, away string, homeScore, awayScore int) providers.SportsDBEvent {
	return providers.SportsDBEvent{
		Event:     home + " vs " + away,
		HomeTeam:  home,
		AwayTeam:  away,
		HomeScore: strconv.Itoa(homeScore),
		AwayScore: strconv.Itoa(awayScore),
		Status:    "Match Finished",
	}
}

// TestGradeTeamPick tests settlement of single-game picks against final
// scores across bet types.
func TestGradeTeamPick(t *testing.T) {
	nbaEvent := finalEvent("Los Angeles Lakers", "Boston Celtics", 100, 110)
	nflEvent := finalEvent("Kansas City Chiefs", "Buffalo Bills", 27, 20)

	tests := []struct {
		name      string
		pickText  string
		betType   string
		event     providers.SportsDBEvent
		homeScore int
		awayScore int
		expected  string
		gradeable bool
	}{
		{"moneyline away winner", "Boston Celtics ML", models.BetTypeMoneyline, nbaEvent, 100, 110, models.OutcomeWon, true},
		{"moneyline home loser", "Los Angeles Lakers ML", models.BetTypeMoneyline, nbaEvent, 100, 110, models.OutcomeLost, true},
		{"moneyline tie pushes", "Boston Celtics ML", models.BetTypeMoneyline, nbaEvent, 105, 105, models.OutcomePush, true},
		{"favorite covers", "Kansas City Chiefs -3.5", models.BetTypeSpread, nflEvent, 27, 20, models.OutcomeWon, true},
		{"exact margin pushes", "Kansas City Chiefs -7", models.BetTypeSpread, nflEvent, 27, 20, models.OutcomePush, true},
		{"underdog misses the number", "Buffalo Bills +3.5", models.BetTypeSpread, nflEvent, 27, 20, models.OutcomeLost, true},
		{"underdog covers", "Buffalo Bills +10.5", models.BetTypeSpread, nflEvent, 27, 20, models.OutcomeWon, true},
		{"over cashes", "Over 224.5", models.BetTypeTotal, nbaEvent, 120, 110, models.OutcomeWon, true},
		{"under misses", "Under 224.5", models.BetTypeTotal, nbaEvent, 120, 110, models.OutcomeLost, true},
		{"total on the number pushes", "Over 230", models.BetTypeTotal, nbaEvent, 120, 110, models.OutcomePush, true},
		{"no team named", "Somebody ML", models.BetTypeMoneyline, nbaEvent, 100, 110, "", false},
		{"both teams named", "Lakers over Celtics", models.BetTypeMoneyline, nbaEvent, 100, 110, "", false},
		{"spread without line", "Kansas City Chiefs", models.BetTypeSpread, nflEvent, 27, 20, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, ok := gradeTeamPick(tt.pickText, tt.betType, tt.event, tt.homeScore, tt.awayScore)
			assert.Equal(t, tt.gradeable, ok)
			if tt.gradeable {
				assert.Equal(t, tt.expected, outcome)
			}
		})
	}
}

// TestUnitsFor tests flat one-unit pricing of graded outcomes.
func TestUnitsFor(t *testing.T) {
	tests := []struct {
		name     string
		outcome  string
		odds     int
		expected string
	}{
		{"underdog win pays the plus price", models.OutcomeWon, 120, "1.2"},
		{"favorite win pays fractional", models.OutcomeWon, -110, "0.9091"},
		{"heavy favorite win", models.OutcomeWon, -145, "0.6897"},
		{"loss costs the stake", models.OutcomeLost, -145, "-1"},
		{"push returns the stake", models.OutcomePush, -110, "0"},
		{"void returns the stake", models.OutcomeVoid, 264, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, unitsFor(tt.outcome, tt.odds).String())
		})
	}
}

func TestSpreadLine(t *testing.T) {
	line, ok := spreadLine("Kansas City Chiefs -3.5")
	require.True(t, ok)
	assert.Equal(t, -3.5, line)

	line, ok = spreadLine("Buffalo Bills +7")
	require.True(t, ok)
	assert.Equal(t, 7.0, line)

	_, ok = spreadLine("Boston Celtics ML")
	assert.False(t, ok)
}

func TestTotalSide(t *testing.T) {
	side, line, ok := totalSide("Over 224.5")
	require.True(t, ok)
	assert.Equal(t, "over", side)
	assert.Equal(t, 224.5, line)

	side, line, ok = totalSide("under 47.5")
	require.True(t, ok)
	assert.Equal(t, "under", side)
	assert.Equal(t, 47.5, line)

	_, _, ok = totalSide("Boston Celtics -3.5")
	assert.False(t, ok)
}

func TestSplitMatchup(t *testing.T) {
	home, away := splitMatchup("Los Angeles Lakers vs Boston Celtics")
	assert.Equal(t, "Los Angeles Lakers", home)
	assert.Equal(t, "Boston Celtics", away)

	home, away = splitMatchup("Lakers")
	assert.Equal(t, "Lakers", home)
	assert.Empty(t, away)
}

func TestFindEvent(t *testing.T) {
	events := []providers.SportsDBEvent{
		finalEvent("Los Angeles Lakers", "Boston Celtics", 100, 110),
		finalEvent("Golden State Warriors", "Phoenix Suns", 99, 98),
	}

	event, ok := findEvent(events, "Los Angeles Lakers", "Boston Celtics")
	require.True(t, ok)
	assert.Equal(t, "Los Angeles Lakers", event.HomeTeam)

	// Reversed orientation still matches.
	event, ok = findEvent(events, "Boston Celtics", "Los Angeles Lakers")
	require.True(t, ok)
	assert.Equal(t, "Los Angeles Lakers", event.HomeTeam)

	// Nickname-only names match on the last word.
	event, ok = findEvent(events, "Warriors", "Suns")
	require.True(t, ok)
	assert.Equal(t, "Golden State Warriors", event.HomeTeam)

	_, ok = findEvent(events, "New York Knicks", "Miami Heat")
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	results := []models.PickResult{
		{Outcome: models.OutcomeWon, Units: unitsFor(models.OutcomeWon, 120)},
		{Outcome: models.OutcomeWon, Units: unitsFor(models.OutcomeWon, -145)},
		{Outcome: models.OutcomeLost, Units: unitsFor(models.OutcomeLost, -110)},
		{Outcome: models.OutcomePush, Units: unitsFor(models.OutcomePush, -110)},
	}

	summary := Summarize(results)
	assert.Equal(t, 2, summary.Wins)
	assert.Equal(t, 1, summary.Losses)
	assert.Equal(t, 1, summary.Pushes)
	assert.Equal(t, "2-1-1", summary.Record)
	assert.Equal(t, "0.8897", summary.Units.String())
	assert.Equal(t, "0.2966", summary.ROI.String())
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, "0-0-0", summary.Record)
	assert.True(t, summary.Units.IsZero())
	assert.True(t, summary.ROI.IsZero())
}

// TestGradeDate runs the grading pass against a seeded slate: a win, a loss,
// a winning parlay, and one pick whose game has no score yet. Rerunning the
// pass must replace grades, not duplicate them.
func TestGradeDate(t *testing.T) {
	db := newServiceTestDB(t)

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueNBA,
		Picks: models.PickList{
			{
				ID: "nba-1", League: models.LeagueNBA, BetType: models.BetTypeMoneyline,
				Pick: "Boston Celtics ML", Odds: -145,
				Game: "Los Angeles Lakers vs Boston Celtics",
				HomeTeam: "Los Angeles Lakers", AwayTeam: "Boston Celtics",
			},
			{
				ID: "nba-2", League: models.LeagueNBA, BetType: models.BetTypeSpread,
				Pick: "Los Angeles Lakers -3.5", Odds: -110,
				Game: "Los Angeles Lakers vs Boston Celtics",
				HomeTeam: "Los Angeles Lakers", AwayTeam: "Boston Celtics",
			},
			{
				ID: "nba-3", League: models.LeagueNBA, BetType: models.BetTypeMoneyline,
				Pick: "Golden State Warriors ML", Odds: -120,
				Game: "Golden State Warriors vs Phoenix Suns",
				HomeTeam: "Golden State Warriors", AwayTeam: "Phoenix Suns",
			},
		},
		GeneratedAt: time.Now().UTC(),
	}))

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueNFL,
		Picks: models.PickList{{
			ID: "nfl-1", League: models.LeagueNFL, BetType: models.BetTypeSpread,
			Pick: "Kansas City Chiefs -3.5", Odds: -110,
			Game: "Kansas City Chiefs vs Buffalo Bills",
			HomeTeam: "Kansas City Chiefs", AwayTeam: "Buffalo Bills",
		}},
		GeneratedAt: time.Now().UTC(),
	}))

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueParlay,
		Picks: models.PickList{{
			ID: "parlay-1", League: models.LeagueParlay, BetType: models.BetTypeParlay,
			Pick: "Boston Celtics ML + Kansas City Chiefs -3.5", Odds: 264,
			ParlayLegs: []models.ParlayLeg{
				{League: models.LeagueNBA, Game: "Los Angeles Lakers vs Boston Celtics", Pick: "Boston Celtics ML", Odds: -110},
				{League: models.LeagueNFL, Game: "Kansas City Chiefs vs Buffalo Bills", Pick: "Kansas City Chiefs -3.5", Odds: -110},
			},
		}},
		GeneratedAt: time.Now().UTC(),
	}))

	source := &stubEventSource{events: map[string][]providers.SportsDBEvent{
		"NBA": {finalEvent("Los Angeles Lakers", "Boston Celtics", 100, 110)},
		"NFL": {finalEvent("Kansas City Chiefs", "Buffalo Bills", 27, 20)},
	}}
	service := NewResultsService(db, source, logrus.New())

	graded, err := service.GradeDate(context.Background(), "2026-01-15")
	require.NoError(t, err)
	require.Len(t, graded, 4, "the unscored game stays ungraded")
	assert.Equal(t, 2, source.calls, "one fetch per team league, none for the parlay")

	byID := make(map[string]models.PickResult, len(graded))
	for _, result := range graded {
		byID[result.PickID] = result
	}

	assert.Equal(t, models.OutcomeWon, byID["nba-1"].Outcome)
	assert.Equal(t, "0.6897", byID["nba-1"].Units.String())
	assert.Equal(t, "Los Angeles Lakers", byID["nba-1"].HomeTeam)
	assert.Equal(t, 100, byID["nba-1"].HomeScore)
	assert.Equal(t, 110, byID["nba-1"].AwayScore)

	assert.Equal(t, models.OutcomeLost, byID["nba-2"].Outcome)
	assert.Equal(t, "-1", byID["nba-2"].Units.String())

	assert.Equal(t, models.OutcomeWon, byID["nfl-1"].Outcome)
	assert.Equal(t, "0.9091", byID["nfl-1"].Units.String())

	assert.Equal(t, models.OutcomeWon, byID["parlay-1"].Outcome)
	assert.Equal(t, "2.64", byID["parlay-1"].Units.String())

	// Rerunning replaces grades instead of duplicating rows.
	_, err = service.GradeDate(context.Background(), "2026-01-15")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.PickResult{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	stored, err := service.GetResultsByDate("2026-01-15")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

// TestGradeDateParlayLosesWithLostLeg tests the ticket rule: one lost leg
// loses the parlay even when the other legs win or push.
func TestGradeDateParlayLosesWithLostLeg(t *testing.T) {
	db := newServiceTestDB(t)

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueNBA,
		Picks: models.PickList{{
			ID: "nba-1", League: models.LeagueNBA, BetType: models.BetTypeMoneyline,
			Pick: "Boston Celtics ML", Odds: -145,
			HomeTeam: "Los Angeles Lakers", AwayTeam: "Boston Celtics",
		}},
		GeneratedAt: time.Now().UTC(),
	}))
	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueParlay,
		Picks: models.PickList{{
			ID: "parlay-1", League: models.LeagueParlay, BetType: models.BetTypeParlay,
			Pick: "Boston Celtics ML + Los Angeles Lakers ML", Odds: 264,
			ParlayLegs: []models.ParlayLeg{
				{League: models.LeagueNBA, Game: "Los Angeles Lakers vs Boston Celtics", Pick: "Boston Celtics ML", Odds: -110},
				{League: models.LeagueNBA, Game: "Los Angeles Lakers vs Boston Celtics", Pick: "Los Angeles Lakers ML", Odds: -110},
			},
		}},
		GeneratedAt: time.Now().UTC(),
	}))

	source := &stubEventSource{events: map[string][]providers.SportsDBEvent{
		"NBA": {finalEvent("Los Angeles Lakers", "Boston Celtics", 100, 110)},
	}}
	service := NewResultsService(db, source, logrus.New())

	graded, err := service.GradeDate(context.Background(), "2026-01-15")
	require.NoError(t, err)
	require.Len(t, graded, 2)

	byID := make(map[string]models.PickResult, len(graded))
	for _, result := range graded {
		byID[result.PickID] = result
	}
	assert.Equal(t, models.OutcomeLost, byID["parlay-1"].Outcome)
	assert.Equal(t, "-1", byID["parlay-1"].Units.String())
}

func TestGradeDateSkipsLeagueOnFetchError(t *testing.T) {
	db := newServiceTestDB(t)

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueNBA,
		Picks: models.PickList{{
			ID: "nba-1", League: models.LeagueNBA, BetType: models.BetTypeMoneyline,
			Pick: "Boston Celtics ML", Odds: -145,
			HomeTeam: "Los Angeles Lakers", AwayTeam: "Boston Celtics",
		}},
		GeneratedAt: time.Now().UTC(),
	}))

	source := &stubEventSource{err: errors.New("scores api down")}
	service := NewResultsService(db, source, logrus.New())

	graded, err := service.GradeDate(context.Background(), "2026-01-15")
	require.NoError(t, err, "fetch failures defer grading, they do not fail the pass")
	assert.Empty(t, graded)

	var count int64
	require.NoError(t, db.Model(&models.PickResult{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGradeDateNoPicks(t *testing.T) {
	db := newServiceTestDB(t)
	source := &stubEventSource{}
	service := NewResultsService(db, source, logrus.New())

	graded, err := service.GradeDate(context.Background(), "2026-01-15")
	require.NoError(t, err)
	assert.Empty(t, graded)
	assert.Zero(t, source.calls)
}
