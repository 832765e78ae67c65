package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
)

func picksTestConfig() *config.Config {
	return &config.Config{
		Leagues:       []string{"NBA", "NFL", "MLB", "NHL"},
		MinDailyPicks: 3,
	}
}

// newPicksTestService wires a pipeline against local stubs: empty odds key
// serves mock games, the completion server plays the model, empty perplexity
// key degrades news to nothing, no Redis.
func newPicksTestService(t *testing.T, db *database.DB, completionURL string) *PicksService {
	t.Helper()
	log := logrus.New()

	odds := providers.NewOddsClient("", time.Second, 5, log)

	openai := NewOpenAIClient("test-key", "gpt-4o", 6000, 5, log)
	openai.baseURL = completionURL

	perplexity := NewPerplexityClient("", "sonar", nil, 6000, 5, log)
	analysis := NewAnalysisService(openai, perplexity, nil, log)

	return NewPicksService(db, nil, odds, analysis, picksTestConfig(), log)
}

// TestGeneratePicksPersistsOneRowPerLeague runs the pipeline end to end
// against stubs and checks the persisted shape, then runs it again to check
// regeneration replaces rows instead of accumulating them.
func TestGeneratePicksPersistsOneRowPerLeague(t *testing.T) {
	db := newServiceTestDB(t)
	server := newCompletionServer(t, `{"pick": "Home ML", "betType": "moneyline", "odds": -120, "confidence": 0.8, "rationale": "Rest advantage."}`)
	defer server.Close()

	service := newPicksTestService(t, db, server.URL)

	picks, err := service.GeneratePicks(context.Background(), "2026-01-15")
	require.NoError(t, err)
	require.Len(t, picks, 5, "four league picks plus the parlay")

	leagues := make([]string, 0, len(picks))
	for _, pick := range picks {
		leagues = append(leagues, pick.League)
		if pick.League != models.LeagueParlay {
			assert.NotEqual(t, models.BetTypeTotal, pick.BetType)
			assert.NotNil(t, pick.Analysis, "generated picks keep their prompt and raw output")
		}
		assert.GreaterOrEqual(t, pick.Confidence, MinConfidence)
		assert.LessOrEqual(t, pick.Confidence, MaxConfidence)
	}
	assert.Equal(t, []string{"NBA", "NFL", "MLB", "NHL", "PARLAY"}, leagues)

	var count int64
	require.NoError(t, db.Model(&models.DailyPickSet{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)

	nba, err := models.GetDailyPickSet(db, "2026-01-15", models.LeagueNBA)
	require.NoError(t, err)
	require.Len(t, nba.Picks, 1)
	assert.Equal(t, []string{providers.SportKeyNBA}, []string(nba.Sports))

	parlay, err := models.GetDailyPickSet(db, "2026-01-15", models.LeagueParlay)
	require.NoError(t, err)
	require.Len(t, parlay.Picks, 1)
	assert.LessOrEqual(t, len(parlay.Picks[0].ParlayLegs), 3)
	assert.NotEmpty(t, parlay.Picks[0].ParlayLegs)

	// Regenerating the same date must replace, not append.
	_, err = service.GeneratePicks(context.Background(), "2026-01-15")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.DailyPickSet{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

// TestGeneratePicksFallsBackWhenAnalysisUnavailable covers the degraded day:
// no model access means every league fails, and the fixed fallback slate is
// published instead of nothing.
func TestGeneratePicksFallsBackWhenAnalysisUnavailable(t *testing.T) {
	db := newServiceTestDB(t)
	log := logrus.New()

	odds := providers.NewOddsClient("", time.Second, 5, log)
	openai := NewOpenAIClient("", "gpt-4o", 6000, 5, log)
	perplexity := NewPerplexityClient("", "sonar", nil, 6000, 5, log)
	analysis := NewAnalysisService(openai, perplexity, nil, log)
	service := NewPicksService(db, nil, odds, analysis, picksTestConfig(), log)

	picks, err := service.GeneratePicks(context.Background(), "2026-01-15")
	require.NoError(t, err)
	require.Len(t, picks, 4)

	seen := make(map[string]bool)
	for _, pick := range picks {
		seen[pick.League] = true
		assert.NotEqual(t, models.BetTypeTotal, pick.BetType)
		assert.GreaterOrEqual(t, pick.Confidence, MinConfidence)
		assert.LessOrEqual(t, pick.Confidence, MaxConfidence)
	}
	for _, league := range []string{"NBA", "NFL", "MLB", "NHL"} {
		assert.True(t, seen[league], "fallback covers %s", league)
	}

	var count int64
	require.NoError(t, db.Model(&models.DailyPickSet{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestGetPicksByDate(t *testing.T) {
	db := newServiceTestDB(t)
	service := NewPicksService(db, nil, nil, nil, picksTestConfig(), logrus.New())

	_, err := service.GetPicksByDate(context.Background(), "2026-01-15")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate: "2026-01-15",
		League:   models.LeagueNBA,
		Picks: models.PickList{{
			ID: "pick-1", League: models.LeagueNBA, BetType: models.BetTypeMoneyline,
			Pick: "Boston Celtics ML", Odds: -145, Confidence: 0.7,
		}},
		GeneratedAt: time.Now().UTC(),
	}))

	picks, err := service.GetPicksByDate(context.Background(), "2026-01-15")
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, "pick-1", picks[0].ID)
}

func TestShouldRegenerate(t *testing.T) {
	db := newServiceTestDB(t)
	service := NewPicksService(db, nil, nil, nil, picksTestConfig(), logrus.New())

	assert.True(t, service.ShouldRegenerate(context.Background(), "2026-01-15"))

	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate:    "2026-01-15",
		League:      models.LeagueNBA,
		Picks:       models.PickList{{ID: "pick-1", League: models.LeagueNBA}},
		GeneratedAt: time.Now().UTC(),
	}))

	assert.False(t, service.ShouldRegenerate(context.Background(), "2026-01-15"))
	assert.True(t, service.ShouldRegenerate(context.Background(), "2026-01-16"))
}

// TestGenerateIfDueSkipsExistingSlate seeds today's slate and checks that the
// scheduler path serves it instead of regenerating.
func TestGenerateIfDueSkipsExistingSlate(t *testing.T) {
	db := newServiceTestDB(t)
	log := logrus.New()

	// A service whose generation would produce the fallback slate. If it ran,
	// the seeded single pick would be replaced by four.
	odds := providers.NewOddsClient("", time.Second, 5, log)
	openai := NewOpenAIClient("", "gpt-4o", 6000, 5, log)
	perplexity := NewPerplexityClient("", "sonar", nil, 6000, 5, log)
	analysis := NewAnalysisService(openai, perplexity, nil, log)
	service := NewPicksService(db, nil, odds, analysis, picksTestConfig(), log)

	today := TodayDate()
	require.NoError(t, models.UpsertDailyPickSet(db, &models.DailyPickSet{
		PickDate:    today,
		League:      models.LeagueNBA,
		Picks:       models.PickList{{ID: "seeded", League: models.LeagueNBA}},
		GeneratedAt: time.Now().UTC(),
	}))

	picks, err := service.GenerateIfDue(context.Background())
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, "seeded", picks[0].ID)
}

func TestPickBestGame(t *testing.T) {
	games := []providers.OddsGame{
		{ID: "no-prices"},
		{ID: "priced", Bookmakers: []providers.Bookmaker{{Key: "draftkings"}}},
	}
	assert.Equal(t, "priced", pickBestGame(games).ID)

	unpriced := []providers.OddsGame{{ID: "only"}}
	assert.Equal(t, "only", pickBestGame(unpriced).ID)
}

func TestLeagueSports(t *testing.T) {
	picks := []models.Pick{
		{League: models.LeagueNBA},
		{League: models.LeagueParlay, ParlayLegs: []models.ParlayLeg{
			{League: models.LeagueNBA},
			{League: models.LeagueNFL},
		}},
	}
	assert.Equal(t, []string{providers.SportKeyNBA, providers.SportKeyNFL}, leagueSports(picks))
}
