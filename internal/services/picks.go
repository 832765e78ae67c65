package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
	"github.com/gary-ai/backend/pkg/metrics"
)

const (
	picksMirrorTTL = 24 * time.Hour
	dateLayout     = "2006-01-02"
)

// PicksService runs the daily generation pipeline and serves persisted
// picks. Generation walks the configured leagues in order: fetch games,
// gather news, ask the model, normalize, then upsert one row per league
// and mirror the full slate into Redis.
type PicksService struct {
	db       *database.DB
	cache    *CacheService
	odds     *providers.OddsClient
	analysis *AnalysisService
	config   *config.Config
	logger   *logrus.Logger
}

func NewPicksService(db *database.DB, cache *CacheService, odds *providers.OddsClient, analysis *AnalysisService, cfg *config.Config, log *logrus.Logger) *PicksService {
	return &PicksService{
		db:       db,
		cache:    cache,
		odds:     odds,
		analysis: analysis,
		config:   cfg,
		logger:   log,
	}
}

// TodayDate returns the UTC calendar date picks are keyed by.
func TodayDate() string {
	return time.Now().UTC().Format(dateLayout)
}

// GeneratePicks produces and persists the slate for a date. Per-league
// failures are logged and skipped; if the surviving slate is below the
// configured minimum the fixed fallback set replaces it, so a day always
// ends with publishable picks. The returned error covers persistence only.
func (s *PicksService) GeneratePicks(ctx context.Context, date string) ([]models.Pick, error) {
	log := s.logger.WithField("pick_date", date)
	log.Info("Starting pick generation")

	picks := make([]models.Pick, 0, len(s.config.Leagues)+1)
	for _, league := range s.config.Leagues {
		pick, err := s.generateLeaguePick(ctx, league)
		if err != nil {
			metrics.GenerationFailures.WithLabelValues("analysis").Inc()
			log.WithFields(logrus.Fields{
				"league": league,
				"error":  err.Error(),
			}).Warn("Skipping league, analysis failed")
			continue
		}
		picks = append(picks, *pick)
		metrics.PicksGenerated.WithLabelValues(league).Inc()
	}

	if parlay, ok := BuildParlayPick(picks); ok {
		picks = append(picks, parlay)
		metrics.PicksGenerated.WithLabelValues(models.LeagueParlay).Inc()
	}

	if len(picks) < s.config.MinDailyPicks {
		metrics.GenerationFailures.WithLabelValues("slate_minimum").Inc()
		log.WithFields(logrus.Fields{
			"generated": len(picks),
			"minimum":   s.config.MinDailyPicks,
		}).Warn("Slate below minimum, publishing fallback picks")
		picks = FallbackPicks(date)
	}

	if err := s.persistSlate(ctx, date, picks); err != nil {
		return picks, err
	}

	log.WithField("count", len(picks)).Info("Pick generation complete")
	return picks, nil
}

// generateLeaguePick runs the single-league pipeline: one game, one pick.
func (s *PicksService) generateLeaguePick(ctx context.Context, league string) (*models.Pick, error) {
	sportKey, ok := providers.SportKeyForLeague(league)
	if !ok {
		return nil, fmt.Errorf("no sport key for league %s", league)
	}

	games := s.odds.GetUpcomingGames(ctx, sportKey)
	game := pickBestGame(games)

	news := s.analysis.GetGameNews(ctx, league, game)

	analysis, raw, err := s.analysis.AnalyzeGame(ctx, game, news)
	if err != nil {
		return nil, err
	}

	pick := NormalizePick(analysis, game, league)
	pick.Analysis = &models.PickAnalysis{
		Prompt:    BuildGamePrompt(game, news),
		RawOutput: raw,
	}
	return &pick, nil
}

// pickBestGame prefers the first game carrying bookmaker prices; the feed
// orders by commence time so that is also the soonest game.
func pickBestGame(games []providers.OddsGame) providers.OddsGame {
	for _, game := range games {
		if len(game.Bookmakers) > 0 {
			return game
		}
	}
	return games[0]
}

// persistSlate writes one row per league plus the Redis mirror. Row errors
// are collected rather than aborting so a single bad league does not drop
// the rest of the slate.
func (s *PicksService) persistSlate(ctx context.Context, date string, picks []models.Pick) error {
	byLeague := make(map[string][]models.Pick)
	order := make([]string, 0, len(picks))
	for _, pick := range picks {
		if _, seen := byLeague[pick.League]; !seen {
			order = append(order, pick.League)
		}
		byLeague[pick.League] = append(byLeague[pick.League], pick)
	}

	now := time.Now().UTC()
	var failed []string
	for _, league := range order {
		set := &models.DailyPickSet{
			PickDate:    date,
			League:      league,
			Picks:       byLeague[league],
			Sports:      leagueSports(byLeague[league]),
			GeneratedAt: now,
		}
		if err := models.UpsertDailyPickSet(s.db, set); err != nil {
			metrics.GenerationFailures.WithLabelValues("persist").Inc()
			s.logger.WithFields(logrus.Fields{
				"pick_date": date,
				"league":    league,
				"error":     err.Error(),
			}).Error("Failed to upsert pick set")
			failed = append(failed, league)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, PicksCacheKey(date), picks, picksMirrorTTL); err != nil {
			s.logger.WithField("error", err.Error()).Warn("Failed to mirror picks to cache")
		}
		if err := s.cache.SetSimple(LastGeneratedKey, now.Format(time.RFC3339), 0); err != nil {
			s.logger.WithField("error", err.Error()).Warn("Failed to record generation timestamp")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to persist pick sets for: %s", strings.Join(failed, ", "))
	}
	return nil
}

// leagueSports lists the sport keys behind a league's picks. Parlay rows
// aggregate the keys of their legs.
func leagueSports(picks []models.Pick) []string {
	seen := make(map[string]bool)
	var sports []string
	add := func(league string) {
		key, ok := providers.SportKeyForLeague(league)
		if !ok || seen[key] {
			return
		}
		seen[key] = true
		sports = append(sports, key)
	}
	for _, pick := range picks {
		add(pick.League)
		for _, leg := range pick.ParlayLegs {
			add(leg.League)
		}
	}
	return sports
}

// GetPicksByDate serves a date's slate, cache first. A database hit
// refreshes the mirror so the next read stays off Postgres.
func (s *PicksService) GetPicksByDate(ctx context.Context, date string) ([]models.Pick, error) {
	var cached []models.Pick
	if s.cache != nil {
		if err := s.cache.Get(ctx, PicksCacheKey(date), &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	sets, err := models.GetDailyPicksByDate(s.db, date)
	if err != nil {
		return nil, err
	}

	var picks []models.Pick
	for _, set := range sets {
		picks = append(picks, set.Picks...)
	}
	if len(picks) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, PicksCacheKey(date), picks, picksMirrorTTL); err != nil {
			s.logger.WithField("error", err.Error()).Debug("Failed to refresh picks mirror")
		}
	}
	return picks, nil
}

// ShouldRegenerate reports whether the date has no slate yet. The cached
// generation timestamp answers first; on a cache miss the table decides.
func (s *PicksService) ShouldRegenerate(ctx context.Context, date string) bool {
	var lastGenerated string
	if s.cache != nil {
		if err := s.cache.GetSimple(LastGeneratedKey, &lastGenerated); err == nil && lastGenerated != "" {
			if generatedAt, parseErr := time.Parse(time.RFC3339, lastGenerated); parseErr == nil {
				if generatedAt.UTC().Format(dateLayout) == date {
					return false
				}
			}
		}
	}

	sets, err := models.GetDailyPicksByDate(s.db, date)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.WithField("error", err.Error()).Warn("Could not check existing picks, regenerating")
		}
		return true
	}
	return len(sets) == 0
}

// GenerateIfDue runs generation for today unless today's slate exists.
func (s *PicksService) GenerateIfDue(ctx context.Context) ([]models.Pick, error) {
	date := TodayDate()
	if !s.ShouldRegenerate(ctx, date) {
		s.logger.WithField("pick_date", date).Debug("Picks already generated for today")
		return s.GetPicksByDate(ctx, date)
	}
	return s.GeneratePicks(ctx, date)
}
