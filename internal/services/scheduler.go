package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
)

// SchedulerService runs the daily jobs: morning pick generation, grading
// of the previous day against final scores, and webhook-log cleanup.
type SchedulerService struct {
	db        *database.DB
	picks     *PicksService
	results   *ResultsService
	logger    *logrus.Logger
	config    *config.Config
	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

func NewSchedulerService(db *database.DB, picks *PicksService, results *ResultsService, cfg *config.Config, log *logrus.Logger) *SchedulerService {
	return &SchedulerService{
		db:      db,
		picks:   picks,
		results: results,
		logger:  log,
		config:  cfg,
		cron:    cron.New(),
	}
}

// Start registers the cron entries and kicks off an immediate generation
// check so a fresh deploy does not wait a day for its first slate.
func (s *SchedulerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	_, err := s.cron.AddFunc(s.config.GenerationSchedule, s.runGeneration)
	if err != nil {
		return fmt.Errorf("failed to schedule pick generation: %w", err)
	}

	_, err = s.cron.AddFunc(s.config.GradingSchedule, s.runGrading)
	if err != nil {
		return fmt.Errorf("failed to schedule grading: %w", err)
	}

	// Webhook dedup rows only matter while Stripe still retries.
	_, err = s.cron.AddFunc("0 3 * * *", s.cleanupWebhookEvents)
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	go s.runGeneration()

	s.logger.Info("Scheduler service started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.logger.Info("Scheduler service stopped")
}

// runGeneration produces today's slate if it does not exist yet.
func (s *SchedulerService) runGeneration() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	picks, err := s.picks.GenerateIfDue(ctx)
	if err != nil {
		s.logger.Errorf("Scheduled pick generation failed: %v", err)
		return
	}
	s.logger.Infof("Scheduled generation done, %d picks live", len(picks))
}

// runGrading grades yesterday's slate once overnight scores are final.
func (s *SchedulerService) runGrading() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	date := time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	graded, err := s.results.GradeDate(ctx, date)
	if err != nil {
		s.logger.Errorf("Scheduled grading failed for %s: %v", date, err)
		return
	}
	s.logger.Infof("Scheduled grading done for %s, %d results", date, len(graded))
}

// cleanupWebhookEvents drops dedup records older than 30 days.
func (s *SchedulerService) cleanupWebhookEvents() {
	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	result := s.db.Where("created_at < ?", cutoff).Delete(&models.WebhookEvent{})
	if result.Error != nil {
		s.logger.Errorf("Failed to cleanup webhook events: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		s.logger.Infof("Cleaned up %d old webhook event records", result.RowsAffected)
	}
}

// GetStatus reports the scheduler state for the readiness endpoint.
func (s *SchedulerService) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}

	return map[string]interface{}{
		"is_running": s.isRunning,
		"next_runs":  nextRuns,
		"cron_jobs":  len(entries),
	}
}
