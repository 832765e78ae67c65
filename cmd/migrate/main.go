package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := runMigrations(db); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		if err := seedData(db); err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runMigrations(db *database.DB) error {
	// Enable UUID extension for PostgreSQL
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Auto migrate all models
	if err := db.AutoMigrate(
		&models.DailyPickSet{},
		&models.PickResult{},
		&models.User{},
		&models.WebhookEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Create indexes
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_daily_picks_generated_at ON daily_picks(generated_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_daily_picks_picks ON daily_picks USING gin(picks)",
		"CREATE INDEX IF NOT EXISTS idx_pick_results_outcome ON pick_results(outcome)",
		"CREATE INDEX IF NOT EXISTS idx_pick_results_league ON pick_results(league)",
		"CREATE INDEX IF NOT EXISTS idx_users_plan ON users(plan)",
		"CREATE INDEX IF NOT EXISTS idx_webhook_events_created_at ON webhook_events(created_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	// Drop tables in reverse order to handle foreign key constraints
	tables := []string{
		"webhook_events",
		"pick_results",
		"daily_picks",
		"users",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	return nil
}

func seedData(db *database.DB) error {
	// Create a demo user for local checkout and subscription testing
	user, err := models.CreateUser(db, "demo@garyai.app")
	if err != nil {
		logrus.Warnf("Failed to seed demo user (may already exist): %v", err)
	} else {
		logrus.Infof("Seeded demo user %s (%s)", user.Email, user.ID)
	}

	// Publish the fallback slate for today so a fresh install serves picks
	// before the first generation run.
	date := time.Now().UTC().Format("2006-01-02")
	picks := services.FallbackPicks(date)

	byLeague := make(map[string][]models.Pick)
	order := make([]string, 0, len(picks))
	for _, pick := range picks {
		if _, seen := byLeague[pick.League]; !seen {
			order = append(order, pick.League)
		}
		byLeague[pick.League] = append(byLeague[pick.League], pick)
	}

	now := time.Now().UTC()
	for _, league := range order {
		var sports []string
		if key, ok := providers.SportKeyForLeague(league); ok {
			sports = append(sports, key)
		}
		set := &models.DailyPickSet{
			PickDate:    date,
			League:      league,
			Picks:       byLeague[league],
			Sports:      sports,
			GeneratedAt: now,
		}
		if err := models.UpsertDailyPickSet(db, set); err != nil {
			return fmt.Errorf("failed to seed picks for %s: %w", league, err)
		}
	}

	logrus.Infof("Seeded %d picks across %d leagues for %s", len(picks), len(order), date)
	return nil
}
