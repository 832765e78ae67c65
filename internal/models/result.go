package models

import (
	"time"

	"github.com/gary-ai/backend/pkg/database"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

const (
	OutcomeWon  = "won"
	OutcomeLost = "lost"
	OutcomePush = "push"
	OutcomeVoid = "void"
)

// PickResult records the graded outcome of one pick against final scores.
// One row per (pick, date).
type PickResult struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PickID    string          `gorm:"size:64;not null;uniqueIndex:idx_pick_results_pick_date" json:"pick_id"`
	PickDate  string          `gorm:"size:10;not null;uniqueIndex:idx_pick_results_pick_date;index:idx_pick_results_date" json:"pick_date"`
	League    string          `gorm:"size:20;not null" json:"league"`
	BetType   string          `gorm:"size:20;not null" json:"bet_type"`
	PickText  string          `gorm:"size:255" json:"pick_text"`
	Odds      int             `json:"odds"`
	Outcome   string          `gorm:"size:10;not null" json:"outcome"`
	HomeTeam  string          `gorm:"size:100" json:"home_team"`
	AwayTeam  string          `gorm:"size:100" json:"away_team"`
	HomeScore int             `json:"home_score"`
	AwayScore int             `json:"away_score"`
	Units     decimal.Decimal `gorm:"type:numeric(10,4)" json:"units"`
	GradedAt  time.Time       `json:"graded_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PickResult) TableName() string {
	return "pick_results"
}

// UpsertPickResult writes a graded result, replacing any earlier grade for
// the same (pick, date).
func UpsertPickResult(db *database.DB, result *PickResult) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pick_id"}, {Name: "pick_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"outcome", "home_score", "away_score", "units", "graded_at", "updated_at",
		}),
	}).Create(result).Error
}

// GetResultsByDate returns graded results for a date.
func GetResultsByDate(db *database.DB, date string) ([]PickResult, error) {
	var results []PickResult
	err := db.Where("pick_date = ?", date).Order("league ASC").Find(&results).Error
	return results, err
}

// GetRecentResults returns the most recently graded results.
func GetRecentResults(db *database.DB, limit int) ([]PickResult, error) {
	var results []PickResult
	err := db.Order("pick_date DESC, league ASC").Limit(limit).Find(&results).Error
	return results, err
}
