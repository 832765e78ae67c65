package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gary-ai/backend/pkg/database"
	"github.com/lib/pq"
	"gorm.io/gorm/clause"
)

// Leagues covered by the pick pipeline. PARLAY is a pseudo-league tag for
// the combined multi-leg pick.
const (
	LeagueNBA    = "NBA"
	LeagueNFL    = "NFL"
	LeagueMLB    = "MLB"
	LeagueNHL    = "NHL"
	LeagueParlay = "PARLAY"
)

const (
	BetTypeMoneyline = "moneyline"
	BetTypeSpread    = "spread"
	BetTypeTotal     = "total"
	BetTypeParlay    = "parlay"
)

// ValidBetTypes lists every persistable bet type. Generated team picks are
// restricted further (never "total") by the normalizer.
var ValidBetTypes = []string{BetTypeMoneyline, BetTypeSpread, BetTypeTotal, BetTypeParlay}

func IsValidBetType(betType string) bool {
	for _, t := range ValidBetTypes {
		if t == betType {
			return true
		}
	}
	return false
}

// ParlayLeg is one constituent selection within a combined bet.
type ParlayLeg struct {
	League string `json:"league"`
	Game   string `json:"game,omitempty"`
	Pick   string `json:"pick"`
	Odds   int    `json:"odds"`
}

// PickAnalysis preserves the exact prompt and raw model output a pick was
// generated from, for audit and offline repair.
type PickAnalysis struct {
	Prompt    string `json:"prompt,omitempty"`
	RawOutput string `json:"rawOutput,omitempty"`
}

// Pick is a single betting recommendation. Picks are persisted inside the
// JSONB array of their (date, league) row, not as individual rows, so the
// struct carries JSON tags matching the wire shape the front end reads.
type Pick struct {
	ID            string        `json:"id"`
	League        string        `json:"league"`
	Game          string        `json:"game"`
	BetType       string        `json:"betType"`
	Pick          string        `json:"pick"`
	Odds          int           `json:"odds"`
	Confidence    float64       `json:"confidence"`
	Rationale     string        `json:"rationale"`
	HomeTeam      string        `json:"homeTeam,omitempty"`
	AwayTeam      string        `json:"awayTeam,omitempty"`
	GameTime      string        `json:"gameTime,omitempty"`
	FormattedPick string        `json:"formattedPick,omitempty"`
	FormattedOdds string        `json:"formattedOdds,omitempty"`
	ParlayLegs    []ParlayLeg   `json:"parlayLegs,omitempty"`
	Analysis      *PickAnalysis `json:"analysis,omitempty"`
}

// PickList stores a day's picks for one league as a single JSONB value.
type PickList []Pick

// Scan implements the sql.Scanner interface for JSONB
func (pl *PickList) Scan(value interface{}) error {
	if value == nil {
		*pl = PickList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PickList", value)
	}

	var picks []Pick
	if err := json.Unmarshal(bytes, &picks); err != nil {
		return err
	}

	*pl = PickList(picks)
	return nil
}

// Value implements the driver.Valuer interface for JSONB
func (pl PickList) Value() (driver.Value, error) {
	if pl == nil {
		return json.Marshal([]Pick{})
	}
	return json.Marshal([]Pick(pl))
}

// DailyPickSet is one persisted row of picks: the set generated for a single
// (date, league) pair. The unique index is what makes the upsert atomic.
type DailyPickSet struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	PickDate    string         `gorm:"size:10;not null;uniqueIndex:idx_daily_picks_date_league" json:"pick_date"`
	League      string         `gorm:"size:20;not null;uniqueIndex:idx_daily_picks_date_league" json:"league"`
	Picks       PickList       `gorm:"type:jsonb;not null" json:"picks"`
	Sports      pq.StringArray `gorm:"type:text[]" json:"sports"`
	GeneratedAt time.Time      `json:"generated_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DailyPickSet) TableName() string {
	return "daily_picks"
}

// UpsertDailyPickSet writes a pick set in a single atomic statement keyed by
// (pick_date, league). Replaces the old delete-then-insert pattern, which
// could race under overlapping generation runs.
func UpsertDailyPickSet(db *database.DB, set *DailyPickSet) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pick_date"}, {Name: "league"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"picks", "sports", "generated_at", "updated_at",
		}),
	}).Create(set).Error
}

// GetDailyPicksByDate returns every league's pick set for a date.
func GetDailyPicksByDate(db *database.DB, date string) ([]DailyPickSet, error) {
	var sets []DailyPickSet
	err := db.Where("pick_date = ?", date).Order("league ASC").Find(&sets).Error
	return sets, err
}

// GetDailyPickSet returns the pick set for one (date, league) pair.
func GetDailyPickSet(db *database.DB, date, league string) (*DailyPickSet, error) {
	var set DailyPickSet
	err := db.Where("pick_date = ? AND league = ?", date, league).First(&set).Error
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// ListPickDates returns the most recent dates that have persisted picks.
func ListPickDates(db *database.DB, limit int) ([]string, error) {
	var dates []string
	err := db.Model(&DailyPickSet{}).
		Distinct("pick_date").
		Order("pick_date DESC").
		Limit(limit).
		Pluck("pick_date", &dates).Error
	return dates, err
}
