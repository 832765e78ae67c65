package models

import (
	"time"

	"github.com/gary-ai/backend/pkg/database"
	"github.com/google/uuid"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// User holds the application's shadow copy of externally-owned subscription
// state. The payment provider is the source of truth; these fields change
// only on webhook events and explicit cancel calls.
type User struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Email                string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Plan                 string     `gorm:"size:20;default:free" json:"plan"`
	SubscriptionStatus   string     `gorm:"size:20;default:none" json:"subscription_status"`
	StripeCustomerID     *string    `gorm:"size:100;index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"size:100" json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// IsSubscriptionActive checks if the user has an active paid subscription
func (u *User) IsSubscriptionActive() bool {
	if u.SubscriptionStatus != SubscriptionStatusActive {
		return false
	}
	if u.CurrentPeriodEnd != nil && u.CurrentPeriodEnd.Before(time.Now()) {
		return false
	}
	return true
}

// GetUserByID fetches a user by UUID
func GetUserByID(db *database.DB, userID uuid.UUID) (*User, error) {
	var user User
	err := db.Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail fetches a user by email, matched case-insensitively.
// Checkout emails arrive with arbitrary casing.
func GetUserByEmail(db *database.DB, email string) (*User, error) {
	var user User
	err := db.Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByStripeCustomerID fetches a user by provider customer id
func GetUserByStripeCustomerID(db *database.DB, customerID string) (*User, error) {
	var user User
	err := db.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user on the free plan
func CreateUser(db *database.DB, email string) (*User, error) {
	user := &User{
		ID:                 uuid.New(),
		Email:              email,
		Plan:               PlanFree,
		SubscriptionStatus: SubscriptionStatusNone,
	}

	err := db.Create(user).Error
	return user, err
}
