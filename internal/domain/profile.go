package domain

import "time"

// Profile mirrors an identity-provider user: its email is how invites are
// resolved to a grantee, and it carries the token ledger used to pay for
// AI analyses.
type Profile struct {
	ID           string    `json:"id"            gorm:"type:varchar(64);primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex"`
	TokenBalance int64     `json:"token_balance" gorm:"not null;check:token_balance >= 0"`
	Plan         string    `json:"plan"          gorm:"type:varchar(32);not null;default:'free'"`
	PlanStatus   string    `json:"plan_status"   gorm:"type:varchar(32);not null;default:'active'"`
	IsAdmin      bool      `json:"is_admin"      gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }
