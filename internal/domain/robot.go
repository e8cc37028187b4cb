package domain

import (
	"time"

	"gorm.io/gorm"
)

// Robot is a trading strategy owned by a user. Invites and grants refer to
// robots by name alone, so names are unique across owners.
type Robot struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"     gorm:"type:varchar(64);not null;index"`
	Name        string         `json:"name"        gorm:"type:varchar(255);not null;uniqueIndex:ux_robot_name"`
	Description string         `json:"description" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Robot.
func (Robot) TableName() string { return "robots" }
