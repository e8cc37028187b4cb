package domain

import "time"

// SharedRobot grants a user access to a robot they do not own. A grantee holds
// at most one grant per robot (ux_shared_robot_user); re-granting upserts.
type SharedRobot struct {
	ID         string     `json:"id"         gorm:"type:char(36);primaryKey"`
	RobotName  string     `json:"robot_name" gorm:"type:varchar(255);not null;uniqueIndex:ux_shared_robot_user,priority:1"`
	UserID     string     `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_shared_robot_user,priority:2;index"`
	Permission Permission `json:"permission" gorm:"type:varchar(8);not null;check:permission IN ('view','edit')"`
	CreatedBy  string     `json:"created_by" gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName returns the database table name for SharedRobot.
func (SharedRobot) TableName() string { return "shared_robots" }
