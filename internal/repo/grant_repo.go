package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// UpsertGrant inserts g or, when the grantee already holds a grant for the
// robot, overwrites its permission and granting user. The stored row is
// returned, so its ID may differ from g.ID on conflict.
func UpsertGrant(ctx context.Context, db *gorm.DB, g *domain.SharedRobot) (*domain.SharedRobot, error) {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "robot_name"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"permission", "created_by"}),
		}).
		Create(g).Error
	if err != nil {
		return nil, err
	}
	return GetGrant(ctx, db, g.RobotName, g.UserID)
}

// GetGrant loads the grant for (robotName, userID).
func GetGrant(ctx context.Context, db *gorm.DB, robotName, userID string) (*domain.SharedRobot, error) {
	var g domain.SharedRobot
	err := db.WithContext(ctx).
		Where("robot_name = ? AND user_id = ?", robotName, userID).
		First(&g).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// DeleteGrant removes the grant for (robotName, userID) and reports how many
// rows were deleted. Deleting a missing grant is not an error.
func DeleteGrant(ctx context.Context, db *gorm.DB, robotName, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("robot_name = ? AND user_id = ?", robotName, userID).
		Delete(&domain.SharedRobot{})
	return res.RowsAffected, res.Error
}

// ListGrantsForUser returns the robots shared with userID, newest first.
func ListGrantsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.SharedRobot, error) {
	var out []domain.SharedRobot
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ListGrantsForRobot returns every grant on a robot, newest first.
func ListGrantsForRobot(ctx context.Context, db *gorm.DB, robotName string) ([]domain.SharedRobot, error) {
	var out []domain.SharedRobot
	err := db.WithContext(ctx).
		Where("robot_name = ?", robotName).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// DeleteGrantsForUser removes every grant held by userID.
func DeleteGrantsForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.SharedRobot{})
	return res.RowsAffected, res.Error
}
