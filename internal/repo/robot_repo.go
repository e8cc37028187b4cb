package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// CreateRobot inserts a robot for userID. A name already registered by any
// owner yields ErrDuplicate.
func CreateRobot(ctx context.Context, db *gorm.DB, userID, name, description string) (*domain.Robot, error) {
	now := time.Now().UTC()
	r := &domain.Robot{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRobotByOwner loads the robot named name owned by userID.
func GetRobotByOwner(ctx context.Context, db *gorm.DB, userID, name string) (*domain.Robot, error) {
	var r domain.Robot
	err := db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListRobots returns the robots owned by userID, oldest first.
func ListRobots(ctx context.Context, db *gorm.DB, userID string) ([]domain.Robot, error) {
	var out []domain.Robot
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
