package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// CreateAnalysis persists an analysis result.
func CreateAnalysis(ctx context.Context, db *gorm.DB, a *domain.StrategyAnalysis) error {
	return db.WithContext(ctx).Create(a).Error
}

// GetAnalysis loads an analysis owned by userID.
func GetAnalysis(ctx context.Context, db *gorm.DB, id, userID string) (*domain.StrategyAnalysis, error) {
	var a domain.StrategyAnalysis
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// CountAnalyses returns how many analyses userID has stored.
func CountAnalyses(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.StrategyAnalysis{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListAnalysesPage returns a page of userID's analyses, newest first.
func ListAnalysesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.StrategyAnalysis, error) {
	var out []domain.StrategyAnalysis
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateAnalysisData replaces the stored document of an analysis owned by
// userID. It returns ErrNotFound when nothing matched.
func UpdateAnalysisData(ctx context.Context, db *gorm.DB, id, userID string, data datatypes.JSON) error {
	res := db.WithContext(ctx).
		Model(&domain.StrategyAnalysis{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"data": data, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
