package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// EnsureProfile returns the profile for id, creating it with email when it
// does not exist yet. An existing profile keeps its stored fields.
func EnsureProfile(ctx context.Context, db *gorm.DB, id, email string) (*domain.Profile, error) {
	var p domain.Profile
	err := db.WithContext(ctx).
		Where(domain.Profile{ID: id}).
		Attrs(domain.Profile{Email: email, Plan: "free", PlanStatus: "active"}).
		FirstOrCreate(&p).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &p, nil
}

// GetProfile loads a profile by user id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetProfileByEmail resolves an email address to a profile.
func GetProfileByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).First(&p, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// DebitTokens subtracts amount from the user's balance in a single guarded
// UPDATE. It reports false, without error, when the balance is insufficient
// or the profile does not exist.
func DebitTokens(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND token_balance >= ?", userID, amount).
		Updates(map[string]any{
			"token_balance": gorm.Expr("token_balance - ?", amount),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditTokensByEmail adds amount to the balance of the profile with email.
// It reports false when no such profile exists.
func CreditTokensByEmail(ctx context.Context, db *gorm.DB, email string, amount int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"token_balance": gorm.Expr("token_balance + ?", amount),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteProfile removes a profile. Deleting a missing profile is not an error.
func DeleteProfile(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Delete(&domain.Profile{}, "id = ?", id).Error
}
