// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains invite queries. Every function is
// context-aware and accepts either a plain handle or a transaction.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// CreateInvite inserts inv. A concurrent insert for the same active pair
// trips ux_invites_active_pair and yields ErrDuplicate.
func CreateInvite(ctx context.Context, db *gorm.DB, inv *domain.Invite) error {
	if err := db.WithContext(ctx).Create(inv).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetInvite loads an invite by id.
func GetInvite(ctx context.Context, db *gorm.DB, id string) (*domain.Invite, error) {
	var inv domain.Invite
	if err := db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// GetInviteForRecipient loads an invite by id only if it is addressed to
// email. Invites addressed to anyone else are reported as ErrNotFound.
func GetInviteForRecipient(ctx context.Context, db *gorm.DB, id, email string) (*domain.Invite, error) {
	var inv domain.Invite
	err := db.WithContext(ctx).
		Where("id = ? AND email = ?", id, email).
		First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// FindActiveInvite returns the active invite for (robotName, email), or
// ErrNotFound.
func FindActiveInvite(ctx context.Context, db *gorm.DB, robotName, email string) (*domain.Invite, error) {
	var inv domain.Invite
	err := db.WithContext(ctx).
		Where("robot_name = ? AND email = ? AND is_active = ?", robotName, email, true).
		Order("created_at DESC").
		First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// DeactivateActiveInvites clears is_active on every active invite for the
// pair and returns how many rows changed.
func DeactivateActiveInvites(ctx context.Context, db *gorm.DB, robotName, email string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("robot_name = ? AND email = ? AND is_active = ?", robotName, email, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// DeactivateInvite clears is_active on an active invite. It returns
// ErrNotFound when the invite was already inactive (or does not exist).
func DeactivateInvite(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkInviteAccepted sets accepted_at and clears is_active, guarded on the
// invite still being active so concurrent accepts cannot both succeed.
func MarkInviteAccepted(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("id = ? AND is_active = ? AND accepted_at IS NULL", id, true).
		Updates(map[string]any{"is_active": false, "accepted_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveInvitesForRobot returns the number of active invites for a robot.
func CountActiveInvitesForRobot(ctx context.Context, db *gorm.DB, robotName string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("robot_name = ? AND is_active = ?", robotName, true).
		Count(&n).Error
	return n, err
}

// ListActiveInvitesForRobotPage returns active invites for a robot, newest
// first, bounded by offset and limit.
func ListActiveInvitesForRobotPage(ctx context.Context, db *gorm.DB, robotName string, offset, limit int) ([]domain.Invite, error) {
	var out []domain.Invite
	err := db.WithContext(ctx).
		Where("robot_name = ? AND is_active = ?", robotName, true).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPendingInvites returns open invites addressed to email, newest first,
// each joined with the issuer's profile email (empty when unknown).
func ListPendingInvites(ctx context.Context, db *gorm.DB, email string, now time.Time) ([]domain.PendingInvite, error) {
	out := []domain.PendingInvite{}
	err := db.WithContext(ctx).
		Table("invites").
		Select("invites.*, COALESCE(profiles.email, '') AS inviter_email").
		Joins("LEFT JOIN profiles ON profiles.id = invites.created_by").
		Where("invites.email = ? AND invites.is_active = ? AND invites.accepted_at IS NULL AND invites.expires_at >= ?", email, true, now).
		Order("invites.created_at DESC").
		Scan(&out).Error
	return out, err
}

// DeactivateExpiredInvites clears is_active on open invites whose expiry is
// before now and returns how many rows changed.
func DeactivateExpiredInvites(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("is_active = ? AND accepted_at IS NULL AND expires_at < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
