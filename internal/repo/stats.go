// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// InvitesStats returns the number of active invites for a robot and the
// latest updated_at across all of its invites. Deactivations bump updated_at,
// so the pair changes whenever the active list does.
func InvitesStats(ctx context.Context, db *gorm.DB, robotName string) (active int64, maxUpdatedAt *time.Time, err error) {
	if active, err = CountActiveInvitesForRobot(ctx, db, robotName); err != nil {
		return 0, nil, err
	}

	// Avoid MAX() -> TEXT in SQLite.
	var rows []struct {
		UpdatedAt time.Time
	}
	err = db.WithContext(ctx).
		Model(&domain.Invite{}).
		Where("robot_name = ?", robotName).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return active, nil, nil
	}
	return active, &rows[0].UpdatedAt, nil
}
