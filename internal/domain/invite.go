// Package domain defines the persistence models for robots, sharing invites,
// shared access grants, user profiles, and stored analyses. These types are
// mapped with GORM and shared across the repository and service layers.
package domain

import (
	"strings"
	"time"
)

// Permission is the access level carried by an invite and the grant it
// produces on acceptance.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is one of the supported permission levels.
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// InviteStatus is the derived, display-oriented state of an invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusExpired  InviteStatus = "expired"
	// InviteStatusClosed covers declined, revoked and superseded invites; the
	// stored row does not distinguish between them.
	InviteStatusClosed InviteStatus = "closed"
)

// Invite offers access to a robot, addressed to a recipient email.
//
// At most one active invite exists per (robot_name, email). The partial unique
// index enforcing that is created by repo.AutoMigrate, since not every dialect
// supports filtered indexes through struct tags.
//
// Fields:
//   - RobotName: robot identifier (its name, not a surrogate key).
//   - Email: recipient address, stored trimmed and lower-cased.
//   - CreatedBy: issuer user id; only the issuer may list or revoke.
//   - ExpiresAt: creation time plus the invite TTL.
//   - AcceptedAt: set only when the recipient accepted.
//   - IsActive: cleared on accept, decline, revoke, supersession or sweep.
type Invite struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	RobotName  string     `json:"robot_name"  gorm:"type:varchar(255);not null;index:idx_invites_robot,priority:1"`
	Email      string     `json:"email"       gorm:"type:varchar(320);not null;index:idx_invites_email"`
	Permission Permission `json:"permission"  gorm:"type:varchar(8);not null;check:permission IN ('view','edit')"`
	CreatedBy  string     `json:"created_by"  gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time  `json:"created_at"  gorm:"index:idx_invites_robot,priority:2"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  time.Time  `json:"expires_at"  gorm:"not null;index"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	IsActive   bool       `json:"is_active"   gorm:"not null"`
}

// TableName returns the database table name for Invite.
func (Invite) TableName() string { return "invites" }

// IsExpired reports whether now is past the invite's expiry.
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsAccepted reports whether the recipient accepted the invite.
func (i *Invite) IsAccepted() bool { return i.AcceptedAt != nil }

// IsOpen reports whether the invite can still be accepted or declined.
func (i *Invite) IsOpen(now time.Time) bool {
	return i.IsActive && !i.IsAccepted() && !i.IsExpired(now)
}

// Status derives the display state at time now.
func (i *Invite) Status(now time.Time) InviteStatus {
	switch {
	case i.IsAccepted():
		return InviteStatusAccepted
	case !i.IsActive:
		return InviteStatusClosed
	case i.IsExpired(now):
		return InviteStatusExpired
	default:
		return InviteStatusPending
	}
}

// PendingInvite is an invite as shown in the recipient's inbox, enriched with
// the issuer's email when it can be resolved.
type PendingInvite struct {
	Invite
	InviterEmail string `json:"inviter_email"`
}

// NormalizeEmail trims and lower-cases an address for storage and matching.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
