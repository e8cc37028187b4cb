// Package services implements the business rules for robot sharing, token
// accounting and strategy analyses.
//
// This file centralizes the service-level error values so handlers can map
// them to HTTP statuses with errors.Is. Persistence and transport failures
// are returned wrapped and are not listed here.
package services

import "errors"

// Input validation.
var (
	ErrEmptyRobotName    = errors.New("robot name is required")
	ErrEmptyEmail        = errors.New("email is required")
	ErrInvalidEmail      = errors.New("email is malformed")
	ErrInvalidPermission = errors.New("permission must be view or edit")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrEmptyInput        = errors.New("analysis input is empty")
	ErrInvalidMetrics    = errors.New("invalid metrics patch")
)

// Authorization. Lookups that would reveal another user's data report
// not-found instead.
var (
	ErrNotRobotOwner = errors.New("caller does not own this robot")
	ErrNotAdmin      = errors.New("admin rights required")
)

// Robots and sharing.
var (
	ErrRobotExists    = errors.New("robot already exists")
	ErrInviteNotFound = errors.New("invite not found")
	// ErrInviteInactive covers invites that were accepted, declined, revoked
	// or superseded.
	ErrInviteInactive = errors.New("invite is no longer active")
	ErrInviteExpired  = errors.New("invite has expired")
	// ErrInviteConflict is returned when a concurrent request created an
	// active invite for the same robot and email first.
	ErrInviteConflict = errors.New("an active invite for this email already exists")
	ErrGrantNotFound  = errors.New("grant not found")
)

// Tokens and analyses.
var (
	ErrInsufficientTokens = errors.New("insufficient token balance")
	ErrAnalysisNotFound   = errors.New("analysis not found")
	ErrNotBacktest        = errors.New("analysis has no backtest metrics")
	ErrAnalysisTimeout    = errors.New("analysis timed out")
	ErrUserNotFound       = errors.New("user not found")
)
