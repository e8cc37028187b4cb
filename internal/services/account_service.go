// Package services – AccountService
//
// AccountService keeps the local profile mirror of identity-provider users
// and their token ledger. Balances change only through guarded atomic
// updates. Admin operations re-check rights server-side on every call.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

// AccountRemote is the subset of the hosted functions used for accounts.
type AccountRemote interface {
	DeleteUser(ctx context.Context, userID string) error
	AddTokens(ctx context.Context, email string, amount int64) error
}

// AccountService manages profiles, token balances and admin actions.
type AccountService struct {
	DB          *gorm.DB
	Remote      AccountRemote
	AdminEmails []string // lower-cased
}

func accountTracer() trace.Tracer { return otel.Tracer("services/AccountService") }

// EnsureProfile returns the caller's profile, creating it on first use.
func (s *AccountService) EnsureProfile(ctx context.Context, p domain.Principal) (*domain.Profile, error) {
	prof, err := repo.EnsureProfile(ctx, s.DB, p.UserID, domain.NormalizeEmail(p.Email))
	if err != nil {
		return nil, fmt.Errorf("accounts: ensure profile: %w", err)
	}
	return prof, nil
}

// Balance returns the caller's token balance.
func (s *AccountService) Balance(ctx context.Context, p domain.Principal) (int64, error) {
	prof, err := repo.GetProfile(ctx, s.DB, p.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return prof.TokenBalance, nil
}

// Debit charges amount tokens. It never drives a balance negative.
func (s *AccountService) Debit(ctx context.Context, p domain.Principal, amount int64) error {
	ctx, span := accountTracer().Start(ctx, "Debit", trace.WithAttributes(
		attribute.String("user.id", p.UserID),
		attribute.Int64("amount", amount),
	))
	defer span.End()
	return debit(ctx, s.DB, p.UserID, amount)
}

func debit(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	ok, err := repo.DebitTokens(ctx, db, userID, amount)
	if err != nil {
		return fmt.Errorf("accounts: debit: %w", err)
	}
	if !ok {
		return ErrInsufficientTokens
	}
	tokensDebited.Add(float64(amount))
	return nil
}

// IsAdmin reports whether p holds admin rights, either through the
// configured allow-list or the stored profile flag.
func (s *AccountService) IsAdmin(ctx context.Context, p domain.Principal) (bool, error) {
	if e := domain.NormalizeEmail(p.Email); e != "" && slices.Contains(s.AdminEmails, e) {
		return true, nil
	}
	prof, err := repo.GetProfile(ctx, s.DB, p.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return prof.IsAdmin, nil
}

func (s *AccountService) requireAdmin(ctx context.Context, p domain.Principal) error {
	ok, err := s.IsAdmin(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

// GrantTokens credits amount tokens to the account registered under email.
// Emails without a local profile are forwarded to the hosted functions.
func (s *AccountService) GrantTokens(ctx context.Context, admin domain.Principal, email string, amount int64) error {
	ctx, span := accountTracer().Start(ctx, "GrantTokens", trace.WithAttributes(
		attribute.String("user.id", admin.UserID),
		attribute.Int64("amount", amount),
	))
	defer span.End()

	if err := s.requireAdmin(ctx, admin); err != nil {
		return err
	}
	email = domain.NormalizeEmail(email)
	switch {
	case amount <= 0:
		return ErrInvalidAmount
	case email == "":
		return ErrEmptyEmail
	case !validEmail(email):
		return ErrInvalidEmail
	}

	ok, err := repo.CreditTokensByEmail(ctx, s.DB, email, amount)
	if err != nil {
		return fmt.Errorf("accounts: credit: %w", err)
	}
	if ok {
		return nil
	}
	if s.Remote == nil {
		return ErrUserNotFound
	}
	if err := s.Remote.AddTokens(ctx, email, amount); err != nil {
		return fmt.Errorf("accounts: add tokens: %w", err)
	}
	return nil
}

// DeleteUser removes an account at the identity provider, then drops its
// local profile and every grant it held.
func (s *AccountService) DeleteUser(ctx context.Context, admin domain.Principal, userID string) error {
	ctx, span := accountTracer().Start(ctx, "DeleteUser", trace.WithAttributes(
		attribute.String("user.id", admin.UserID),
		attribute.String("target.id", userID),
	))
	defer span.End()

	if err := s.requireAdmin(ctx, admin); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserNotFound
	}
	if s.Remote != nil {
		if err := s.Remote.DeleteUser(ctx, userID); err != nil {
			return fmt.Errorf("accounts: delete user: %w", err)
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.DeleteGrantsForUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Str("target_id", userID).Int64("grants", n).Msg("user deleted")
		return repo.DeleteProfile(ctx, tx, userID)
	})
	if err != nil {
		return fmt.Errorf("accounts: delete local data: %w", err)
	}
	return nil
}
