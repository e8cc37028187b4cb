// Package services – SharingService
//
// SharingService owns the invitation lifecycle for robots: an owner invites
// an email address with a permission, the recipient accepts (creating a
// shared-access grant) or declines, and the owner may revoke at any time.
// At most one invite per (robot, email) is active; issuing a new one
// supersedes the previous. Invites expire after a configurable TTL; expiry is
// enforced when accepting and filtered out of the recipient's inbox.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/functions"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

// DefaultInviteTTL is how long an invite stays acceptable.
const DefaultInviteTTL = 7 * 24 * time.Hour

// InviteNotifier delivers invitation mail.
type InviteNotifier interface {
	SendInviteEmail(ctx context.Context, msg functions.InviteEmail) error
}

// UserDirectory answers whether an email belongs to a registered account.
type UserDirectory interface {
	UserExists(ctx context.Context, email string) (bool, error)
}

// ShareLinker mints public share tokens.
type ShareLinker interface {
	CreateShareLink(ctx context.Context, robotName, permission string) (string, error)
}

// SharingOption customises SharingService.
type SharingOption func(*SharingService)

// WithInviteTTL overrides the invite lifetime.
func WithInviteTTL(d time.Duration) SharingOption {
	return func(s *SharingService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithAppBaseURL sets the public web origin used in invite and share links.
func WithAppBaseURL(u string) SharingOption {
	return func(s *SharingService) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithSharingClock injects a clock, mainly for tests.
func WithSharingClock(now func() time.Time) SharingOption {
	return func(s *SharingService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier enables invitation mail.
func WithNotifier(n InviteNotifier) SharingOption {
	return func(s *SharingService) { s.notifier = n }
}

// WithDirectory enables the registered-recipient check.
func WithDirectory(d UserDirectory) SharingOption {
	return func(s *SharingService) { s.directory = d }
}

// WithShareLinker enables public share links.
func WithShareLinker(l ShareLinker) SharingOption {
	return func(s *SharingService) { s.linker = l }
}

// SharingService manages invites and shared-access grants.
type SharingService struct {
	DB *gorm.DB

	notifier  InviteNotifier
	directory UserDirectory
	linker    ShareLinker
	ttl       time.Duration
	baseURL   string
	now       func() time.Time
}

// NewSharingService constructs a SharingService.
func NewSharingService(db *gorm.DB, opts ...SharingOption) *SharingService {
	s := &SharingService{
		DB:  db,
		ttl: DefaultInviteTTL,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInviteResult is returned by Create. RecipientRegistered is nil when
// no directory is configured or the lookup failed.
type CreateInviteResult struct {
	Invite              *domain.Invite `json:"invite"`
	Link                string         `json:"link"`
	EmailSent           bool           `json:"email_sent"`
	RecipientRegistered *bool          `json:"recipient_registered,omitempty"`
}

// ShareLink is a public, token-based link to a robot.
type ShareLink struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func sharingTracer() trace.Tracer { return otel.Tracer("services/SharingService") }

// Create issues an invite for robotName to email, superseding any active
// invite for the same pair. It never creates a grant. Mail delivery is best
// effort: its failure is logged and reported in the result.
func (s *SharingService) Create(ctx context.Context, issuer domain.Principal, robotName, email string, perm domain.Permission) (*CreateInviteResult, error) {
	ctx, span := sharingTracer().Start(ctx, "Create", trace.WithAttributes(
		attribute.String("user.id", issuer.UserID),
		attribute.String("robot.name", robotName),
	))
	defer span.End()

	robotName = strings.TrimSpace(robotName)
	email = domain.NormalizeEmail(email)
	switch {
	case robotName == "":
		return nil, ErrEmptyRobotName
	case email == "":
		return nil, ErrEmptyEmail
	case !validEmail(email):
		return nil, ErrInvalidEmail
	case !perm.Valid():
		return nil, ErrInvalidPermission
	}
	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return nil, err
	}

	now := s.now()
	inv := &domain.Invite{
		ID:         uuid.NewString(),
		RobotName:  robotName,
		Email:      email,
		Permission: perm,
		CreatedBy:  issuer.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		IsActive:   true,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.DeactivateActiveInvites(ctx, tx, robotName, email); err != nil {
			return err
		}
		return repo.CreateInvite(ctx, tx, inv)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrInviteConflict
	}
	if err != nil {
		return nil, fmt.Errorf("sharing: create invite: %w", err)
	}
	invitesTotal.WithLabelValues("created").Inc()

	res := &CreateInviteResult{Invite: inv, Link: s.robotLink(robotName)}
	lg := zerolog.Ctx(ctx).With().Str("invite_id", inv.ID).Logger()

	if s.directory != nil {
		if ok, err := s.directory.UserExists(ctx, email); err != nil {
			lg.Warn().Err(err).Msg("recipient lookup failed")
		} else {
			res.RecipientRegistered = &ok
		}
	}
	if s.notifier != nil {
		inviter := issuer.Email
		if inviter == "" {
			inviter = "A user"
		}
		err := s.notifier.SendInviteEmail(ctx, functions.InviteEmail{
			RobotName:   robotName,
			Email:       email,
			InviterName: inviter,
			Permission:  string(perm),
			InviteLink:  res.Link,
		})
		if err != nil {
			lg.Warn().Err(err).Msg("invite email not sent")
		} else {
			res.EmailSent = true
		}
	}
	return res, nil
}

// CheckExisting returns the active invite for (robotName, email), or nil.
// Blank input yields (nil, nil) without touching storage.
func (s *SharingService) CheckExisting(ctx context.Context, issuer domain.Principal, robotName, email string) (*domain.Invite, error) {
	ctx, span := sharingTracer().Start(ctx, "CheckExisting")
	defer span.End()

	robotName = strings.TrimSpace(robotName)
	email = domain.NormalizeEmail(email)
	if robotName == "" || email == "" {
		return nil, nil
	}
	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return nil, err
	}
	inv, err := repo.FindActiveInvite(ctx, s.DB, robotName, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return inv, err
}

// Accept turns an invite addressed to the caller into a grant. Re-accepting
// after a revoke updates the existing grant rather than adding another.
func (s *SharingService) Accept(ctx context.Context, user domain.Principal, inviteID string) (*domain.SharedRobot, error) {
	ctx, span := sharingTracer().Start(ctx, "Accept", trace.WithAttributes(
		attribute.String("user.id", user.UserID),
		attribute.String("invite.id", inviteID),
	))
	defer span.End()

	inv, err := s.recipientInvite(ctx, user, inviteID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if inv.IsExpired(now) {
		return nil, ErrInviteExpired
	}

	var grant *domain.SharedRobot
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := repo.UpsertGrant(ctx, tx, &domain.SharedRobot{
			ID:         uuid.NewString(),
			RobotName:  inv.RobotName,
			UserID:     user.UserID,
			Permission: inv.Permission,
			CreatedBy:  inv.CreatedBy,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := repo.MarkInviteAccepted(ctx, tx, inv.ID, now); err != nil {
			return err
		}
		grant = g
		return nil
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrInviteInactive
	case err != nil:
		return nil, fmt.Errorf("sharing: accept invite: %w", err)
	}
	invitesTotal.WithLabelValues("accepted").Inc()
	return grant, nil
}

// Decline closes an invite addressed to the caller without granting access.
func (s *SharingService) Decline(ctx context.Context, user domain.Principal, inviteID string) error {
	ctx, span := sharingTracer().Start(ctx, "Decline", trace.WithAttributes(
		attribute.String("user.id", user.UserID),
		attribute.String("invite.id", inviteID),
	))
	defer span.End()

	inv, err := s.recipientInvite(ctx, user, inviteID)
	if err != nil {
		return err
	}
	if err := repo.DeactivateInvite(ctx, s.DB, inv.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInviteInactive
		}
		return fmt.Errorf("sharing: decline invite: %w", err)
	}
	invitesTotal.WithLabelValues("declined").Inc()
	return nil
}

// Revoke closes an invite issued by the caller and removes the recipient's
// grant on the robot, if the recipient has an account. Revoking an inactive
// invite only re-runs the grant removal.
func (s *SharingService) Revoke(ctx context.Context, issuer domain.Principal, inviteID string) error {
	ctx, span := sharingTracer().Start(ctx, "Revoke", trace.WithAttributes(
		attribute.String("user.id", issuer.UserID),
		attribute.String("invite.id", inviteID),
	))
	defer span.End()

	inv, err := repo.GetInvite(ctx, s.DB, inviteID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInviteNotFound
		}
		return err
	}
	if inv.CreatedBy != issuer.UserID {
		return ErrInviteNotFound
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeactivateInvite(ctx, tx, inv.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		p, err := repo.GetProfileByEmail(ctx, tx, inv.Email)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = repo.DeleteGrant(ctx, tx, inv.RobotName, p.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sharing: revoke invite: %w", err)
	}
	invitesTotal.WithLabelValues("revoked").Inc()
	return nil
}

// Get loads an invite issued by the caller. Invites issued by anyone else
// are reported as ErrInviteNotFound.
func (s *SharingService) Get(ctx context.Context, issuer domain.Principal, inviteID string) (*domain.Invite, error) {
	inv, err := repo.GetInvite(ctx, s.DB, inviteID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && inv.CreatedBy != issuer.UserID) {
		return nil, ErrInviteNotFound
	}
	return inv, err
}

// Link returns the link sent with an invite for robotName.
func (s *SharingService) Link(robotName string) string { return s.robotLink(robotName) }

// ListForRobot returns a page of active invites for a robot owned by the
// caller, newest first, with the total count.
func (s *SharingService) ListForRobot(ctx context.Context, issuer domain.Principal, robotName string, page, pageSize int) ([]domain.Invite, int64, error) {
	ctx, span := sharingTracer().Start(ctx, "ListForRobot", trace.WithAttributes(
		attribute.String("robot.name", robotName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountActiveInvitesForRobot(ctx, s.DB, robotName)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Invite{}, 0, nil
	}
	items, err := repo.ListActiveInvitesForRobotPage(ctx, s.DB, robotName, (page-1)*pageSize, pageSize)
	return items, total, err
}

// InviteListVersion summarizes the active invites of a robot for
// conditional requests: their count and latest modification time.
func (s *SharingService) InviteListVersion(ctx context.Context, robotName string) (int64, *time.Time, error) {
	return repo.InvitesStats(ctx, s.DB, robotName)
}

// Pending returns the open invites addressed to the caller's email, newest
// first, each with the inviter's email.
func (s *SharingService) Pending(ctx context.Context, user domain.Principal) ([]domain.PendingInvite, error) {
	ctx, span := sharingTracer().Start(ctx, "Pending", trace.WithAttributes(attribute.String("user.id", user.UserID)))
	defer span.End()

	email := domain.NormalizeEmail(user.Email)
	if email == "" {
		return []domain.PendingInvite{}, nil
	}
	return repo.ListPendingInvites(ctx, s.DB, email, s.now())
}

// ListGrants returns the robots shared with the caller.
func (s *SharingService) ListGrants(ctx context.Context, user domain.Principal) ([]domain.SharedRobot, error) {
	ctx, span := sharingTracer().Start(ctx, "ListGrants")
	defer span.End()
	return repo.ListGrantsForUser(ctx, s.DB, user.UserID)
}

// ListRobotGrants returns who a robot owned by the caller is shared with.
func (s *SharingService) ListRobotGrants(ctx context.Context, issuer domain.Principal, robotName string) ([]domain.SharedRobot, error) {
	ctx, span := sharingTracer().Start(ctx, "ListRobotGrants")
	defer span.End()
	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return nil, err
	}
	return repo.ListGrantsForRobot(ctx, s.DB, robotName)
}

// RemoveGrant withdraws userID's access to a robot owned by the caller.
func (s *SharingService) RemoveGrant(ctx context.Context, issuer domain.Principal, robotName, userID string) error {
	ctx, span := sharingTracer().Start(ctx, "RemoveGrant")
	defer span.End()

	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return err
	}
	n, err := repo.DeleteGrant(ctx, s.DB, robotName, userID)
	if err != nil {
		return fmt.Errorf("sharing: remove grant: %w", err)
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// CreateShareLink mints a public link to a robot owned by the caller.
func (s *SharingService) CreateShareLink(ctx context.Context, issuer domain.Principal, robotName string, perm domain.Permission) (*ShareLink, error) {
	ctx, span := sharingTracer().Start(ctx, "CreateShareLink")
	defer span.End()

	robotName = strings.TrimSpace(robotName)
	if robotName == "" {
		return nil, ErrEmptyRobotName
	}
	if !perm.Valid() {
		return nil, ErrInvalidPermission
	}
	if err := s.requireOwner(ctx, issuer, robotName); err != nil {
		return nil, err
	}
	if s.linker == nil {
		return nil, fmt.Errorf("sharing: %w", functions.ErrServerUnavailable)
	}
	tok, err := s.linker.CreateShareLink(ctx, robotName, string(perm))
	if err != nil {
		return nil, fmt.Errorf("sharing: create share link: %w", err)
	}
	return &ShareLink{Token: tok, URL: s.baseURL + "/shared/" + url.PathEscape(tok)}, nil
}

// ExpireInvites deactivates every open invite past its expiry and returns
// how many were closed.
func (s *SharingService) ExpireInvites(ctx context.Context) (int64, error) {
	n, err := repo.DeactivateExpiredInvites(ctx, s.DB, s.now())
	if err != nil {
		return 0, fmt.Errorf("sharing: expire invites: %w", err)
	}
	CountExpiredInvites(n)
	return n, nil
}

func (s *SharingService) robotLink(robotName string) string {
	return s.baseURL + "/robots/" + url.PathEscape(robotName)
}

func (s *SharingService) requireOwner(ctx context.Context, issuer domain.Principal, robotName string) error {
	_, err := repo.GetRobotByOwner(ctx, s.DB, issuer.UserID, robotName)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotRobotOwner
	}
	return err
}

// recipientInvite loads an invite addressed to user and checks that it is
// still active. Invites addressed to someone else are reported as missing.
func (s *SharingService) recipientInvite(ctx context.Context, user domain.Principal, inviteID string) (*domain.Invite, error) {
	email := domain.NormalizeEmail(user.Email)
	if email == "" || strings.TrimSpace(inviteID) == "" {
		return nil, ErrInviteNotFound
	}
	inv, err := repo.GetInviteForRecipient(ctx, s.DB, inviteID, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	if !inv.IsActive || inv.IsAccepted() {
		return nil, ErrInviteInactive
	}
	return inv, nil
}
