// Package handlers implements the HTTP endpoints of the public API.
//
// Handlers are transport-thin: they read the authenticated principal set by
// middleware.Authenticate, validate input, call a service and translate the
// result (or error) into a response.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/http/middleware"
	"github.com/tbourn/traderobots-backend/internal/services"
)

// RobotService registers robot names for their owners.
type RobotService interface {
	Create(ctx context.Context, owner domain.Principal, name, description string) (*domain.Robot, error)
	List(ctx context.Context, owner domain.Principal) ([]domain.Robot, error)
}

// SharingService runs the invite lifecycle and the grants it produces.
type SharingService interface {
	Create(ctx context.Context, issuer domain.Principal, robotName, email string, perm domain.Permission) (*services.CreateInviteResult, error)
	Get(ctx context.Context, issuer domain.Principal, inviteID string) (*domain.Invite, error)
	Link(robotName string) string
	CheckExisting(ctx context.Context, issuer domain.Principal, robotName, email string) (*domain.Invite, error)
	Accept(ctx context.Context, user domain.Principal, inviteID string) (*domain.SharedRobot, error)
	Decline(ctx context.Context, user domain.Principal, inviteID string) error
	Revoke(ctx context.Context, issuer domain.Principal, inviteID string) error
	ListForRobot(ctx context.Context, issuer domain.Principal, robotName string, page, pageSize int) ([]domain.Invite, int64, error)
	InviteListVersion(ctx context.Context, robotName string) (int64, *time.Time, error)
	Pending(ctx context.Context, user domain.Principal) ([]domain.PendingInvite, error)
	ListGrants(ctx context.Context, user domain.Principal) ([]domain.SharedRobot, error)
	ListRobotGrants(ctx context.Context, issuer domain.Principal, robotName string) ([]domain.SharedRobot, error)
	RemoveGrant(ctx context.Context, issuer domain.Principal, robotName, userID string) error
	CreateShareLink(ctx context.Context, issuer domain.Principal, robotName string, perm domain.Permission) (*services.ShareLink, error)
}

// AccountService covers token balances and admin operations.
type AccountService interface {
	Balance(ctx context.Context, p domain.Principal) (int64, error)
	GrantTokens(ctx context.Context, admin domain.Principal, email string, amount int64) error
	DeleteUser(ctx context.Context, admin domain.Principal, userID string) error
}

// AnalysisService runs and stores AI-assisted analyses.
type AnalysisService interface {
	Backtest(ctx context.Context, user domain.Principal, filename string, report []byte) (*domain.StrategyAnalysis, error)
	Strategy(ctx context.Context, user domain.Principal, description string) (*domain.StrategyAnalysis, error)
	List(ctx context.Context, user domain.Principal, page, pageSize int) ([]domain.StrategyAnalysis, int64, error)
	Get(ctx context.Context, user domain.Principal, id string) (*domain.StrategyAnalysis, error)
	MergeMetrics(ctx context.Context, user domain.Principal, id string, patch map[string]json.RawMessage) (*domain.StrategyAnalysis, error)
}

// IdempotencyStore remembers which resource a keyed POST produced.
type IdempotencyStore interface {
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

// Deps are the services the handlers call. Idem may be nil, in which case
// Idempotency-Key headers are accepted but never recorded.
type Deps struct {
	Robots    RobotService
	Sharing   SharingService
	Accounts  AccountService
	Analyses  AnalysisService
	Idem      IdempotencyStore
	MaxUpload int64
}

// Handlers groups every endpoint of the API.
type Handlers struct {
	robots    RobotService
	sharing   SharingService
	accounts  AccountService
	analyses  AnalysisService
	idem      IdempotencyStore
	maxUpload int64
}

// New binds the handlers to their services.
func New(d Deps) *Handlers {
	maxUpload := d.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handlers{
		robots:    d.Robots,
		sharing:   d.Sharing,
		accounts:  d.Accounts,
		analyses:  d.Analyses,
		idem:      d.Idem,
		maxUpload: maxUpload,
	}
}

// principal returns the authenticated caller, failing the request with 401
// when middleware did not set one.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return p, found
}

// remember records the resource a keyed POST produced. Failures only cost
// the replay, so they are logged and the response goes out regardless.
func (h *Handlers) remember(c *gin.Context, p domain.Principal, resourceID string, status int) {
	key, has := middleware.GetIdempotencyKey(c)
	if !has || h.idem == nil {
		return
	}
	err := h.idem.Remember(c.Request.Context(), p.UserID, middleware.IdempotencyScope(c), key, resourceID, status)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
