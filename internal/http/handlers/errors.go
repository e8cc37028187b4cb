package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/functions"
	"github.com/tbourn/traderobots-backend/internal/services"
	"github.com/tbourn/traderobots-backend/internal/textgen"
)

// Error codes. Clients branch on these, not on messages.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"

	ErrCodeInviteInactive     = "invite_inactive"
	ErrCodeInviteExpired      = "invite_expired"
	ErrCodeInsufficientTokens = "insufficient_tokens"
	ErrCodeNotBacktest        = "not_backtest"
	ErrCodeUpstream           = "upstream_error"
	ErrCodeUnavailable        = "upstream_unavailable"
	ErrCodeAnalysisTimeout    = "analysis_timeout"
)

type errMapping struct {
	target error
	status int
	code   string
}

// errTable maps service errors to responses; the first match wins. Client
// errors carry the full error text, server errors only the sentinel's.
var errTable = []errMapping{
	{services.ErrEmptyRobotName, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrEmptyEmail, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidEmail, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidPermission, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidAmount, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrEmptyInput, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidMetrics, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrNotRobotOwner, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotAdmin, http.StatusForbidden, ErrCodeForbidden},

	{services.ErrInviteNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrGrantNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrAnalysisNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrRobotExists, http.StatusConflict, ErrCodeConflict},
	{services.ErrInviteConflict, http.StatusConflict, ErrCodeConflict},
	{services.ErrInviteInactive, http.StatusConflict, ErrCodeInviteInactive},
	{services.ErrNotBacktest, http.StatusConflict, ErrCodeNotBacktest},
	{services.ErrInviteExpired, http.StatusGone, ErrCodeInviteExpired},

	{services.ErrInsufficientTokens, http.StatusPaymentRequired, ErrCodeInsufficientTokens},
	{services.ErrAnalysisTimeout, http.StatusGatewayTimeout, ErrCodeAnalysisTimeout},

	{functions.ErrServerUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{functions.ErrRemote, http.StatusBadGateway, ErrCodeUpstream},
	{textgen.ErrRunFailed, http.StatusBadGateway, ErrCodeUpstream},
	{textgen.ErrNoReply, http.StatusBadGateway, ErrCodeUpstream},
}

// failErr writes the response for a service error. Unknown errors become a
// 500 whose message does not leak internals.
func failErr(c *gin.Context, err error) {
	for _, m := range errTable {
		if errors.Is(err, m.target) {
			msg := err.Error()
			if m.status >= http.StatusInternalServerError {
				msg = m.target.Error()
				_ = c.Error(err)
			}
			fail(c, m.status, m.code, msg)
			return
		}
	}
	var (
		apiErr *textgen.APIError
		fnErr  *functions.Error
	)
	switch {
	case errors.As(err, &apiErr):
		_ = c.Error(err)
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "text generation service unavailable")
		return
	case errors.As(err, &fnErr):
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "remote function "+fnErr.Function+" failed")
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
