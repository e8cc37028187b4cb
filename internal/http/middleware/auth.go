// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates requests from the identity provider's bearer
// token and exposes the caller as a domain.Principal. Downstream middleware
// (rate limiting, idempotency) and handlers read the identity from the Gin
// context; nothing trusts client-supplied user headers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

const (
	ctxKeyUserID    = "userID"
	ctxKeyUserEmail = "userEmail"
)

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

// Authenticate rejects requests without a valid bearer token with 401 and
// stores the verified principal for the rest of the chain.
func Authenticate(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		p, err := v.Verify(tok)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("token rejected")
			c.Header("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		c.Set(ctxKeyUserID, p.UserID)
		c.Set(ctxKeyUserEmail, p.Email)
		lg := LoggerFrom(c).With().Str("user_id", p.UserID).Logger()
		setLogger(c, &lg)
		c.Next()
	}
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	id := c.GetString(ctxKeyUserID)
	if id == "" {
		return domain.Principal{}, false
	}
	return domain.Principal{UserID: id, Email: c.GetString(ctxKeyUserEmail)}, true
}

// EnsureProfile runs ensure for every authenticated caller, so that the
// local profile exists before any handler needs it. Failures end the request
// with 500.
func EnsureProfile(ensure func(ctx context.Context, p domain.Principal) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Next()
			return
		}
		if err := ensure(c.Request.Context(), p); err != nil {
			LoggerFrom(c).Error().Err(err).Msg("ensure profile")
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// abortJSON ends the request with the API error envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
