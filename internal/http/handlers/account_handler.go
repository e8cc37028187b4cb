package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BalanceResponse is the caller's token balance.
type BalanceResponse struct {
	Balance int64 `json:"balance" example:"4000"`
}

// GrantTokensRequest credits tokens to an account by email.
type GrantTokensRequest struct {
	Email  string `json:"email" binding:"required" example:"ana@example.com"`
	Amount int64  `json:"amount" example:"1000"`
}

// TokenBalance godoc
// @ID          tokenBalance
// @Summary     My token balance
// @Tags        Tokens
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.BalanceResponse
// @Router      /tokens/balance [get]
func (h *Handlers) TokenBalance(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	n, err := h.accounts.Balance(c.Request.Context(), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{Balance: n})
}

// GrantTokens godoc
// @ID          grantTokens
// @Summary     Credit tokens (admin)
// @Tags        Admin
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.GrantTokensRequest  true  "Grant"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin rights required"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown email"
// @Router      /admin/tokens [post]
func (h *Handlers) GrantTokens(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	var req GrantTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and amount required")
		return
	}
	if err := h.accounts.GrantTokens(c.Request.Context(), p, req.Email, req.Amount); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user (admin)
// @Description Deletes the account remotely, then the local profile and every grant it held.
// @Tags        Admin
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin rights required"
// @Failure     503  {object}  handlers.ErrorResponse  "Account service unavailable"
// @Router      /admin/users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), p, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
