// Invite endpoints.
//
// Owner side:
//   - POST   /robots/{name}/invites         (create, Idempotency-Key aware)
//   - GET    /robots/{name}/invites         (list active, paginated, ETag)
//   - GET    /robots/{name}/invites/check   (active invite for an email)
//   - DELETE /invites/{id}                  (revoke)
//
// Recipient side:
//   - GET    /invites/pending
//   - POST   /invites/{id}/accept
//   - POST   /invites/{id}/decline
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/http/middleware"
	"github.com/tbourn/traderobots-backend/internal/services"
	"github.com/tbourn/traderobots-backend/internal/utils"
)

// CreateInviteRequest invites an email to a robot. Permission defaults to
// "view".
type CreateInviteRequest struct {
	Email      string `json:"email" binding:"required" example:"ana@example.com"`
	Permission string `json:"permission" example:"view" enums:"view,edit"`
}

// ListInvitesResponse wraps a page of active invites.
type ListInvitesResponse struct {
	Invites    []domain.Invite `json:"invites"`
	Pagination Pagination      `json:"pagination"`
}

// CheckInviteResponse reports the active invite for an email, if any.
// Sending a new invite replaces it.
type CheckInviteResponse struct {
	Exists bool           `json:"exists"`
	Invite *domain.Invite `json:"invite,omitempty"`
}

// PendingInvitesResponse is the recipient's inbox.
type PendingInvitesResponse struct {
	Invites []domain.PendingInvite `json:"invites"`
}

// CreateInvite godoc
// @ID          createInvite
// @Summary     Invite an email to a robot
// @Description Creates an invite that expires after seven days, replacing any active invite for the same email. No access is granted until the recipient accepts. A retry with the same Idempotency-Key returns the original invite with 200.
// @Tags        Invites
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       name             path    string                          true   "Robot name"
// @Param       Idempotency-Key  header  string                          false  "Retry key"
// @Param       body             body    handlers.CreateInviteRequest    true   "Invite"
// @Success     201  {object}  services.CreateInviteResult
// @Success     200  {object}  services.CreateInviteResult  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent invite"
// @Router      /robots/{name}/invites [post]
func (h *Handlers) CreateInvite(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	if id, replay := middleware.ReplayOf(c); replay {
		if inv, err := h.sharing.Get(ctx, p, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, services.CreateInviteResult{Invite: inv, Link: h.sharing.Link(inv.RobotName)})
			return
		}
	}

	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	perm := domain.Permission(strings.ToLower(strings.TrimSpace(req.Permission)))
	if perm == "" {
		perm = domain.PermissionView
	}

	res, err := h.sharing.Create(ctx, p, c.Param("name"), req.Email, perm)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, p, res.Invite.ID, http.StatusCreated)
	ok(c, http.StatusCreated, res)
}

// ListInvites godoc
// @ID          listInvites
// @Summary     List active invites of a robot
// @Description Returns a page of active invites, newest first. Supports a weak ETag via If-None-Match.
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
// @Param       name           path    string  true   "Robot name"
// @Param       If-None-Match  header  string  false  "Return 304 if the ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListInvitesResponse
// @Header      200  {string}  ETag  "Weak ETag for the current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Router      /robots/{name}/invites [get]
func (h *Handlers) ListInvites(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()
	robot := c.Param("name")
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	items, total, err := h.sharing.ListForRobot(ctx, p, robot, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	// The version is read after ownership was checked by ListForRobot.
	if count, maxTS, err := h.sharing.InviteListVersion(ctx, robot); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"invites:%s:%d:%d:%d:%d"`, robot, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListInvitesResponse{
		Invites: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// CheckInvite godoc
// @ID          checkInvite
// @Summary     Check for an active invite
// @Description Reports whether an active invite exists for the email. Blank input reports none.
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
// @Param       name   path   string  true  "Robot name"
// @Param       email  query  string  true  "Recipient email"
// @Success     200  {object}  handlers.CheckInviteResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Router      /robots/{name}/invites/check [get]
func (h *Handlers) CheckInvite(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	inv, err := h.sharing.CheckExisting(c.Request.Context(), p, c.Param("name"), c.Query("email"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CheckInviteResponse{Exists: inv != nil, Invite: inv})
}

// PendingInvites godoc
// @ID          pendingInvites
// @Summary     Invites addressed to me
// @Description Open invites whose recipient is the authenticated email, newest first.
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PendingInvitesResponse
// @Router      /invites/pending [get]
func (h *Handlers) PendingInvites(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	items, err := h.sharing.Pending(c.Request.Context(), p)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.PendingInvite{}
	}
	ok(c, http.StatusOK, PendingInvitesResponse{Invites: items})
}

// AcceptInvite godoc
// @ID          acceptInvite
// @Summary     Accept an invite
// @Description Grants the invite's permission on the robot to the caller.
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Invite ID"  format(uuid)
// @Success     200  {object}  domain.SharedRobot
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not addressed to caller"
// @Failure     409  {object}  handlers.ErrorResponse  "Invite no longer active"
// @Failure     410  {object}  handlers.ErrorResponse  "Invite expired"
// @Router      /invites/{id}/accept [post]
func (h *Handlers) AcceptInvite(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	g, err := h.sharing.Accept(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

// DeclineInvite godoc
// @ID          declineInvite
// @Summary     Decline an invite
// @Tags        Invites
// @Security    BearerAuth
// @Param       id  path  string  true  "Invite ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not addressed to caller"
// @Failure     409  {object}  handlers.ErrorResponse  "Invite no longer active"
// @Router      /invites/{id}/decline [post]
func (h *Handlers) DeclineInvite(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	if err := h.sharing.Decline(c.Request.Context(), p, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// RevokeInvite godoc
// @ID          revokeInvite
// @Summary     Revoke an invite
// @Description Closes an invite issued by the caller and removes the access it granted, if any.
// @Tags        Invites
// @Security    BearerAuth
// @Param       id  path  string  true  "Invite ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found or not issued by caller"
// @Router      /invites/{id} [delete]
func (h *Handlers) RevokeInvite(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	if err := h.sharing.Revoke(c.Request.Context(), p, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
