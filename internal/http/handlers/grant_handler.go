package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// ShareLinkRequest selects the permission carried by a public link.
type ShareLinkRequest struct {
	Permission string `json:"permission" example:"view" enums:"view,edit"`
}

// GrantsResponse lists shared-access grants.
type GrantsResponse struct {
	Grants []domain.SharedRobot `json:"grants"`
}

// CreateShareLink godoc
// @ID          createShareLink
// @Summary     Create a public share link
// @Tags        Sharing
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       name  path  string                     true   "Robot name"
// @Param       body  body  handlers.ShareLinkRequest  false  "Permission (default view)"
// @Success     201  {object}  services.ShareLink
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Failure     503  {object}  handlers.ErrorResponse  "Link service unavailable"
// @Router      /robots/{name}/share-link [post]
func (h *Handlers) CreateShareLink(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	var req ShareLinkRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	perm := domain.Permission(strings.ToLower(strings.TrimSpace(req.Permission)))
	if perm == "" {
		perm = domain.PermissionView
	}
	link, err := h.sharing.CreateShareLink(c.Request.Context(), p, c.Param("name"), perm)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, link)
}

// ListRobotGrants godoc
// @ID          listRobotGrants
// @Summary     Who a robot is shared with
// @Tags        Sharing
// @Produce     json
// @Security    BearerAuth
// @Param       name  path  string  true  "Robot name"
// @Success     200  {object}  handlers.GrantsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Router      /robots/{name}/grants [get]
func (h *Handlers) ListRobotGrants(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	items, err := h.sharing.ListRobotGrants(c.Request.Context(), p, c.Param("name"))
	if err != nil {
		failErr(c, err)
		return
	}
	writeGrants(c, items)
}

// RemoveGrant godoc
// @ID          removeGrant
// @Summary     Withdraw a user's access to a robot
// @Tags        Sharing
// @Security    BearerAuth
// @Param       name    path  string  true  "Robot name"
// @Param       userID  path  string  true  "Grantee user ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the robot owner"
// @Failure     404  {object}  handlers.ErrorResponse  "No such grant"
// @Router      /robots/{name}/grants/{userID} [delete]
func (h *Handlers) RemoveGrant(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	if err := h.sharing.RemoveGrant(c.Request.Context(), p, c.Param("name"), c.Param("userID")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SharedWithMe godoc
// @ID          sharedWithMe
// @Summary     Robots shared with me
// @Tags        Sharing
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.GrantsResponse
// @Router      /shared-robots [get]
func (h *Handlers) SharedWithMe(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	items, err := h.sharing.ListGrants(c.Request.Context(), p)
	if err != nil {
		failErr(c, err)
		return
	}
	writeGrants(c, items)
}

func writeGrants(c *gin.Context, items []domain.SharedRobot) {
	if items == nil {
		items = []domain.SharedRobot{}
	}
	ok(c, http.StatusOK, GrantsResponse{Grants: items})
}
