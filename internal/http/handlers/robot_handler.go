package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

// CreateRobotRequest registers a robot name for the caller.
type CreateRobotRequest struct {
	Name        string `json:"name" binding:"required,max=255" example:"mean-reversion-eurusd"`
	Description string `json:"description" binding:"max=4000" example:"H1 mean reversion with ATR stops"`
}

// ListRobotsResponse wraps the caller's robots.
type ListRobotsResponse struct {
	Robots []domain.Robot `json:"robots"`
}

// CreateRobot godoc
// @ID          createRobot
// @Summary     Register a robot
// @Description Registers a robot name owned by the caller. Sharing refers to robots by this name.
// @Tags        Robots
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateRobotRequest  true  "Robot"
// @Success     201   {object}  domain.Robot
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Name already registered"
// @Router      /robots [post]
func (h *Handlers) CreateRobot(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	var req CreateRobotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (max 255 chars)")
		return
	}
	r, err := h.robots.Create(c.Request.Context(), p, req.Name, req.Description)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRobots godoc
// @ID          listRobots
// @Summary     List own robots
// @Tags        Robots
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListRobotsResponse
// @Router      /robots [get]
func (h *Handlers) ListRobots(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	items, err := h.robots.List(c.Request.Context(), p)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.Robot{}
	}
	ok(c, http.StatusOK, ListRobotsResponse{Robots: items})
}
