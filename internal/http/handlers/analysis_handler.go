// Analysis endpoints.
//
//   - POST  /analyses/backtest        (multipart "file", charged, Idempotency-Key aware)
//   - POST  /analyses/strategy        (free)
//   - GET   /analyses                 (paginated)
//   - GET   /analyses/{id}
//   - PATCH /analyses/{id}/metrics    (shallow merge into a backtest)
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/http/middleware"
	"github.com/tbourn/traderobots-backend/internal/utils"
)

// StrategyRequest describes a strategy in prose.
type StrategyRequest struct {
	Description string `json:"description" binding:"required,max=8000" example:"Buy EURUSD when RSI(14) < 30 on H1, exit at RSI 55, stop 2 ATR."`
}

// ListAnalysesResponse wraps a page of analyses.
type ListAnalysesResponse struct {
	Analyses   []domain.StrategyAnalysis `json:"analyses"`
	Pagination Pagination                `json:"pagination"`
}

// RunBacktest godoc
// @ID          runBacktest
// @Summary     Analyse a backtest report
// @Description Uploads the report to the assistant, extracts metrics and recommendations, stores the result and charges the analysis cost. Nothing is charged when the analysis fails. A retry with the same Idempotency-Key returns the stored analysis with 200.
// @Tags        Analyses
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file             formData  file    true   "Backtest report (CSV)"
// @Param       Idempotency-Key  header    string  false  "Retry key"
// @Success     201  {object}  domain.StrategyAnalysis
// @Success     200  {object}  domain.StrategyAnalysis  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or empty file"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient tokens"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     502  {object}  handlers.ErrorResponse  "Assistant failed"
// @Failure     504  {object}  handlers.ErrorResponse  "Analysis timed out"
// @Router      /analyses/backtest [post]
func (h *Handlers) RunBacktest(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	ctx := c.Request.Context()

	if id, replay := middleware.ReplayOf(c); replay {
		if a, err := h.analyses.Get(ctx, p, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, a)
			return
		}
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" required")
		return
	}
	if fh.Size > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()
	report, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable file")
		return
	}
	if int64(len(report)) > h.maxUpload {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
		return
	}

	a, err := h.analyses.Backtest(ctx, p, fh.Filename, report)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, p, a.ID, http.StatusCreated)
	ok(c, http.StatusCreated, a)
}

// RunStrategy godoc
// @ID          runStrategy
// @Summary     Analyse a strategy description
// @Tags        Analyses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.StrategyRequest  true  "Strategy"
// @Success     201  {object}  domain.StrategyAnalysis
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     504  {object}  handlers.ErrorResponse  "Analysis timed out"
// @Router      /analyses/strategy [post]
func (h *Handlers) RunStrategy(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	var req StrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Description) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "description required (max 8000 chars)")
		return
	}
	a, err := h.analyses.Strategy(c.Request.Context(), p, req.Description)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// ListAnalyses godoc
// @ID          listAnalyses
// @Summary     List my analyses
// @Tags        Analyses
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListAnalysesResponse
// @Router      /analyses [get]
func (h *Handlers) ListAnalyses(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))
	items, total, err := h.analyses.List(c.Request.Context(), p, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.StrategyAnalysis{}
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListAnalysesResponse{
		Analyses: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetAnalysis godoc
// @ID          getAnalysis
// @Summary     Get one of my analyses
// @Tags        Analyses
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Analysis ID"  format(uuid)
// @Success     200  {object}  domain.StrategyAnalysis
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /analyses/{id} [get]
func (h *Handlers) GetAnalysis(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	a, err := h.analyses.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// MergeMetrics godoc
// @ID          mergeMetrics
// @Summary     Merge metrics into a backtest analysis
// @Description Overwrites the named metrics and keeps the rest. Keys use the stored metric names.
// @Tags        Analyses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string  true  "Analysis ID"  format(uuid)
// @Param       body  body  object  true  "Metrics to overwrite"
// @Success     200  {object}  domain.StrategyAnalysis
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown metric or bad value"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not a backtest analysis"
// @Router      /analyses/{id}/metrics [patch]
func (h *Handlers) MergeMetrics(c *gin.Context) {
	p, authed := principal(c)
	if !authed {
		return
	}
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON object")
		return
	}
	a, err := h.analyses.MergeMetrics(c.Request.Context(), p, c.Param("id"), patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}
