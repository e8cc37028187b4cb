// Package services – AnalysisService
//
// AnalysisService runs AI-assisted analyses. A backtest analysis uploads the
// report, asks the assistant for metrics and commentary and extracts a
// structured result; a strategy analysis does the same from a free-text
// description. Results are stored as JSON documents and paid for in tokens,
// charged in the same transaction that stores the result so a failed
// analysis costs nothing.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/extract"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

// Assistant is the text generation backend.
type Assistant interface {
	UploadFile(ctx context.Context, name string, r io.Reader) (string, error)
	DeleteFile(ctx context.Context, id string) error
	Ask(ctx context.Context, prompt, fileID string) (string, error)
}

const (
	defaultAnalysisTimeout = 2 * time.Minute
	defaultTokenCost       = 1000
	cleanupTimeout         = 15 * time.Second
)

// AnalysisOption customises AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithAnalysisTimeout bounds a single analysis end to end.
func WithAnalysisTimeout(d time.Duration) AnalysisOption {
	return func(s *AnalysisService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTokenCost sets the price of one analysis. Zero makes analyses free.
func WithTokenCost(n int64) AnalysisOption {
	return func(s *AnalysisService) {
		if n >= 0 {
			s.cost = n
		}
	}
}

// WithAnalysisClock injects a clock, mainly for tests.
func WithAnalysisClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) {
		if now != nil {
			s.now = now
		}
	}
}

// AnalysisService runs and stores analyses.
type AnalysisService struct {
	DB *gorm.DB

	ai      Assistant
	timeout time.Duration
	cost    int64
	now     func() time.Time
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(db *gorm.DB, ai Assistant, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		DB:      db,
		ai:      ai,
		timeout: defaultAnalysisTimeout,
		cost:    defaultTokenCost,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cost returns the token price of one analysis.
func (s *AnalysisService) Cost() int64 { return s.cost }

func analysisTracer() trace.Tracer { return otel.Tracer("services/AnalysisService") }

// Backtest analyses an exported backtest report.
func (s *AnalysisService) Backtest(ctx context.Context, user domain.Principal, filename string, report []byte) (*domain.StrategyAnalysis, error) {
	ctx, span := analysisTracer().Start(ctx, "Backtest", trace.WithAttributes(
		attribute.String("user.id", user.UserID),
		attribute.Int("report.bytes", len(report)),
	))
	defer span.End()

	if len(bytes.TrimSpace(report)) == 0 {
		return nil, ErrEmptyInput
	}
	if strings.TrimSpace(filename) == "" {
		filename = "backtest.csv"
	}
	if err := s.checkBalance(ctx, user); err != nil {
		return nil, err
	}

	return s.run(ctx, user, domain.AnalysisBacktest, func(runCtx context.Context) (any, error) {
		fileID, err := s.ai.UploadFile(runCtx, filename, bytes.NewReader(report))
		if err != nil {
			return nil, err
		}
		defer s.deleteFile(ctx, fileID)

		reply, err := s.ai.Ask(runCtx, backtestPrompt, fileID)
		if err != nil {
			return nil, err
		}
		res := extract.Extract(reply)
		if !res.HasCoreMetrics() {
			zerolog.Ctx(ctx).Warn().Msg("analysis reply carried no recognizable metrics")
		}
		res.Metrics.LastUpdated = s.now().Format(time.RFC3339)
		return res, nil
	})
}

// Strategy analyses a free-text strategy description.
func (s *AnalysisService) Strategy(ctx context.Context, user domain.Principal, description string) (*domain.StrategyAnalysis, error) {
	ctx, span := analysisTracer().Start(ctx, "Strategy", trace.WithAttributes(
		attribute.String("user.id", user.UserID),
	))
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyInput
	}
	if err := s.checkBalance(ctx, user); err != nil {
		return nil, err
	}
	return s.run(ctx, user, domain.AnalysisStrategy, func(runCtx context.Context) (any, error) {
		reply, err := s.ai.Ask(runCtx, strategyPrompt(description), "")
		if err != nil {
			return nil, err
		}
		return extract.ExtractStrategy(reply), nil
	})
}

// run executes produce under the analysis deadline and stores its result,
// debiting the caller in the same transaction.
func (s *AnalysisService) run(ctx context.Context, user domain.Principal, kind domain.AnalysisKind, produce func(context.Context) (any, error)) (*domain.StrategyAnalysis, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := produce(runCtx)
	if err != nil {
		analysesTotal.WithLabelValues(string(kind), "failed").Inc()
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrAnalysisTimeout
		}
		return nil, fmt.Errorf("analysis: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("analysis: encode result: %w", err)
	}
	now := s.now()
	a := &domain.StrategyAnalysis{
		ID:        uuid.NewString(),
		UserID:    user.UserID,
		Kind:      kind,
		Data:      datatypes.JSON(raw),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.cost > 0 {
			if err := debit(ctx, tx, user.UserID, s.cost); err != nil {
				return err
			}
		}
		return repo.CreateAnalysis(ctx, tx, a)
	})
	if err != nil {
		analysesTotal.WithLabelValues(string(kind), "failed").Inc()
		if errors.Is(err, ErrInsufficientTokens) {
			return nil, err
		}
		return nil, fmt.Errorf("analysis: store: %w", err)
	}
	analysesTotal.WithLabelValues(string(kind), "ok").Inc()
	return a, nil
}

// checkBalance fails fast before any paid upstream call is made. The debit
// itself is re-checked atomically when the result is stored.
func (s *AnalysisService) checkBalance(ctx context.Context, user domain.Principal) error {
	if s.cost == 0 {
		return nil
	}
	p, err := repo.GetProfile(ctx, s.DB, user.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInsufficientTokens
	}
	if err != nil {
		return err
	}
	if p.TokenBalance < s.cost {
		return ErrInsufficientTokens
	}
	return nil
}

// deleteFile removes an uploaded report. It runs after the analysis and must
// survive its cancellation, so it gets a detached, bounded context.
func (s *AnalysisService) deleteFile(ctx context.Context, id string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.ai.DeleteFile(cctx, id); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file_id", id).Msg("uploaded report not deleted")
	}
}

// List returns a page of the caller's analyses, newest first, with the total.
func (s *AnalysisService) List(ctx context.Context, user domain.Principal, page, pageSize int) ([]domain.StrategyAnalysis, int64, error) {
	ctx, span := analysisTracer().Start(ctx, "List", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAnalyses(ctx, s.DB, user.UserID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.StrategyAnalysis{}, 0, nil
	}
	items, err := repo.ListAnalysesPage(ctx, s.DB, user.UserID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Get loads one of the caller's analyses.
func (s *AnalysisService) Get(ctx context.Context, user domain.Principal, id string) (*domain.StrategyAnalysis, error) {
	a, err := repo.GetAnalysis(ctx, s.DB, id, user.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAnalysisNotFound
	}
	return a, err
}

// MergeMetrics overlays patch onto the metrics of a stored backtest
// analysis and stamps lastUpdated. Other parts of the document are kept.
func (s *AnalysisService) MergeMetrics(ctx context.Context, user domain.Principal, id string, patch map[string]json.RawMessage) (*domain.StrategyAnalysis, error) {
	ctx, span := analysisTracer().Start(ctx, "MergeMetrics", trace.WithAttributes(
		attribute.String("analysis.id", id),
	))
	defer span.End()

	if len(patch) == 0 {
		return nil, ErrInvalidMetrics
	}
	a, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if a.Kind != domain.AnalysisBacktest {
		return nil, ErrNotBacktest
	}

	var res extract.Result
	if err := json.Unmarshal(a.Data, &res); err != nil {
		return nil, fmt.Errorf("analysis: decode stored result: %w", err)
	}
	merged, err := extract.MergeMetrics(res.Metrics, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetrics, err)
	}
	merged.LastUpdated = s.now().Format(time.RFC3339)
	res.Metrics = merged

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("analysis: encode result: %w", err)
	}
	if err := repo.UpdateAnalysisData(ctx, s.DB, a.ID, user.UserID, datatypes.JSON(raw)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("analysis: update: %w", err)
	}
	a.Data = datatypes.JSON(raw)
	a.UpdatedAt = s.now()
	return a, nil
}
