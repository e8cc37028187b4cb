// Package httpapi wires the Gin engine: global middleware, the versioned API
// group and its handlers, plus health, metrics and Swagger UI endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/docs"
	"github.com/tbourn/traderobots-backend/internal/config"
	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/http/handlers"
	"github.com/tbourn/traderobots-backend/internal/http/middleware"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

const (
	defaultBodyLimit = 1 << 20
	multipartSlack   = 64 << 10
)

// AccountService is the account surface the router needs: the handler
// operations plus lazy profile creation for every authenticated request.
type AccountService interface {
	handlers.AccountService
	EnsureProfile(ctx context.Context, p domain.Principal) (*domain.Profile, error)
}

// Deps are the collaborators RegisterRoutes mounts. DB backs the
// idempotency store; every other field is required.
type Deps struct {
	DB       *gorm.DB
	Verifier middleware.TokenVerifier
	Robots   handlers.RobotService
	Sharing  handlers.SharingService
	Accounts AccountService
	Analyses handlers.AnalysisService
}

// RegisterRoutes attaches middleware and endpoints to r. Order matters:
// tracing wraps everything, the request id precedes logging, recovery sits
// inside the loggers, and idempotency runs before the rate limiter so a
// replay can bypass it.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))
	r.Use(middleware.Recovery())

	backtestPath := joinPath(cfg.APIBasePath, "/analyses/backtest")
	r.Use(limitBody(defaultBodyLimit, map[string]int64{
		backtestPath: uploadLimit(cfg.Analysis.MaxUpload),
	}))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	idem := &idempotencyStore{db: d.DB, ttl: cfg.IdempotencyTTL}
	h := handlers.New(handlers.Deps{
		Robots:    d.Robots,
		Sharing:   d.Sharing,
		Accounts:  d.Accounts,
		Analyses:  d.Analyses,
		Idem:      idem,
		MaxUpload: cfg.Analysis.MaxUpload,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Authenticate(d.Verifier),
		middleware.EnsureProfile(func(ctx context.Context, p domain.Principal) error {
			_, err := d.Accounts.EnsureProfile(ctx, p)
			return err
		}),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.lookup),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler(),
	)
	{
		api.POST("/robots", h.CreateRobot)
		api.GET("/robots", h.ListRobots)

		api.POST("/robots/:name/invites", h.CreateInvite)
		api.GET("/robots/:name/invites", h.ListInvites)
		api.GET("/robots/:name/invites/check", h.CheckInvite)
		api.POST("/robots/:name/share-link", h.CreateShareLink)
		api.GET("/robots/:name/grants", h.ListRobotGrants)
		api.DELETE("/robots/:name/grants/:userID", h.RemoveGrant)

		api.GET("/invites/pending", h.PendingInvites)
		api.POST("/invites/:id/accept", h.AcceptInvite)
		api.POST("/invites/:id/decline", h.DeclineInvite)
		api.DELETE("/invites/:id", h.RevokeInvite)

		api.GET("/shared-robots", h.SharedWithMe)
		api.GET("/tokens/balance", h.TokenBalance)

		api.POST("/analyses/backtest", h.RunBacktest)
		api.POST("/analyses/strategy", h.RunStrategy)
		api.GET("/analyses", h.ListAnalyses)
		api.GET("/analyses/:id", h.GetAnalysis)
		api.PATCH("/analyses/:id/metrics", h.MergeMetrics)

		api.POST("/admin/tokens", h.GrantTokens)
		api.DELETE("/admin/users/:id", h.DeleteUser)
	}
}

// limitBody caps request bodies with http.MaxBytesReader. Routes listed in
// overrides (by route template) get their own cap.
func limitBody(def int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := def
		if n, found := overrides[c.FullPath()]; found {
			limit = n
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// uploadLimit leaves room for the multipart envelope around the file itself.
func uploadLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return maxUpload + multipartSlack
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Retry-After", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}

// idempotencyStore persists Idempotency-Key outcomes in the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s *idempotencyStore) Remember(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key recorded first.
		return nil
	}
	return err
}

func (s *idempotencyStore) lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return rec.ResourceID, true, nil
}
