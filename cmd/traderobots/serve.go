package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/traderobots-backend/internal/auth"
	"github.com/tbourn/traderobots-backend/internal/config"
	"github.com/tbourn/traderobots-backend/internal/functions"
	httpapi "github.com/tbourn/traderobots-backend/internal/http"
	"github.com/tbourn/traderobots-backend/internal/maintenance"
	"github.com/tbourn/traderobots-backend/internal/observability"
	"github.com/tbourn/traderobots-backend/internal/repo"
	"github.com/tbourn/traderobots-backend/internal/services"
	"github.com/tbourn/traderobots-backend/internal/textgen"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the invite sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg())
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logStart("serve")

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)

	svc, err := buildApp(db, cfg)
	if err != nil {
		return err
	}

	if cfg.Sharing.SweepSchedule != "" {
		sw := maintenance.New(db, svc.sharing, maintenance.WithSchedule(cfg.Sharing.SweepSchedule))
		if err := sw.Start(); err != nil {
			return err
		}
		defer func() { <-sw.Stop().Done() }()
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, svc.deps, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

type app struct {
	deps    httpapi.Deps
	sharing *services.SharingService
}

// buildApp wires services to their remote collaborators. The functions
// client serves as notifier, directory, share linker and account backend.
func buildApp(db *gorm.DB, cfg config.Config) (*app, error) {
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, nil)
	if err != nil {
		return nil, err
	}
	fn := functions.New(cfg.Functions)

	sharing := services.NewSharingService(db,
		services.WithInviteTTL(cfg.Sharing.InviteTTL),
		services.WithAppBaseURL(cfg.Sharing.AppBaseURL),
		services.WithNotifier(fn),
		services.WithDirectory(fn),
		services.WithShareLinker(fn),
	)
	analyses := services.NewAnalysisService(db, textgen.New(cfg.AI),
		services.WithAnalysisTimeout(cfg.Analysis.Timeout),
		services.WithTokenCost(cfg.Analysis.TokenCost),
	)

	return &app{
		sharing: sharing,
		deps: httpapi.Deps{
			DB:       db,
			Verifier: verifier,
			Robots:   &services.RobotService{DB: db},
			Sharing:  sharing,
			Accounts: &services.AccountService{DB: db, Remote: fn, AdminEmails: cfg.Auth.AdminEmails},
			Analyses: analyses,
		},
	}, nil
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	target := cfg.DB.DSN
	if cfg.DB.Driver == repo.DriverSQLite {
		target = cfg.DB.Path
	}
	db, err := repo.Open(cfg.DB.Driver, target)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("database ready")
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}
