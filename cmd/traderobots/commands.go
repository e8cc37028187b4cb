package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/traderobots-backend/internal/auth"
	"github.com/tbourn/traderobots-backend/internal/config"
	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/maintenance"
	"github.com/tbourn/traderobots-backend/internal/services"
)

func newMigrateCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(*cobra.Command, []string) error {
			logStart("migrate")
			db, err := openDB(cfg())
			if err != nil {
				return err
			}
			closeDB(db)
			return nil
		},
	}
}

func newSweepCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate expired invites and purge stale idempotency keys once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logStart("sweep")
			c := cfg()
			db, err := openDB(c)
			if err != nil {
				return err
			}
			defer closeDB(db)

			sharing := services.NewSharingService(db, services.WithInviteTTL(c.Sharing.InviteTTL))
			stats, err := maintenance.New(db, sharing).RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired_invites=%d purged_idempotency=%d\n",
				stats.ExpiredInvites, stats.PurgedIdemKeys)
			return err
		},
	}
}

// newTokenCmd signs a bearer token with the configured secret. Production
// tokens come from the identity provider; this serves local development.
func newTokenCmd(cfg func() config.Config) *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			v, err := auth.NewVerifier(c.Auth.JWTSecret, c.Auth.JWTIssuer, nil)
			if err != nil {
				return err
			}
			tok, err := v.Issue(domain.Principal{UserID: userID, Email: domain.NormalizeEmail(email)}, ttl)
			if err != nil {
				return err
			}
			log.Debug().Str("user_id", userID).Dur("ttl", ttl).Msg("token issued")
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "subject (user id)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
