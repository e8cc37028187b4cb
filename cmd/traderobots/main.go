// Command traderobots runs the robot sharing and analysis API.
//
//	@title						TradeRobots API
//	@version					1.0
//	@description				Robot sharing, invitations and AI-assisted strategy analyses.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/traderobots-backend/internal/config"
	"github.com/tbourn/traderobots-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type loadFunc func() (config.Config, error)

// newRootCmd builds the command tree. Every subcommand loads configuration
// and sets up logging before it runs.
func newRootCmd(load loadFunc) *cobra.Command {
	var cfg config.Config
	var closeLog func() error

	root := &cobra.Command{
		Use:           "traderobots",
		Short:         "Robot sharing and strategy analysis API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c
			closeLog = sysutil.SetupLogging(sysutil.LogOptions{
				Level:  cfg.LogLevel,
				Pretty: cfg.LogPretty,
				File:   cfg.LogFile,
			}).Close
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
	}

	cfgFn := func() config.Config { return cfg }
	root.AddCommand(
		newServeCmd(cfgFn),
		newMigrateCmd(cfgFn),
		newSweepCmd(cfgFn),
		newTokenCmd(cfgFn),
	)
	return root
}

func logStart(cmd string) {
	log.Info().Str("cmd", cmd).Str("version", version).Msg("starting")
}
