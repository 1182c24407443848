// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/config"
	"github.com/JakeFAU/social-harvester/internal/crawler"
	"github.com/JakeFAU/social-harvester/internal/logging"
	"github.com/JakeFAU/social-harvester/internal/server"
)

var cfgFile string

// App defines the application interface that commands will use.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	CrawlNow(ctx context.Context, targetID string, ignoreRepetitive bool) ([]crawler.TaskResult, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests job postings from social platforms and forwards the new ones.",
		Long: `harvester crawls configured platform searches on a schedule, filters
candidates by eligibility rules and a seen-identifier cache, stores every
decision, and delivers rendered messages to each target's channel.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (env CRAWLER_* overrides apply)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newOffsetsCmd())

	return cmd
}

// withApp loads configuration, builds the application and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app App) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	appInstance, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	return fn(cmd.Context(), appInstance)
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
