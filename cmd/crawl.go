package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one target's full
// pagination chain in the foreground and prints each page's result.
func newCrawlCmd() *cobra.Command {
	var (
		targetID         string
		ignoreRepetitive bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one target immediately",
		Long: `Runs every page of the target inline, without the queue or scheduler.
Pass --ignore-repetitive=false to re-process postings already in the seen cache.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if targetID == "" {
				return errors.New("--target is required")
			}
			return withApp(cmd, func(ctx context.Context, app App) error {
				defer func() {
					if cerr := app.Close(context.Background()); cerr != nil {
						zap.L().Warn("failed to close application", zap.Error(cerr))
					}
				}()
				results, err := app.CrawlNow(ctx, targetID, ignoreRepetitive)
				if err != nil {
					return err
				}
				return printResults(cmd, results)
			})
		},
	}
	cmd.Flags().StringVar(&targetID, "target", "", "target id to crawl")
	cmd.Flags().BoolVar(&ignoreRepetitive, "ignore-repetitive", true, "skip postings already seen")
	return cmd
}

type pageReport struct {
	crawler.TaskResult
	Error string `json:"error,omitempty"`
}

func printResults(cmd *cobra.Command, results []crawler.TaskResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	var failed int
	for _, r := range results {
		report := pageReport{TaskResult: r}
		if r.Err != nil {
			report.Error = r.Err.Error()
			failed++
		}
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(results))
	}
	return nil
}
