package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd runs the scheduler, worker pool and admin API until a termination signal.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, workers and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app App) error {
				if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("run harvester: %w", err)
				}
				return nil
			})
		},
	}
}
