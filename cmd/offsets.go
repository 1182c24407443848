package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/social-harvester/internal/continuation"
	"github.com/JakeFAU/social-harvester/internal/crawler"
)

// newOffsetsCmd prints the page offsets a target with the given page count visits.
func newOffsetsCmd() *cobra.Command {
	var pages, pageSize int
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Print the pagination offsets for a page count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1, got %d", pages)
			}
			for _, offset := range continuation.Offsets(pages, pageSize) {
				fmt.Fprintln(cmd.OutOrStdout(), offset)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of result pages")
	cmd.Flags().IntVar(&pageSize, "page-size", crawler.DefaultPageSize, "results per page")
	return cmd
}
