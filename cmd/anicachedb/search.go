package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the local title index",
	Long: `Search runs a tiered lookup against the locally indexed titles file:
exact matches first, then prefix matches, then substring matches. Results
are deduplicated per anime and each search is recorded in the transaction
log.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		results, err := application.Search(context.Background(), query, limit, "cli")
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%-8d %-4s type=%d  %s\n", r.ID, r.Language, r.TitleType, r.Title)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum results (0 uses the configured default)")
	rootCmd.AddCommand(searchCmd)
}
