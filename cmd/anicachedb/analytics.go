package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show search analytics for a trailing window",
	Long: `Analytics summarizes the transaction log: search volume, response
time percentiles, popular and zero-result queries, hourly distribution
and per-source activity. With --export the full report is written as
YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		hours, _ := cmd.Flags().GetInt("hours")
		limit, _ := cmd.Flags().GetInt("limit")
		export, _ := cmd.Flags().GetString("export")

		ctx := context.Background()
		report, err := application.AnalyticsReport(ctx, time.Duration(hours)*time.Hour, limit)
		if err != nil {
			return err
		}

		if export != "" {
			if err := application.Translog.ExportReport(report, export); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", export)
			return nil
		}

		s := report.Summary
		fmt.Printf("Last %d hours\n", hours)
		fmt.Printf("  searches:        %d (avg %.1f ms, avg %.1f results)\n", s.TotalSearches, s.AvgTimeMS, s.AvgResults)
		fmt.Printf("  percentiles:     p50=%.1fms p90=%.1fms p95=%.1fms p99=%.1fms\n",
			s.Percentiles.P50, s.Percentiles.P90, s.Percentiles.P95, s.Percentiles.P99)
		fmt.Printf("  performance:     fast=%d medium=%d slow=%d\n",
			s.Performance["fast"], s.Performance["medium"], s.Performance["slow"])

		if len(report.PopularQueries) > 0 {
			fmt.Println("  popular queries:")
			for _, q := range report.PopularQueries {
				fmt.Printf("    %-30s %d searches, avg %.1f results\n", q.Query, q.Count, q.Avg)
			}
		}
		if len(report.ZeroResults) > 0 {
			fmt.Println("  zero-result queries:")
			for _, q := range report.ZeroResults {
				fmt.Printf("    %-30s %d searches\n", q.Query, q.Count)
			}
		}
		if len(report.Sources) > 0 {
			fmt.Println("  sources:")
			for _, src := range report.Sources {
				fmt.Printf("    %-10s %d searches, avg %.1f ms\n", src.Source, src.Searches, src.AvgTimeMS)
			}
		}
		return nil
	},
}

func init() {
	analyticsCmd.Flags().Int("hours", 24, "trailing window in hours")
	analyticsCmd.Flags().Int("limit", 10, "rows per query table")
	analyticsCmd.Flags().String("export", "", "write the full report as YAML to this path")
	rootCmd.AddCommand(analyticsCmd)
}
