package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and title index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx := context.Background()
		cfg := application.Config()

		cacheStats := application.Cache.Stats(ctx)
		fmt.Println("Cache")
		fmt.Printf("  memory entries:    %d / %d (hit rate %.1f%%)\n",
			cacheStats.Memory.Entries, cacheStats.Memory.MaxEntries, cacheStats.Memory.HitRate())
		if cacheStats.DBAvailable {
			fmt.Printf("  persistent:        %d active, %d expired, %s\n",
				cacheStats.Persistent.Active, cacheStats.Persistent.Expired,
				humanize.Bytes(uint64(cacheStats.Persistent.TotalBytes)))
		} else {
			fmt.Println("  persistent:        unavailable (memory-only mode)")
		}
		fmt.Printf("  lookups:           %d memory hits, %d persistent hits, %d misses\n",
			cacheStats.Counters.MemoryHits, cacheStats.Counters.PersistentHits, cacheStats.Counters.Misses)

		titleStats, err := application.Titles.Stats(ctx, cfg.Source)
		if err != nil {
			return err
		}
		fmt.Println("Titles")
		fmt.Printf("  indexed titles:    %d (%d unique anime)\n", titleStats.TotalTitles, titleStats.UniqueIDs)
		if !titleStats.LastUpdate.IsZero() {
			fmt.Printf("  last update:       %s (%s)\n",
				titleStats.LastUpdate.Format(time.RFC1123), humanize.Time(titleStats.LastUpdate))
		}

		report, err := application.Maintenance().HealthCheck(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Database")
		fmt.Printf("  file:              %s (%s)\n", application.DatabasePath(), humanize.Bytes(uint64(report.FileSizeBytes)))
		fmt.Printf("  quick check:       %v\n", report.QuickCheckOK)
		fmt.Printf("  transactions:      %d\n", report.Transactions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
