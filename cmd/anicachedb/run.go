package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
	"github.com/varoOP/anicachedb/internal/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cache service with its maintenance schedulers",
	Long: `Run starts the long-lived service: the maintenance scheduler keeps
the database healthy (health checks, analyze, vacuum, integrity sweeps,
cache and transaction-log cleanup) and the analytics scheduler exports a
daily report when report_path is configured.

The process runs until interrupted; an in-flight task finishes before
shutdown completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if download, _ := cmd.Flags().GetBool("download"); download {
			needed, err := application.Download.NeedsDownload(ctx)
			if err != nil {
				return err
			}
			if needed {
				// A blocked download is not fatal: the service can run on
				// the existing index until the window opens.
				var rle *domain.RateLimitError
				if _, err := application.Download.Download(ctx, false); err != nil && !errors.As(err, &rle) {
					return fmt.Errorf("initial download failed: %w", err)
				}
			}
		}

		return application.Run(ctx)
	},
}

func init() {
	runCmd.Flags().Bool("download", false, "download the titles file at startup if the protection window allows it")
	rootCmd.AddCommand(runCmd)
}
