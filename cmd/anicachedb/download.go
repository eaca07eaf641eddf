package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
	"github.com/varoOP/anicachedb/internal/domain"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the bulk titles file and rebuild the index",
	Long: `Download fetches the bulk titles file, validates it (gzip magic, a
full decompression pass, minimum size), installs it atomically and
rebuilds the title index.

The upstream provider bans clients that fetch the file more than once
per protection window, so downloads inside the window are refused.
--force bypasses the window but never the validations; use it only when
you know the last recorded download did not actually reach upstream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx := context.Background()
		force, _ := cmd.Flags().GetBool("force")

		count, err := application.Download.Download(ctx, force)
		if err != nil {
			var rle *domain.RateLimitError
			if errors.As(err, &rle) {
				return fmt.Errorf("blocked: next download allowed %s (%s)",
					rle.NextAllowed.Format(time.RFC1123), humanize.Time(rle.NextAllowed))
			}
			return err
		}

		fmt.Printf("Downloaded and indexed %d titles.\n", count)
		return nil
	},
}

var downloadStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the download gate state",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		st, err := application.Download.Report(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Source:          %s\n", st.Source)
		if st.LastDownload.IsZero() {
			fmt.Println("Last download:   never")
		} else {
			fmt.Printf("Last download:   %s (%s)\n", st.LastDownload.Format(time.RFC1123), humanize.Time(st.LastDownload))
			fmt.Printf("Last size:       %s\n", humanize.Bytes(uint64(st.LastSize)))
		}
		if st.LastStatus != "" {
			fmt.Printf("Last status:     %s\n", st.LastStatus)
		}
		if st.AttemptStatus != "" {
			fmt.Printf("Last attempt:    %s %s\n", st.AttemptStatus, st.AttemptMessage)
		}
		if st.Protected {
			fmt.Printf("Protected:       yes, next allowed %s (%.1f hours remaining)\n",
				st.NextAllowed.Format(time.RFC1123), st.HoursRemaining)
		} else {
			fmt.Println("Protected:       no, download allowed")
		}
		fmt.Printf("File installed:  %v\n", st.FileInstalled)
		return nil
	},
}

var downloadResetCmd = &cobra.Command{
	Use:   "reset-protection",
	Short: "Clear the protection window (audited)",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		if err := application.Download.ResetProtection(context.Background()); err != nil {
			return err
		}
		fmt.Println("Protection window cleared.")
		return nil
	},
}

var downloadVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the installed titles file",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		if err := application.Download.VerifyIntegrity(context.Background()); err != nil {
			return err
		}
		fmt.Println("Titles file OK.")
		return nil
	},
}

func init() {
	downloadCmd.Flags().Bool("force", false, "bypass the protection window (validations still apply)")
	downloadCmd.AddCommand(downloadStatusCmd)
	downloadCmd.AddCommand(downloadResetCmd)
	downloadCmd.AddCommand(downloadVerifyCmd)
	rootCmd.AddCommand(downloadCmd)
}
