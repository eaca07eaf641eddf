package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached response from both tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		n := application.Cache.Clear(context.Background())
		fmt.Printf("Dropped %d cached entries.\n", n)
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired entries from both tiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		n := application.Cache.CleanupExpired(context.Background())
		fmt.Printf("Removed %d expired entries.\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}
