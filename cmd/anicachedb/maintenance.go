package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/varoOP/anicachedb/internal/app"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance [task]",
	Short: "Run maintenance tasks",
	Long: `Maintenance runs the registered housekeeping tasks. With no argument
every task runs once in priority order; with a task name only that task
runs. Known tasks: health_check, analyze, vacuum, cache_cleanup,
transaction_cleanup, integrity_check.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx := context.Background()

		if len(args) == 1 {
			if err := application.Scheduler.RunTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Task %s completed.\n", args[0])
			return nil
		}

		application.Scheduler.RunDue(ctx)
		for _, st := range application.Scheduler.Status() {
			state := "ok"
			if st.LastError != "" {
				state = "failed: " + st.LastError
			} else if st.LastRun.IsZero() {
				state = "not run"
			}
			fmt.Printf("  %-20s every %-6s %s\n", st.Name, st.Interval, state)
		}
		return nil
	},
}

var maintenanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp(logLevel(), userAgent())
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		for _, st := range application.Scheduler.Status() {
			last := "never"
			if !st.LastRun.IsZero() {
				last = st.LastRun.Format(time.RFC1123)
			}
			fmt.Printf("  %-20s p%-2d every %-6s runs=%d failures=%d last=%s\n",
				st.Name, st.Priority, st.Interval, st.RunCount, st.FailureCount, last)
		}
		return nil
	},
}

func init() {
	maintenanceCmd.AddCommand(maintenanceStatusCmd)
	rootCmd.AddCommand(maintenanceCmd)
}
