package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mobilepilot/store"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored runs",
	Long:  `History reads the run store configured in the storage block. The memory backend keeps nothing between invocations.`,
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *store.Bundle) error {
			runs, total, err := stores.Runs.ListRuns(historyLimit, historyOffset)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			fmt.Printf("%d run(s), showing %d\n", total, len(runs))
			for _, r := range runs {
				fmt.Printf("  %s  %-20s %-10s %-18s %d/%d in %d round(s)  %s\n",
					r.ID, r.Task, r.Status, r.Reason, r.Completed, r.Target, r.Rounds, r.StartedAt.Format(time.DateTime))
			}
			return nil
		})
	},
}

var historyRunCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Show a run and its rounds",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *store.Bundle) error {
			r, err := stores.Runs.GetRun(args[0])
			if err != nil {
				return fmt.Errorf("run '%s': %w", args[0], err)
			}
			fmt.Printf("Run %s (%s)\n", r.ID, r.Task)
			fmt.Printf("  dir:       %s\n", r.TaskDir)
			fmt.Printf("  status:    %s\n", r.Status)
			if r.Reason != "" {
				fmt.Printf("  reason:    %s\n", r.Reason)
			}
			fmt.Printf("  completed: %d of %d\n", r.Completed, r.Target)
			if r.Error != nil {
				fmt.Printf("  error:     %s\n", *r.Error)
			}

			rounds, err := stores.Runs.GetRounds(r.ID)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d round(s)\n", len(rounds))
			for _, rd := range rounds {
				status := "ok"
				if !rd.OK {
					status = "fail"
					if rd.FaultKind != "" {
						status = rd.FaultKind
					}
				}
				fmt.Printf("  #%-3d %-12s %-6s %s\n", rd.Index, rd.Stage, status, rd.Action)
			}
			return nil
		})
	},
}

var historyEventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Show the event log of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *store.Bundle) error {
			events, err := stores.Events.GetEventsByRun(args[0], historyLimit, historyOffset)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("%s  %-20s %s\n", e.CreatedAt.Format(time.TimeOnly), e.EventType, e.DataJSON)
			}
			return nil
		})
	},
}

var historyReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored analysis reports",
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *store.Bundle) error {
			reports, total, err := stores.Reports.ListReports(historyLimit, historyOffset)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No reports recorded")
				return nil
			}
			fmt.Printf("%d report(s), showing %d\n", total, len(reports))
			for _, r := range reports {
				fmt.Printf("  %s  %-30s %d record(s), %d skipped  %s\n",
					r.ID, r.TaskDir, r.Records, r.Skipped, r.CreatedAt.Format(time.DateTime))
			}
			return nil
		})
	},
}

var historyRecordsCmd = &cobra.Command{
	Use:   "records [report-id]",
	Short: "Show the email records of a report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStores(func(stores *store.Bundle) error {
			records, err := stores.Reports.GetRecords(args[0])
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%d. [%d] %s - %s (%s)\n", r.Position+1, r.Importance, r.Sender, r.Subject, r.Category)
				if r.Summary != "" {
					fmt.Printf("   %s\n", r.Summary)
				}
			}
			return nil
		})
	},
}

// withStores opens the configured stores for one history query.
func withStores(fn func(*store.Bundle) error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	stores, err := openStores(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	err = fn(stores)
	stores.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyRunCmd)
	historyCmd.AddCommand(historyEventsCmd)
	historyCmd.AddCommand(historyReportsCmd)
	historyCmd.AddCommand(historyRecordsCmd)
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum rows to show")
	historyCmd.PersistentFlags().IntVar(&historyOffset, "offset", 0, "Rows to skip")
}
