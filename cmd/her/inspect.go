package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/her-retrieval/her/internal/metrics"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the promotion store and pipeline metrics",
}

var inspectPromotionsCmd = &cobra.Command{
	Use:   "promotions",
	Short: "List every learned (page, frame, label) -> selector promotion",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		entries, err := st.ListAll()
		if err != nil {
			return fmt.Errorf("failed to list promotions: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("(no promotions recorded yet)")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  page=%s frame=%s label=%q selector=%s success=%s failure=%s consecutive_failures=%d updated=%s\n",
				e.UpdatedAt.Format("2006-01-02T15:04:05Z"), e.PageSig[:8], e.FrameHash[:min(8, len(e.FrameHash))], e.LabelKey, e.Selector,
				humanize.Comma(int64(e.SuccessCount)), humanize.Comma(int64(e.FailureCount)), e.ConsecutiveFailures, humanize.Time(e.UpdatedAt))
		}
		return nil
	},
}

var inspectMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print a point-in-time metrics snapshot (this process only)",
	Long: `Metrics are collected in-process and never exported over the
network, so "inspect metrics" only reflects activity from the current
invocation -- it's intended for piping "her run" output through a wrapper
script, not for querying a long-running daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := metrics.New()
		if err != nil {
			return err
		}
		defer rec.Shutdown(context.Background())
		snap, err := rec.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(snap)
		return nil
	},
}

func init() {
	inspectCmd.AddCommand(inspectPromotionsCmd, inspectMetricsCmd)
}
