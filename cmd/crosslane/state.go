package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mglescz/crosslane/internal/config"
	"github.com/mglescz/crosslane/internal/store"
)

var flagStatePending int

func init() {
	stateCmd.Flags().IntVar(&flagStatePending, "pending", 10, "Number of oldest pending transfers to list")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show record-store status counts and stuck pending transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count by status: %w", err)
		}

		fmt.Fprintln(out, "transfers by status:")
		for _, status := range []string{store.StatusPending, store.StatusCompleted, store.StatusRefunded} {
			fmt.Fprintf(out, "  %-10s %d\n", status, counts[status])
		}

		pending, err := st.SelectByStatus(ctx, store.StatusPending, flagStatePending)
		if err != nil {
			return fmt.Errorf("select pending: %w", err)
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "no pending transfers")
			return nil
		}

		fmt.Fprintf(out, "oldest pending (%d):\n", len(pending))
		now := time.Now()
		for _, tr := range pending {
			fmt.Fprintf(out, "  %s block=%d amount=%s age=%s\n",
				tr.ID, tr.SourceBlock, tr.BridgedAmount,
				now.Sub(tr.EventTime).Round(time.Second))
		}
		return nil
	},
}
