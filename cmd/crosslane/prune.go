package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mglescz/crosslane/internal/config"
	"github.com/mglescz/crosslane/internal/store"
)

var flagPruneKeep int

func init() {
	pruneCmd.Flags().IntVar(&flagPruneKeep, "keep", 10000, "Number of most recent records to keep")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete the oldest transfer records beyond a retention limit",
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
			return fmt.Errorf("count records: %w", err)
		}
		total := int64(0)
		for _, n := range counts {
			total += n
		}

		excess := total - int64(flagPruneKeep)
		if excess <= 0 {
			fmt.Fprintf(out, "prune: %d records, nothing to delete\n", total)
			return nil
		}

		deleted, err := st.DeleteOldest(ctx, int(excess))
		if err != nil {
			return fmt.Errorf("delete oldest: %w", err)
		}
		fmt.Fprintf(out, "prune: deleted %d of %d records\n", deleted, total)
		return nil
	},
}
