package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mglescz/crosslane/internal/config"
	"github.com/mglescz/crosslane/internal/store"
)

var (
	flagExportFormat string
	flagExportLimit  int
	flagExportStatus string
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "json", "Output format: json or csv")
	exportCmd.Flags().IntVar(&flagExportLimit, "limit", 1000, "Maximum number of records to export")
	exportCmd.Flags().StringVar(&flagExportStatus, "status", "", "Only export transfers with this status")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transfer records as JSON or CSV",
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

		var transfers []store.Transfer
		if flagExportStatus != "" {
			transfers, err = st.SelectByStatus(ctx, flagExportStatus, flagExportLimit)
		} else {
			transfers, err = st.SelectOldest(ctx, flagExportLimit)
		}
		if err != nil {
			return fmt.Errorf("select transfers: %w", err)
		}

		switch flagExportFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(transfers)
		case "csv":
			w := csv.NewWriter(out)
			header := []string{"id", "sender", "recipient", "amount", "bridged_amount",
				"status", "source_block", "dest_block", "event_time", "updated_at"}
			if err := w.Write(header); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
			for _, tr := range transfers {
				destBlock := ""
				if tr.DestBlock != nil {
					destBlock = strconv.FormatUint(*tr.DestBlock, 10)
				}
				row := []string{
					tr.ID, tr.Sender, tr.Recipient, tr.Amount, tr.BridgedAmount,
					tr.Status, strconv.FormatUint(tr.SourceBlock, 10), destBlock,
					tr.EventTime.UTC().Format("2006-01-02T15:04:05Z"),
					tr.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				}
				if err := w.Write(row); err != nil {
					return fmt.Errorf("write csv row: %w", err)
				}
			}
			w.Flush()
			return w.Error()
		default:
			return fmt.Errorf("unsupported format %q (want json or csv)", flagExportFormat)
		}
	},
}
