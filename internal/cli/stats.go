package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local cache contents and client metrics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openCache(ctx)
	if err != nil {
		return err
	}

	pages, err := st.ListPages(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cached pages: %d\n", len(pages))

	total := 0
	for _, p := range pages {
		msgs, err := st.ListMessages(ctx, p.ID)
		if err != nil {
			return err
		}
		total += len(msgs)
	}
	fmt.Printf("Cached messages: %d\n", total)

	printSnapshot(collector.Snapshot())
	return nil
}

// printSnapshot renders the non-empty operation metrics.
func printSnapshot(snap metrics.Snapshot) {
	rows := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"ws connect", snap.WSConnect},
		{"ws send", snap.WSSend},
		{"ws reconnect", snap.WSReconnect},
		{"api request", snap.APIRequest},
		{"pdf download", snap.PDFDownload},
	}

	printed := false
	for _, r := range rows {
		if r.op == nil {
			continue
		}
		if !printed {
			fmt.Println("\nOperation metrics:")
			printed = true
		}
		fmt.Printf("  %-14s count=%d failures=%d avg=%.1fms min=%dms max=%dms\n",
			r.name, r.op.Count, r.op.Failures, r.op.AvgTimeMs, r.op.MinTimeMs, r.op.MaxTimeMs)
	}
}
