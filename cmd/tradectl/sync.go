package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSyncCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over open trades at the current price",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Syncer.RunPass(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "price %.2f: %d evaluated, %d updated, %d stale, %d failed\n",
				report.Price, report.Evaluated, report.Updated(), report.Stale, report.Failed)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, o := range report.Outcomes {
				fmt.Fprintf(w, "%s\t%s -> %s\t%s\t%.2f\t%s\n", o.TradeID, o.From, o.To, o.Result, o.PnL, o.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d trade(s) failed", report.Failed)
			}
			return nil
		},
	}
}
