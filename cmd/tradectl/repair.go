package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camuig/paper-trader/internal/app"
)

func newRepairCmd(rc *rootConfig) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Recompute trade PnL from the take-profit ledger",
		Long: "Recompute realized PnL and remaining position for entered and settled trades.\n" +
			"Without --apply the corrections are only printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			repairs, err := app.RepairTrades(cmd.Context(), a.Store, apply)
			out := cmd.OutOrStdout()
			for _, r := range repairs {
				fmt.Fprintf(out, "%s: pnl %.4f -> %.4f, remaining %.2f -> %.2f, %d take-profit fix(es)\n",
					r.TradeID, r.OldPnL, r.PnL, r.OldRemaining, r.RemainingPosition, len(r.TakeProfits))
			}
			if err != nil {
				return err
			}

			switch {
			case len(repairs) == 0:
				fmt.Fprintln(out, "all trades consistent")
			case !apply:
				fmt.Fprintf(out, "dry run: %d trade(s) need repair, rerun with --apply\n", len(repairs))
			default:
				fmt.Fprintf(out, "repaired %d trade(s)\n", len(repairs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "write the corrections")
	return cmd
}
