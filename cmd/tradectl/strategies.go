package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/camuig/paper-trader/internal/app"
	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/trade"
)

func newStrategiesCmd(rc *rootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List and seed AI strategies",
	}
	cmd.AddCommand(newStrategiesListCmd(rc), newStrategiesSeedCmd(rc))
	return cmd
}

func newStrategiesListCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every strategy with its balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			strategies, err := a.Store.ListStrategies(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBALANCE\tDESCRIPTION")
			for _, s := range strategies {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", s.ID, s.Name, s.Balance, s.Description)
			}
			return w.Flush()
		},
	}
}

func newStrategiesSeedCmd(rc *rootConfig) *cobra.Command {
	var (
		balance     float64
		description string
	)
	cmd := &cobra.Command{
		Use:   "seed [NAME...]",
		Short: "Create the named strategies, or the defaults, that do not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if balance == 0 {
				balance = a.Config.Trading.StartingBalance
			}
			var seeds []trade.Strategy
			if len(args) == 0 {
				seeds = append(seeds, app.DefaultStrategies...)
			}
			for _, name := range args {
				seeds = append(seeds, trade.Strategy{Name: name, Description: description})
			}
			for i := range seeds {
				seeds[i].Balance = balance
			}

			created, err := app.SeedStrategies(cmd.Context(), a.Store, seeds, id.New)
			for _, s := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%.2f)\n", s.ID, s.Name, s.Balance)
			}
			if err != nil {
				return err
			}
			if len(created) < len(seeds) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d already present\n", len(seeds)-len(created))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 0, "starting balance (default trading.starting_balance)")
	cmd.Flags().StringVar(&description, "description", "", "strategy description")
	return cmd
}
