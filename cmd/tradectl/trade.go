package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/camuig/paper-trader/internal/id"
	"github.com/camuig/paper-trader/internal/trade"
)

func newTradeCmd(rc *rootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Create and inspect paper trades",
	}
	cmd.AddCommand(newTradeCreateCmd(rc), newTradeListCmd(rc))
	return cmd
}

func newTradeCreateCmd(rc *rootConfig) *cobra.Command {
	var (
		direction string
		strategy  string
		setup     trade.Setup
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a pending paper trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := trade.ParseDirection(direction)
			if err != nil {
				return err
			}
			setup.Direction = dir

			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var strategyID string
			if strategy != "" {
				st, err := a.Store.GetStrategyByName(ctx, strategy)
				if err != nil {
					return fmt.Errorf("strategy %q: %w", strategy, err)
				}
				strategyID = st.ID
			}
			if setup.PositionSize == 0 {
				setup.PositionSize = a.Config.Trading.DefaultPositionSize
			}

			t, err := trade.NewTrade(setup, id.New, time.Now())
			if err != nil {
				return err
			}
			if err := a.Store.CreateTrade(ctx, t, strategyID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s entry %.2f sl %.2f tps %v\n",
				t.ID, t.Direction, t.EntryPrice, t.StopLoss, setup.TakeProfits)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&direction, "direction", "", "long or short")
	f.Float64Var(&setup.EntryPrice, "entry", 0, "entry price")
	f.Float64Var(&setup.StopLoss, "sl", 0, "stop-loss price")
	f.Float64SliceVar(&setup.TakeProfits, "tp", nil, "take-profit price, repeatable")
	f.Float64Var(&setup.PositionSize, "size", 0, "position size in quote currency (default trading.default_position_size)")
	f.StringVar(&strategy, "strategy", "", "strategy name credited with the result")
	f.StringVar(&setup.UserID, "user", "", "owner id")
	_ = cmd.MarkFlagRequired("direction")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("sl")
	return cmd
}

func newTradeListCmd(rc *rootConfig) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades, open ones by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			filter := trade.OpenStatuses
			if len(statuses) > 0 {
				filter = make([]trade.Status, len(statuses))
				for i, s := range statuses {
					filter[i] = trade.Status(s)
				}
			}
			trades, err := a.Store.ListTrades(cmd.Context(), filter...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIR\tSTATUS\tENTRY\tSL\tTPS\tPNL\tREMAINING")
			for _, t := range trades {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%d/%d\t%.2f\t%.2f\n",
					t.ID, t.Direction, t.Status, t.EntryPrice, t.StopLoss,
					t.HitCount(), len(t.TakeProfits), t.PnL, t.RemainingPosition)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status, repeatable")
	return cmd
}
