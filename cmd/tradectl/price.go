package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPriceCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Print the current price and the provider that served it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.Oracle.Quote(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %.2f (%s, %s)\n",
				a.Config.Price.Symbol, q.Price, q.Source, q.At.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
