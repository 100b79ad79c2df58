package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
)

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the native balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.provider()
			if err != nil {
				return err
			}
			bal, err := p.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s base units)\n", node.FormatUnits(bal, p.Decimals()), bal)
			return nil
		},
	}
}
