package cli

import (
	"github.com/spf13/cobra"
)

var debugStockCmd = &cobra.Command{
	Use:   "debug-stock SYMBOL",
	Short: "Fetch a symbol and print series totals and historical crossovers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DebugStock(cmd.Context(), args[0])
	},
}
