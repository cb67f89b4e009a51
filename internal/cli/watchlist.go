package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchlistUser int64

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage a user's watched symbols",
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add SYMBOL",
	Short: "Add a symbol to the watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchlistUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		return getApp().WatchlistAdd(cmd.Context(), watchlistUser, args[0])
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove SYMBOL",
	Short: "Remove a symbol and its position state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchlistUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		return getApp().WatchlistRemove(cmd.Context(), watchlistUser, args[0])
	},
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchlistUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		return getApp().WatchlistList(cmd.Context(), watchlistUser)
	},
}

func init() {
	watchlistCmd.PersistentFlags().Int64Var(&watchlistUser, "user", 0, "User ID owning the watchlist")
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
	watchlistCmd.AddCommand(watchlistListCmd)
}
