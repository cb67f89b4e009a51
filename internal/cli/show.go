package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"equitywatch/internal/app"
)

var (
	showUser  int64
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display a user's recent alert history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		if showUser <= 0 {
			return fmt.Errorf("--user is required")
		}

		opts := app.ShowOptions{
			UserID: showUser,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().Int64Var(&showUser, "user", 0, "User ID whose alerts to display")
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "Number of alerts to display")
}
