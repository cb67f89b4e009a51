package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var telegramTestUser int64

var telegramTestCmd = &cobra.Command{
	Use:   "telegram-test",
	Short: "Send a test message using a user's stored Telegram config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if telegramTestUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		return getApp().TelegramTest(cmd.Context(), telegramTestUser)
	},
}

var (
	telegramSetUser    int64
	telegramSetToken   string
	telegramSetChat    string
	telegramSetEnabled bool
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Manage a user's Telegram alert routing",
}

var telegramSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the bot token and chat id alerts are delivered to",
	RunE: func(cmd *cobra.Command, args []string) error {
		if telegramSetUser <= 0 {
			return fmt.Errorf("--user is required")
		}
		return getApp().TelegramSet(cmd.Context(), telegramSetUser, telegramSetToken, telegramSetChat, telegramSetEnabled)
	},
}

func init() {
	telegramTestCmd.Flags().Int64Var(&telegramTestUser, "user", 0, "User ID whose config to test")

	telegramSetCmd.Flags().Int64Var(&telegramSetUser, "user", 0, "User ID owning the config")
	telegramSetCmd.Flags().StringVar(&telegramSetToken, "token", "", "Telegram bot token")
	telegramSetCmd.Flags().StringVar(&telegramSetChat, "chat", "", "Telegram chat id to deliver alerts to")
	telegramSetCmd.Flags().BoolVar(&telegramSetEnabled, "enabled", true, "Whether scheduled checks alert this user")
	telegramCmd.AddCommand(telegramSetCmd)
}
