package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateUser   int64
	simulateSymbol string
	simulatePrice  float64
	simulateSMA    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次均线穿越并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateUser <= 0 {
			return errors.New("--user 必须大于 0")
		}
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrice <= 0 || simulateSMA <= 0 {
			return errors.New("--price 与 --sma 必须大于 0")
		}

		price := decimal.NewFromFloat(simulatePrice)
		sma := decimal.NewFromFloat(simulateSMA)
		return getApp().SimulateAlert(cmd.Context(), simulateUser, simulateSymbol, price, sma)
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateUser, "user", 0, "接收告警的用户 ID")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "股票代码")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "模拟收盘价")
	simulateCmd.Flags().Float64Var(&simulateSMA, "sma", 0, "模拟 200 日均线值")
}
