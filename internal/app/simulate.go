package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"equitywatch/internal/alerting"
	"equitywatch/internal/storage"
)

// SimulateAlert 用给定的价格与均线值模拟一次穿越告警并实际推送，
// 不写入任何状态或历史。
func (a *App) SimulateAlert(ctx context.Context, userID int64, symbol string, price, sma decimal.Decimal) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	cfg, err := store.GetConfig(ctx, userID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("no telegram configuration found for user")
	}

	kind := storage.CrossBearish
	if price.GreaterThan(sma) {
		kind = storage.CrossBullish
	}

	note := alerting.Notification{
		Symbol:   symbol,
		Kind:     kind,
		Price:    price,
		SMAValue: sma,
		At:       time.Now(),
	}

	notifier := a.newNotifier()
	if err := notifier.Notify(ctx, cfg.BotToken, cfg.ChatID, note); err != nil {
		return fmt.Errorf("dispatch simulated alert: %w", err)
	}

	fmt.Fprintf(os.Stdout, "simulated %s alert sent for %s\n", kind, symbol)
	return nil
}
