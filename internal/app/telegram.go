package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"equitywatch/internal/alerting"
	"equitywatch/internal/storage"
)

// TelegramSet 保存用户的告警路由（bot token 与 chat id）。
func (a *App) TelegramSet(ctx context.Context, userID int64, botToken, chatID string, enabled bool) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := saveTelegramConfig(ctx, store, userID, botToken, chatID, enabled); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "telegram config saved for user %d (enabled=%t)\n", userID, enabled)
	return nil
}

// saveTelegramConfig validates and upserts one user's routing row.
func saveTelegramConfig(ctx context.Context, configs storage.NotifyConfigStore, userID int64, botToken, chatID string, enabled bool) error {
	botToken = strings.TrimSpace(botToken)
	chatID = strings.TrimSpace(chatID)
	if botToken == "" {
		return errors.New("bot token required")
	}
	if chatID == "" {
		return errors.New("chat id required")
	}

	return configs.UpsertConfig(ctx, storage.NotifyConfig{
		UserID:   userID,
		BotToken: botToken,
		ChatID:   chatID,
		Enabled:  enabled,
	})
}

// TelegramTest 用用户已存的路由配置发送一条测试消息。
func (a *App) TelegramTest(ctx context.Context, userID int64) error {
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

	notifier := a.newNotifier()
	if err := notifier.SendText(ctx, cfg.BotToken, cfg.ChatID, alerting.TestMessage(time.Now())); err != nil {
		return fmt.Errorf("telegram error: %w", err)
	}

	fmt.Fprintln(os.Stdout, "test message sent successfully")
	return nil
}
