package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"equitywatch/internal/storage"
)

// Notification 封装一次均线穿越告警的上下文。
type Notification struct {
	Symbol   string
	Kind     storage.CrossType
	Price    decimal.Decimal
	SMAValue decimal.Decimal
	At       time.Time
}

// Notifier 定义告警输送接口。路由（bot token 与 chat id）按用户传入。
type Notifier interface {
	Notify(ctx context.Context, botToken, chatID string, note Notification) error
	SendText(ctx context.Context, botToken, chatID, text string) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 渲染穿越告警文本并调用 sendMessage API。
func (n *TelegramNotifier) Notify(ctx context.Context, botToken, chatID string, note Notification) error {
	if err := n.SendText(ctx, botToken, chatID, renderMessage(note)); err != nil {
		return err
	}

	n.logger.Info().
		Str("symbol", note.Symbol).
		Str("kind", string(note.Kind)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// SendText 推送一段已格式化的 HTML 文本。
func (n *TelegramNotifier) SendText(ctx context.Context, botToken, chatID, text string) error {
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			if result.Description != "" {
				return fmt.Errorf("telegram: %s", result.Description)
			}
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	return nil
}

func renderMessage(note Notification) string {
	emoji := "📉"
	direction := "BELOW"
	signal := "Bearish 🔴"
	if note.Kind == storage.CrossBullish {
		emoji = "📈"
		direction = "ABOVE"
		signal = "Bullish 🟢"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>%s SMA Crossover Alert: %s</b>\n\n", emoji, note.Symbol))
	builder.WriteString(fmt.Sprintf("<b>%s</b> has crossed <b>%s</b> its 200-day SMA\n\n", note.Symbol, direction))
	builder.WriteString(fmt.Sprintf("• Price: <code>$%s</code>\n", note.Price.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("• 200-Day SMA: <code>$%s</code>\n", note.SMAValue.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("• Signal: <b>%s</b>\n\n", signal))
	builder.WriteString(fmt.Sprintf("<i>%s</i>", note.At.UTC().Format(time.RFC1123)))
	return builder.String()
}

// TestMessage renders the connectivity test body sent by telegram-test.
func TestMessage(now time.Time) string {
	builder := strings.Builder{}
	builder.WriteString("<b>🔔 EquityWatch Test Alert</b>\n\n")
	builder.WriteString("This is a test message from your EquityWatch alert system.\n")
	builder.WriteString("If you see this, Telegram alerts are configured correctly!\n\n")
	builder.WriteString(fmt.Sprintf("<i>Sent at %s</i>", now.UTC().Format(time.RFC1123)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
