package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier 通过 Bot API 投递通知。
//
// HTTP 客户端自带超时，单次发送不会悬挂请求处理之外的 worker。
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegramNotifier 创建 Telegram 投递通道。
//
// token 为空时返回 nil（调用方降级为只记日志）。
func NewTelegramNotifier(token string, timeout time.Duration, logger *slog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info("telegram notifier ready", slog.String("bot", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, logger: logger}, nil
}

// Send 投递一条 HTML 格式消息。
func (n *TelegramNotifier) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
