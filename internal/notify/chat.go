package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"opsalert/internal/config"
	"opsalert/internal/domain"

	tgbot "github.com/go-telegram/bot"
)

// ChatSender posts alerts to a Telegram chat.
// Params: bot client and destination chat id.
// Returns: chat channel implementation.
type ChatSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewChatSender creates the Telegram chat sender.
// Params: chat notifier config.
// Returns: initialized sender; init errors surface on first Deliver.
func NewChatSender(cfg config.ChatNotifier) *ChatSender {
	sender := &ChatSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("chat bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("chat chat_id is required")
		return sender
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init chat bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: chat channel key.
func (s *ChatSender) Channel() domain.AlertChannel {
	return domain.ChannelChat
}

// Deliver posts one alert message to the configured chat.
// Params: context and alert to deliver.
// Returns: transport or API error.
func (s *ChatSender) Deliver(ctx context.Context, alert domain.Alert) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return errors.New("chat client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   RenderText(alert),
	})
	if err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("chat send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps
// non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: chat id union value for the bot API.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
