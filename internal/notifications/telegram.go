package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// TelegramNotifier sends milestone messages through a Telegram bot
type TelegramNotifier struct {
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier against the public Bot API
func NewTelegramNotifier(token string) *TelegramNotifier {
	return NewTelegramNotifierWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
}

// NewTelegramNotifierWithEndpoint creates a notifier against a custom Bot API endpoint
func NewTelegramNotifierWithEndpoint(token, endpoint string, client *http.Client) *TelegramNotifier {
	return &TelegramNotifier{
		token:    token,
		endpoint: endpoint,
		client:   client,
	}
}

// IsEnabled reports whether a bot token is configured
func (t *TelegramNotifier) IsEnabled() bool {
	return t.token != ""
}

// botAPI connects lazily so a bad token does not block start-up
func (t *TelegramNotifier) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect Telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Notify sends the milestone message to a chat ID or @channel address
func (t *TelegramNotifier) Notify(ctx context.Context, address, handle string, threshold, count int64) bool {
	logger := logrus.WithFields(logrus.Fields{
		"channel":   "telegram",
		"handle":    handle,
		"threshold": threshold,
	})

	if !t.IsEnabled() {
		logger.Warn("Telegram bot token not configured")
		return false
	}

	text := MilestoneHTML(handle, threshold, count, time.Now())
	if err := t.send(ctx, address, text); err != nil {
		logger.WithError(err).Error("Failed to send Telegram notification")
		return false
	}

	logger.Info("Sent Telegram milestone notification")
	return true
}

func (t *TelegramNotifier) send(ctx context.Context, address, text string) error {
	var msg tgbotapi.MessageConfig
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "@") {
		msg = tgbotapi.NewMessageToChannel(address, text)
	} else {
		chatID, err := strconv.ParseInt(address, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q: %w", address, err)
		}
		msg = tgbotapi.NewMessage(chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML

	done := make(chan error, 1)
	go func() {
		bot, err := t.botAPI()
		if err != nil {
			done <- err
			return
		}
		_, err = bot.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("telegram send aborted: %w", ctx.Err())
	}
}
