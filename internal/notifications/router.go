package notifications

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Router picks a channel from the shape of the address:
// "user@example.com" goes to e-mail, anything else (chat id, @channel) to Telegram.
type Router struct {
	telegram Notifier
	email    Notifier
}

var _ Notifier = (*Router)(nil)

// NewRouter creates a router; either channel may be nil when not configured
func NewRouter(telegram, email Notifier) *Router {
	return &Router{telegram: telegram, email: email}
}

func (r *Router) Notify(ctx context.Context, address, handle string, threshold, count int64) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}

	channel, name := r.telegram, "telegram"
	if isEmailAddress(address) {
		channel, name = r.email, "email"
	}

	if channel == nil {
		logrus.WithFields(logrus.Fields{
			"channel": name,
			"handle":  handle,
		}).Warn("Notification channel not configured, dropping milestone notification")
		return false
	}
	return channel.Notify(ctx, address, handle, threshold, count)
}

func isEmailAddress(address string) bool {
	at := strings.Index(address, "@")
	return at > 0 && at < len(address)-1
}

func htmlLineBreaks(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "<br>")
}
