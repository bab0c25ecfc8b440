package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// MailDialer sends composed messages
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends milestone messages over SMTP
type EmailNotifier struct {
	from   string
	dialer MailDialer
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates an SMTP notifier. from defaults to username.
func NewEmailNotifier(host string, port int, username, password, from string) *EmailNotifier {
	if from == "" {
		from = username
	}
	return NewEmailNotifierWithDialer(from, gomail.NewDialer(host, port, username, password))
}

// NewEmailNotifierWithDialer creates a notifier around an existing dialer
func NewEmailNotifierWithDialer(from string, dialer MailDialer) *EmailNotifier {
	return &EmailNotifier{from: from, dialer: dialer}
}

// Notify sends the milestone e-mail to address
func (e *EmailNotifier) Notify(ctx context.Context, address, handle string, threshold, count int64) bool {
	logger := logrus.WithFields(logrus.Fields{
		"channel":   "email",
		"handle":    handle,
		"threshold": threshold,
	})

	now := time.Now()
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", MilestoneSubject(handle, threshold))
	m.SetBody("text/plain", MilestoneText(handle, threshold, count, now))
	m.AddAlternative("text/html", fmt.Sprintf("<html><body><p>%s</p></body></html>",
		htmlLineBreaks(MilestoneHTML(handle, threshold, count, now))))

	done := make(chan error, 1)
	go func() {
		done <- e.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.WithError(err).Error("Failed to send e-mail notification")
			return false
		}
	case <-ctx.Done():
		logger.WithError(ctx.Err()).Error("E-mail notification timed out")
		return false
	}

	logger.Info("Sent e-mail milestone notification")
	return true
}
