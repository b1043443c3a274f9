// Package push delivers digest notifications to recipient devices.
package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Elias24978/safety-app/pkg/domain"
)

// ErrNoToken is returned when a notification has no device token.
var ErrNoToken = errors.New("push: notification has no device token")

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// LogSender only logs notifications. Used for local development.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, n domain.Notification) error {
	if n.Token == "" {
		return ErrNoToken
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "push_notification", "recipient_id", n.RecipientID, "title", n.Title, "body", n.Body)
	return nil
}
