package push

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/Elias24978/safety-app/pkg/domain"
)

// MessagingClient is the part of the FCM client the sender needs.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender sends notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client MessagingClient
}

// FCMConfig selects the Firebase project and credentials. An empty
// CredentialsFile uses application default credentials.
type FCMConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NewFCMSender initializes a Firebase app and its messaging client.
func NewFCMSender(ctx context.Context, cfg FCMConfig) (*FCMSender, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCMSenderWithClient(client), nil
}

// NewFCMSenderWithClient wraps an existing messaging client.
func NewFCMSenderWithClient(client MessagingClient) *FCMSender {
	return &FCMSender{client: client}
}

// Send delivers n as a notification message with its data payload.
func (s *FCMSender) Send(ctx context.Context, n domain.Notification) error {
	if n.Token == "" {
		return ErrNoToken
	}
	msg := &messaging.Message{
		Token: n.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
