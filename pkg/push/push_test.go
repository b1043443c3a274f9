package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Elias24978/safety-app/pkg/domain"
)

type fakeMessaging struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeMessaging) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", nil
}

func testNotification() domain.Notification {
	return domain.Notification{
		RecipientID: "recruiter-1",
		Token:       "device-token",
		Title:       "Nuevas postulaciones",
		Body:        "Tienes 2 nueva(s) postulación(es).",
		Data:        map[string]string{"type": "applications_digest", "count": "2"},
		CreatedAt:   time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC),
	}
}

func TestFCMSenderBuildsMessage(t *testing.T) {
	client := &fakeMessaging{}
	s := NewFCMSenderWithClient(client)
	if err := s.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(client.sent))
	}
	m := client.sent[0]
	if m.Token != "device-token" || m.Notification.Title != "Nuevas postulaciones" || m.Data["count"] != "2" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestFCMSenderWrapsErrors(t *testing.T) {
	boom := errors.New("registration-token-not-registered")
	s := NewFCMSenderWithClient(&fakeMessaging{err: boom})
	if err := s.Send(context.Background(), testNotification()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	n := testNotification()
	n.Token = ""
	if err := s.Send(context.Background(), n); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPSenderPublishesPersistentJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewAMQPSenderWithPublisher(pub, "notifications", "")
	if err := s.Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.exchange != "notifications" || pub.key != "push" {
		t.Fatalf("unexpected routing %q %q", pub.exchange, pub.key)
	}
	if pub.msg.DeliveryMode != amqp.Persistent || pub.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing: %+v", pub.msg)
	}
	var got domain.Notification
	if err := json.Unmarshal(pub.msg.Body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.RecipientID != "recruiter-1" || got.Token != "device-token" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), testNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
}
