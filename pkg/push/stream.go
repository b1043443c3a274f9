package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Elias24978/safety-app/internal/util"
	"github.com/Elias24978/safety-app/pkg/domain"
)

const defaultStreamMaxLen = 10000

// StreamSender appends notifications to a Redis stream read by an external
// delivery worker through a consumer group.
type StreamSender struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// StreamConfig configures the outbox stream. MaxLen trims the stream
// approximately; zero means the default.
type StreamConfig struct {
	Stream string
	MaxLen int64
}

// NewStreamSender wraps an existing Redis client.
func NewStreamSender(client redis.Cmdable, cfg StreamConfig) (*StreamSender, error) {
	if isNilClient(client) {
		return nil, errors.New("push stream requires a redis client")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "safety:push"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &StreamSender{client: client, stream: stream, maxLen: maxLen}, nil
}

// Send adds n as one stream entry.
func (s *StreamSender) Send(ctx context.Context, n domain.Notification) error {
	if n.Token == "" {
		return ErrNoToken
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"message_id":   util.NewID(),
			"recipient_id": n.RecipientID,
			"payload":      string(body),
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// isNilClient also catches a nil *redis.Client stored in the interface.
func isNilClient(client redis.Cmdable) bool {
	if client == nil {
		return true
	}
	v := reflect.ValueOf(client)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
