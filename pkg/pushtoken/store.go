// Package pushtoken persists the device push token of each recipient.
// One token per recipient; a save overwrites the previous one.
package pushtoken

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrEmptyRecipient is returned when the recipient id is blank.
	ErrEmptyRecipient = errors.New("pushtoken: recipient id required")
	// ErrEmptyToken is returned when saving a blank token.
	ErrEmptyToken = errors.New("pushtoken: token required")
)

// Store reads and writes push tokens.
type Store interface {
	// Lookup returns the recipient's token. ok is false when none is registered.
	Lookup(ctx context.Context, recipientID string) (token string, ok bool, err error)
	Save(ctx context.Context, recipientID, token string) error
}

func normalize(recipientID, token string) (string, string, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return "", "", ErrEmptyRecipient
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "", ErrEmptyToken
	}
	return recipientID, token, nil
}

// MemoryStore keeps tokens in process, for local development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
	errs   map[string]error
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string), errs: make(map[string]error)}
}

// FailLookup makes Lookup for recipientID return err.
func (s *MemoryStore) FailLookup(recipientID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[recipientID] = err
}

func (s *MemoryStore) Lookup(_ context.Context, recipientID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errs[recipientID]; err != nil {
		return "", false, err
	}
	token, ok := s.tokens[strings.TrimSpace(recipientID)]
	return token, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, recipientID, token string) error {
	recipientID, token, err := normalize(recipientID, token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[recipientID] = token
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*GormStore)(nil)
)
