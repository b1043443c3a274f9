package pushtoken

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:fcm"), srv
}

func TestRedisStoreSaveOverwritesAndLookup(t *testing.T) {
	s, srv := newRedisStore(t)
	ctx := context.Background()

	if _, ok, err := s.Lookup(ctx, "recruiter-1"); err != nil || ok {
		t.Fatalf("expected no token before save: ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, "recruiter-1", "tok-a"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "recruiter-1", "tok-b"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	token, ok, err := s.Lookup(ctx, "recruiter-1")
	if err != nil || !ok || token != "tok-b" {
		t.Fatalf("lookup = %q %v %v", token, ok, err)
	}
	if got, _ := srv.Get("test:fcm:recruiter-1"); got != "tok-b" {
		t.Fatalf("unexpected raw key value %q", got)
	}
	if srv.TTL("test:fcm:recruiter-1") != 0 {
		t.Fatalf("tokens must not expire")
	}
}

func TestRedisStoreRejectsBlankInput(t *testing.T) {
	s, _ := newRedisStore(t)
	if err := s.Save(context.Background(), " ", "tok"); !errors.Is(err, ErrEmptyRecipient) {
		t.Fatalf("expected ErrEmptyRecipient, got %v", err)
	}
	if err := s.Save(context.Background(), "r", " "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestRedisStoreLookupErrorSurfaces(t *testing.T) {
	s, srv := newRedisStore(t)
	srv.Close()
	if _, _, err := s.Lookup(context.Background(), "recruiter-1"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Save(ctx, "r1", "tok"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if token, ok, _ := s.Lookup(ctx, "r1"); !ok || token != "tok" {
		t.Fatalf("lookup = %q %v", token, ok)
	}
	boom := errors.New("boom")
	s.FailLookup("r1", boom)
	if _, _, err := s.Lookup(ctx, "r1"); !errors.Is(err, boom) {
		t.Fatalf("expected forced error, got %v", err)
	}
}
