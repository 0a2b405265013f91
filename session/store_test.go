package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/location"
	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
)

// testStore runs the behaviour every Store must share. expire moves the store's clock past d.
func testStore(t *testing.T, store Store, expire func(d time.Duration)) {
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	s := &Session{
		ID:            "a",
		Authenticated: true,
		Username:      "alice",
		Location: location.Status{
			State:       location.Granted,
			Coordinates: &models.Coordinates{Latitude: 19.4326, Longitude: -99.1332},
		},
	}
	if err := store.Save(ctx, s, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Username = "mutated"

	got, err := store.Load(ctx, "a")
	if err != nil || got.Username != "alice" || !got.Authenticated {
		t.Fatalf("expected stored copy, got %+v %v", got, err)
	}
	if got.Location.State != location.Granted || got.Location.Coordinates == nil || got.Location.Coordinates.Longitude != -99.1332 {
		t.Fatalf("location did not survive the store: %+v", got.Location)
	}

	store.Save(ctx, &Session{ID: "b"}, time.Minute)
	if n, err := store.Len(ctx); err != nil || n != 2 {
		t.Fatalf("expected 2 sessions, got %d %v", n, err)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	if err := store.Delete(ctx, "never-saved"); err != nil {
		t.Fatalf("deleting an unknown id must not fail: %v", err)
	}

	store.Save(ctx, &Session{ID: "short"}, 20*time.Millisecond)
	expire(50 * time.Millisecond)
	if _, err := store.Load(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	testStore(t, store, time.Sleep)
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, mr := newTestRedisStore(t)
	testStore(t, store, mr.FastForward)
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	if err := store.Save(ctx, &Session{ID: "abc"}, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("session:abc") {
		t.Fatalf("expected the session under its prefixed key, got %v", mr.Keys())
	}
	if ttl := mr.TTL("session:abc"); ttl != time.Hour {
		t.Fatalf("expected a one hour TTL, got %v", ttl)
	}

	mr.Set("unrelated", "x")
	if n, _ := store.Len(ctx); n != 1 {
		t.Fatalf("Len must only count session keys, got %d", n)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Set("session:bad", "{not json")

	_, err := store.Load(context.Background(), "bad")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}

func TestNewRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedisStore(ctx, "not a url"); err == nil {
		t.Fatalf("expected a parse error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisStore(ctx, "redis://"+addr); err == nil {
		t.Fatalf("expected a connection error")
	}
}
