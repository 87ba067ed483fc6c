package settings

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Runs against a real Redis when TEST_REDIS_ADDR is set.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "metasearch:test:engines"
	defer client.Del(ctx, key)

	store := NewRedisStore(client, key)
	if err := store.Save(ctx, "Google", EngineState{Disabled: true, Endpoint: " http://searx "}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	states, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := states["google"]; !got.Disabled || got.Endpoint != "http://searx" {
		t.Fatalf("unexpected state %+v", got)
	}

	if err := store.Save(ctx, "google", EngineState{}); err != nil {
		t.Fatalf("Save zero: %v", err)
	}
	states, _ = store.Load(ctx)
	if len(states) != 0 {
		t.Fatalf("expected zero state to delete the field, got %+v", states)
	}
}

func TestNewRedisStoreNilClient(t *testing.T) {
	if NewRedisStore(nil, "") != nil {
		t.Fatalf("expected nil store for nil client")
	}
}
