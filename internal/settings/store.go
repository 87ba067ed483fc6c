package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultStoreKey = "metasearch:engines:settings:v1"

// EngineState is the operator-controlled part of an engine's configuration.
type EngineState struct {
	Disabled bool   `json:"disabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

func (s EngineState) isZero() bool {
	return !s.Disabled && strings.TrimSpace(s.Endpoint) == ""
}

type Store interface {
	Load(ctx context.Context) (map[string]EngineState, error)
	Save(ctx context.Context, engine string, state EngineState) error
}

// RedisStore keeps engine settings in one Redis hash, one JSON field per engine.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultStoreKey
	}
	return &RedisStore{client: client, key: storeKey}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]EngineState, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	items, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make(map[string]EngineState, len(items))
	for engine, encoded := range items {
		name := strings.ToLower(strings.TrimSpace(engine))
		if name == "" || strings.TrimSpace(encoded) == "" {
			continue
		}
		var state EngineState
		if err := json.Unmarshal([]byte(encoded), &state); err != nil {
			continue
		}
		out[name] = state
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, engine string, state EngineState) error {
	if s == nil || s.client == nil {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		return nil
	}
	state.Endpoint = strings.TrimSpace(state.Endpoint)
	if state.isZero() {
		return s.client.HDel(ctx, s.key, name).Err()
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key, name, payload).Err()
}

// MemoryStore is the process-local Store used when no Redis is configured.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]EngineState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]EngineState)}
}

func (s *MemoryStore) Load(_ context.Context) (map[string]EngineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]EngineState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, engine string, state EngineState) error {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.isZero() {
		delete(s.states, name)
		return nil
	}
	s.states[name] = state
	return nil
}
