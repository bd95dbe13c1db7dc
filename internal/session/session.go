// Package session keeps per-user conversation state between messages.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is where a user is inside a multi-step command.
type State struct {
	Step string            `json:"step"`
	Data map[string]string `json:"data,omitempty"`
}

// Set stores a value, allocating Data on first use.
func (s *State) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// Store loads and saves conversation state. Get returns a zero State when
// nothing is stored.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Put(ctx context.Context, userID int64, st State) error
	Clear(ctx context.Context, userID int64) error
}

// New picks the backend named by kind ("memory" or "redis").
func New(kind string, client *redis.Client, ttl time.Duration) (Store, error) {
	switch kind {
	case "memory":
		return NewMemory(ttl), nil
	case "redis", "":
		if client == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return NewRedisStore(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", kind)
	}
}

type memEntry struct {
	state   State
	expires time.Time
}

// Memory is a process-local store.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[int64]memEntry
	now   func() time.Time
}

// NewMemory creates a memory store. Entries expire after ttl; zero keeps them.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, items: make(map[int64]memEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[userID]
	if !ok {
		return State{}, nil
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		delete(m.items, userID)
		return State{}, nil
	}
	return e.state, nil
}

func (m *Memory) Put(_ context.Context, userID int64, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = memEntry{state: st, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

// RedisStore keeps state as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "careerquest:session:"}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// a corrupt entry restarts the conversation
		_ = r.client.Del(ctx, r.key(userID)).Err()
		return State{}, nil
	}
	return st, nil
}

func (r *RedisStore) Put(ctx context.Context, userID int64, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
