package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDefinitionNotFound is returned when a workflow id is not stored.
var ErrDefinitionNotFound = errors.New("workflow definition not found")

// Store keeps named workflow definitions and returns them by id. The engine
// uses it to resolve sub-workflow invocations.
type Store interface {
	Save(ctx context.Context, def *Definition) error
	Get(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]*Definition, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process definition store.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]*Definition)}
}

// Save stores or replaces a definition.
func (s *MemoryStore) Save(ctx context.Context, def *Definition) error {
	if def.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

// Get returns a definition by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return def, nil
}

// List returns all stored definitions sorted by id.
func (s *MemoryStore) List(ctx context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a definition.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	delete(s.defs, id)
	return nil
}

// RedisStore keeps definitions in a Redis hash so several server instances
// can share one catalog.
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisStore creates a Redis-backed definition store.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "workscript"
	}
	return &RedisStore{
		client:  client,
		key:     keyPrefix + ":workflows",
		timeout: 5 * time.Second,
	}
}

// Save stores or replaces a definition.
func (s *RedisStore) Save(ctx context.Context, def *Definition) error {
	if def.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to serialize definition: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.HSet(ctx, s.key, def.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

// Get returns a definition by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Definition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.client.HGet(ctx, s.key, id).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode definition %s: %w", id, err)
	}
	return &def, nil
}

// List returns all stored definitions sorted by id.
func (s *RedisStore) List(ctx context.Context) ([]*Definition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	out := make([]*Definition, 0, len(all))
	for id, data := range all {
		var def Definition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("failed to decode definition %s: %w", id, err)
		}
		out = append(out, &def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a definition.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	removed, err := s.client.HDel(ctx, s.key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return nil
}
