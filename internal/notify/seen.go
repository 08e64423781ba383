package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore remembers, per viewer, the order IDs already shown.
type SeenStore interface {
	Seen(ctx context.Context, viewer string) (map[string]bool, error)
	Replace(ctx context.Context, viewer string, ids []string) error
}

type memoryEntry struct {
	ids       map[string]bool
	expiresAt time.Time
}

// MemorySeenStore is an in-process SeenStore with per-viewer expiry.
type MemorySeenStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	viewers map[string]memoryEntry
	now     func() time.Time
}

// NewMemorySeenStore forgets a viewer ttl after their last poll.
func NewMemorySeenStore(ttl time.Duration) *MemorySeenStore {
	return &MemorySeenStore{ttl: ttl, viewers: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemorySeenStore) Seen(_ context.Context, viewer string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.viewers[viewer]
	if !ok {
		return map[string]bool{}, nil
	}
	if s.ttl > 0 && !s.now().Before(e.expiresAt) {
		delete(s.viewers, viewer)
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(e.ids))
	for id := range e.ids {
		out[id] = true
	}
	return out, nil
}

func (s *MemorySeenStore) Replace(_ context.Context, viewer string, ids []string) error {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.mu.Lock()
	s.viewers[viewer] = memoryEntry{ids: set, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// RedisSeenStore keeps each viewer's IDs in a Redis set "seen:<viewer>".
type RedisSeenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSeenStore creates a Redis-backed store.
func NewRedisSeenStore(client *redis.Client, ttl time.Duration) *RedisSeenStore {
	return &RedisSeenStore{client: client, ttl: ttl}
}

func seenKey(viewer string) string { return "seen:" + viewer }

func (s *RedisSeenStore) Seen(ctx context.Context, viewer string) (map[string]bool, error) {
	ids, err := s.client.SMembers(ctx, seenKey(viewer)).Result()
	if err != nil {
		return nil, fmt.Errorf("load seen orders for %s: %w", viewer, err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (s *RedisSeenStore) Replace(ctx context.Context, viewer string, ids []string) error {
	key := seenKey(viewer)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			members := make([]interface{}, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, key, members...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store seen orders for %s: %w", viewer, err)
	}
	return nil
}
