package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plugincraft/forge/pkg/shared/types"
)

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, id)
}

func (s *Store) redisSet(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

// redisGet reports (nil, false, nil) on a clean cache miss (redis.Nil),
// distinct from (nil, false, err) on a transport error — only the latter
// should fall through a warning log before the in-memory fallback.
func (s *Store) redisGet(ctx context.Context, id string) (*types.Session, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var session types.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (s *Store) redisDel(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *Store) redisScanAll(ctx context.Context) ([]types.Session, error) {
	pattern := s.keyPrefix + ":*"
	var (
		sessions []types.Session
		cursor   uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			data, getErr := s.client.Get(ctx, key).Result()
			if getErr != nil {
				continue
			}
			var session types.Session
			if jsonErr := json.Unmarshal([]byte(data), &session); jsonErr == nil {
				sessions = append(sessions, session)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessions, nil
}
