// Package sessionstore persists session snapshots for C7's supplemented
// ListSessions/CancelSession surface so a process restart doesn't lose
// visibility into in-flight or recently finished creations. It satisfies
// pkg/orchestrator.SessionStore against Redis, keyed with a TTL matching
// the session's own ExpiresAt, falling back to an in-memory map whenever
// Redis is unreachable or unconfigured.
package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	forgeerrors "github.com/plugincraft/forge/pkg/shared/errors"
	"github.com/plugincraft/forge/pkg/shared/logging"
	"github.com/plugincraft/forge/pkg/shared/types"
)

const defaultKeyPrefix = "forge:session"

// Store persists types.Session snapshots keyed by ID, satisfying
// pkg/orchestrator.SessionStore. It is safe for concurrent use.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logrus.Logger
	fallback  *memoryStore
}

// NewStore builds a Store. client may be nil, in which case every
// operation runs against the in-memory fallback only — useful for local
// development or a test run with no Redis available.
func NewStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
		logger:    logger,
		fallback:  newMemoryStore(ttl),
	}
}

func (s *Store) warn(operation, sessionID string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(logging.NewFields().
		Component("sessionstore").
		Operation(operation).
		SessionID(sessionID).
		Error(err).
		ToLogrus()).Warn("redis unavailable, falling back to memory")
}

// Save writes the session snapshot with a TTL derived from the session's
// own ExpiresAt (falling back to the store's configured ttl if that's
// already elapsed). A Redis failure degrades to the in-memory fallback
// rather than returning an error to the caller — losing session
// visibility across a restart is acceptable, failing the whole creation
// because the store is down is not.
func (s *Store) Save(ctx context.Context, session types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return forgeerrors.New(forgeerrors.KindInternal, "sessionstore.save", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}

	if s.client != nil {
		if err := s.redisSet(ctx, session.ID, data, ttl); err == nil {
			return nil
		} else {
			s.warn("save", session.ID, err)
		}
	}

	s.fallback.save(session, ttl)
	return nil
}

// Get retrieves a session by ID, preferring Redis and falling back to the
// in-memory store on a miss or a transport error. The bool return
// reports whether a session was found at all.
func (s *Store) Get(ctx context.Context, id string) (*types.Session, bool) {
	if s.client != nil {
		session, found, err := s.redisGet(ctx, id)
		if err != nil {
			s.warn("get", id, err)
		} else if found {
			return session, true
		}
	}
	return s.fallback.get(id)
}

// List returns every session still known to whichever backend answers,
// preferring a Redis SCAN over the key prefix and falling back to the
// in-memory snapshot on any scan error.
func (s *Store) List(ctx context.Context) []types.Session {
	if s.client == nil {
		return s.fallback.list()
	}

	sessions, err := s.redisScanAll(ctx)
	if err != nil {
		s.warn("list", "", err)
		return s.fallback.list()
	}
	return sessions
}

// Delete removes a session from both backends; used to let a cancelled
// session stop counting against ListSessions immediately rather than
// waiting out its TTL.
func (s *Store) Delete(ctx context.Context, id string) {
	if s.client != nil {
		if err := s.redisDel(ctx, id); err != nil {
			s.warn("delete", id, err)
		}
	}
	s.fallback.delete(id)
}
