package worker

import (
	"context"

	"github.com/google/uuid"

	"shopchat/internal/models"
	"shopchat/internal/redis"
)

// BackingStore is the durable session store behind the cache.
type BackingStore interface {
	LoadSession(ctx context.Context, sessionID int64) (*models.ChatSession, error)
	AppendMessages(ctx context.Context, sessionID int64, msgs []*models.Message) error
	SetLastIntent(ctx context.Context, sessionID int64, intent models.Intent) error
	CommitTurn(ctx context.Context, sessionID int64, msgs []*models.Message, intent models.Intent) error
}

// CachedStore keeps sessions in memory and, when redis is enabled, in a
// shared snapshot. Committed turns are written through; other writes drop
// the cached copy. Other instances are told to drop theirs over pub/sub.
type CachedStore struct {
	backing BackingStore
	local   *sessionState
	rdb     *stateRedis
	origin  string
	stop    func()
}

func NewCachedStore(backing BackingStore, client *redis.Client) *CachedStore {
	s := &CachedStore{
		backing: backing,
		local:   newSessionState(),
		rdb:     newStateCache(client),
		origin:  uuid.NewString(),
		stop:    func() {},
	}
	stop, err := s.rdb.startListener(s.onInvalidate)
	if err != nil {
		workerLog.WithError(err).Warn("session invalidation listener disabled")
	} else {
		s.stop = stop
	}
	return s
}

func (s *CachedStore) LoadSession(ctx context.Context, sessionID int64) (*models.ChatSession, error) {
	if se := s.local.getSession(sessionID); se != nil {
		return se, nil
	}
	if se, ok := s.rdb.loadSession(sessionID); ok {
		s.local.setSession(se)
		return se, nil
	}
	se, err := s.backing.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.local.setSession(se)
	s.rdb.cacheSession(se)
	return se, nil
}

func (s *CachedStore) AppendMessages(ctx context.Context, sessionID int64, msgs []*models.Message) error {
	if err := s.backing.AppendMessages(ctx, sessionID, msgs); err != nil {
		return err
	}
	s.Invalidate(sessionID)
	return nil
}

func (s *CachedStore) SetLastIntent(ctx context.Context, sessionID int64, intent models.Intent) error {
	if err := s.backing.SetLastIntent(ctx, sessionID, intent); err != nil {
		return err
	}
	s.Invalidate(sessionID)
	return nil
}

func (s *CachedStore) CommitTurn(ctx context.Context, sessionID int64, msgs []*models.Message, intent models.Intent) error {
	if err := s.backing.CommitTurn(ctx, sessionID, msgs, intent); err != nil {
		return err
	}
	updated := s.local.applyTurn(sessionID, msgs, intent)
	if updated == nil {
		s.Invalidate(sessionID)
		return nil
	}
	s.rdb.cacheSession(updated)
	s.rdb.publishInvalidation(invalidateMessage{Origin: s.origin, SessionID: sessionID})
	return nil
}

// Invalidate drops every cached copy of the session.
func (s *CachedStore) Invalidate(sessionID int64) {
	s.local.purgeCache(sessionID)
	s.rdb.invalidateSession(sessionID)
	s.rdb.publishInvalidation(invalidateMessage{Origin: s.origin, SessionID: sessionID})
}

func (s *CachedStore) Close() {
	s.stop()
	s.local.reset()
}

func (s *CachedStore) onInvalidate(msg invalidateMessage) {
	if msg.Origin == s.origin {
		return
	}
	debugLog("[cache] session %d invalidated by %s", msg.SessionID, msg.Origin)
	s.local.purgeCache(msg.SessionID)
}
