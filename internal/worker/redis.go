package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopchat/internal/models"
	"shopchat/internal/redis"
)

const (
	redisInvalidateChannel = "worker:invalidate"
	redisStateTTL          = 30 * time.Minute
)

type invalidateMessage struct {
	Origin    string `json:"origin"`
	SessionID int64  `json:"session_id"`
}

type stateRedis struct {
	client *redis.Client
}

func newStateCache(client *redis.Client) *stateRedis {
	if !client.Enabled() {
		return nil
	}
	return &stateRedis{client: client}
}

func sessionKey(sessionID int64) string {
	return fmt.Sprintf("worker:session:%d", sessionID)
}

// startListener subscribes to invalidations until the returned stop func is
// called.
func (r *stateRedis) startListener(handler func(invalidateMessage)) (func(), error) {
	if r == nil || handler == nil {
		return func() {}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, closeSub, err := r.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		for msg := range ch {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				workerLog.WithError(err).Warn("decode session invalidation")
				continue
			}
			handler(inv)
		}
	}()
	return func() {
		cancel()
		_ = closeSub()
	}, nil
}

func (r *stateRedis) publishInvalidation(msg invalidateMessage) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		workerLog.WithError(err).Warn("encode session invalidation")
		return
	}
	if err := r.client.Publish(context.Background(), redisInvalidateChannel, payload); err != nil {
		workerLog.WithError(err).Warn("publish session invalidation")
	}
}

func (r *stateRedis) cacheSession(session *models.ChatSession) {
	if r == nil || session == nil || session.ID <= 0 {
		return
	}
	if err := r.client.SetJSON(context.Background(), sessionKey(session.ID), session, redisStateTTL); err != nil {
		workerLog.WithError(err).WithField("session_id", session.ID).Warn("cache session snapshot")
	}
}

func (r *stateRedis) loadSession(sessionID int64) (*models.ChatSession, bool) {
	if r == nil || sessionID <= 0 {
		return nil, false
	}
	var session models.ChatSession
	if err := r.client.GetJSON(context.Background(), sessionKey(sessionID), &session); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			workerLog.WithError(err).WithField("session_id", sessionID).Warn("load session snapshot")
		}
		return nil, false
	}
	if session.ID != sessionID {
		return nil, false
	}
	if session.Messages == nil {
		session.Messages = make([]*models.Message, 0)
	}
	return &session, true
}

func (r *stateRedis) invalidateSession(sessionID int64) {
	if r == nil || sessionID <= 0 {
		return
	}
	if err := r.client.Del(context.Background(), sessionKey(sessionID)); err != nil {
		workerLog.WithError(err).WithField("session_id", sessionID).Warn("drop session snapshot")
	}
}
