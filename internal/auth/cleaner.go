package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultTokenCleanupInterval = time.Hour

// StartTokenCleaner periodically deletes expired tokens until ctx is done.
func (s *Service) StartTokenCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.purgeExpiredTokens(ctx)
			if err != nil {
				logrus.WithError(err).Warn("cleanup expired tokens")
				continue
			}
			if n > 0 {
				logrus.WithField("count", n).Debug("expired tokens removed")
			}
		}
	}
}

// purgeExpiredTokens removes tokens past their expiry. Cached copies expire
// on their own TTL.
func (s *Service) purgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired tokens affected: %w", err)
	}
	return n, nil
}
