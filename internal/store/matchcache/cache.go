// Package matchcache backs the "short TTL cache for post-completion read
// queries" spec §4.5 names: once a match leaves the Match Registry's live
// table, its final match record is kept here for
// completedMatchCacheTTLSeconds so a client's immediate getMatchView poll
// can still be answered. getRecentMatches does not read this cache; it
// always goes to the repository. Grounded on Byabasaija-playpool's
// saveGameToRedis/loadGameFromRedis pair (SetEx + Get over
// github.com/redis/go-redis/v9), adapted to the engine's own completed
// match record instead of a live game-state snapshot.
package matchcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache wraps a redis client. A nil client is accepted (as
// Byabasaija-playpool's gm.rdb == nil guard does) so the feature is
// optional: Put becomes a no-op and Get always reports a miss.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func key(matchID string) string {
	return "match:completed:" + matchID
}

// Put stores view as JSON for ttl. The registry passes the completed
// domain.Match itself, not a rendered MatchView.
func (c *Cache) Put(ctx context.Context, matchID string, view any) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		c.logger.Warn("matchcache: marshal failed", zap.String("matchId", matchID), zap.Error(err))
		return
	}
	if err := c.rdb.SetEx(ctx, key(matchID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("matchcache: set failed", zap.String("matchId", matchID), zap.Error(err))
	}
}

// Get returns the cached raw JSON for matchID and true, or nil, false on a
// miss or when no redis client is configured.
func (c *Cache) Get(ctx context.Context, matchID string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key(matchID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("matchcache: get failed", zap.String("matchId", matchID), zap.Error(err))
		return nil, false
	}
	return data, true
}
