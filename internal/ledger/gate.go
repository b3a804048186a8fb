package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightpath/email-tracking/internal/pkg/logger"
)

// PreferenceGate is a Redis read-through cache over the store's opt-out
// lookup. The send path consults it on every message, so the hot lookup is
// cached; upserts invalidate. Redis being down degrades to the database,
// never to a wrong answer.
type PreferenceGate struct {
	store *Store
	rdb   *redis.Client
	ttl   time.Duration
}

// NewPreferenceGate creates a gate. rdb may be nil to disable caching.
func NewPreferenceGate(store *Store, rdb *redis.Client, ttl time.Duration) *PreferenceGate {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PreferenceGate{store: store, rdb: rdb, ttl: ttl}
}

func optOutKey(email, emailType string) string {
	return "optout:" + emailType + ":" + strings.ToLower(strings.TrimSpace(email))
}

// IsOptedOut reports whether sends of emailType to email are suppressed.
func (g *PreferenceGate) IsOptedOut(ctx context.Context, email, emailType string) (bool, error) {
	key := optOutKey(email, emailType)

	if g.rdb != nil {
		val, err := g.rdb.Get(ctx, key).Result()
		if err == nil {
			return val == "1", nil
		}
		if err != redis.Nil {
			logger.Warn("preference cache read failed, falling back to store", "error", err)
		}
	}

	optedOut, err := g.store.IsOptedOut(ctx, email, emailType)
	if err != nil {
		return false, err
	}

	if g.rdb != nil {
		val := "0"
		if optedOut {
			val = "1"
		}
		if err := g.rdb.Set(ctx, key, val, g.ttl).Err(); err != nil {
			logger.Warn("preference cache write failed", "error", err)
		}
	}
	return optedOut, nil
}

// SetPreference upserts a preference and invalidates cached lookups.
// A global "*" change invalidates every cached type for that recipient,
// since each cached answer folded the global row in.
func (g *PreferenceGate) SetPreference(ctx context.Context, email, emailType string, optOut bool) (*Preference, error) {
	pref, err := g.store.SetPreference(ctx, email, emailType, optOut)
	if err != nil {
		return nil, err
	}

	if g.rdb != nil {
		if emailType == GlobalEmailType {
			g.invalidateAll(ctx, pref.Email)
		} else if err := g.rdb.Del(ctx, optOutKey(pref.Email, emailType)).Err(); err != nil {
			logger.Warn("preference cache invalidation failed", "error", err)
		}
	}
	return pref, nil
}

func (g *PreferenceGate) invalidateAll(ctx context.Context, email string) {
	var cursor uint64
	pattern := "optout:*:" + email
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			logger.Warn("preference cache scan failed", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := g.rdb.Del(ctx, keys...).Err(); err != nil {
				logger.Warn("preference cache invalidation failed", "error", err)
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
