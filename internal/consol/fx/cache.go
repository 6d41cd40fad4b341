package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "fx:quote"

type cachedQuote struct {
	Quote Quote `json:"quote"`
	Found bool  `json:"found"`
}

// CachedProvider memoises quote lookups in Redis. Misses are cached too so a missing pair does not
// hit the database on every line of a run.
type CachedProvider struct {
	next   QuoteProvider
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedProvider wraps next with a Redis cache. A nil client disables caching.
func NewCachedProvider(next QuoteProvider, client *redis.Client, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProvider{next: next, client: client, ttl: ttl}
}

// QuoteForDate implements QuoteProvider.
func (c *CachedProvider) QuoteForDate(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error) {
	if c == nil || c.next == nil {
		return Quote{}, false, ErrProviderRequired
	}
	pair = NormalizeCode(pair)
	if c.client == nil {
		return c.next.QuoteForDate(ctx, asOf, pair)
	}
	key := fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, pair, asOf.Format("2006-01-02"))
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cachedQuote
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			return entry.Quote, entry.Found, nil
		}
	case !errors.Is(err, redis.Nil):
		return c.next.QuoteForDate(ctx, asOf, pair)
	}
	// The lookup is shared by every waiter on key, so it must outlive the first caller.
	shared := context.WithoutCancel(ctx)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		quote, found, err := c.next.QuoteForDate(shared, asOf, pair)
		if err != nil {
			return nil, err
		}
		entry := cachedQuote{Quote: quote, Found: found}
		if payload, err := json.Marshal(entry); err == nil {
			_ = c.client.Set(shared, key, payload, c.ttl).Err()
		}
		return entry, nil
	})
	if err != nil {
		return Quote{}, false, err
	}
	entry := val.(cachedQuote)
	return entry.Quote, entry.Found, nil
}

// Flush drops every cached quote, used after rates are imported.
func (c *CachedProvider) Flush(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
