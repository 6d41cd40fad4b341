package fx

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedProviderServesSecondLookupFromRedis(t *testing.T) {
	_, client := newTestRedis(t)
	next := &fakeProvider{quotes: map[string]Quote{"USDCHF": {Average: dec("1.3"), Spot: dec("1.36")}}}
	cached := NewCachedProvider(next, client, time.Minute)

	for i := 0; i < 2; i++ {
		quote, ok, err := cached.QuoteForDate(context.Background(), jan31, "usdchf")
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, quote.Spot.Equal(dec("1.36")))
	}
	require.Equal(t, 1, next.calls)
}

func TestCachedProviderCachesMisses(t *testing.T) {
	_, client := newTestRedis(t)
	next := &fakeProvider{}
	cached := NewCachedProvider(next, client, time.Minute)

	for i := 0; i < 3; i++ {
		_, ok, err := cached.QuoteForDate(context.Background(), jan31, "EURUSD")
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, 1, next.calls)
}

func TestCachedProviderExpiresAndFlushes(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &fakeProvider{quotes: map[string]Quote{"EURUSD": {Spot: dec("1.1")}}}
	cached := NewCachedProvider(next, client, time.Minute)
	ctx := context.Background()

	_, _, err := cached.QuoteForDate(ctx, jan31, "EURUSD")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, _, err = cached.QuoteForDate(ctx, jan31, "EURUSD")
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)

	require.NoError(t, cached.Flush(ctx))
	require.Empty(t, mr.Keys())
	_, _, err = cached.QuoteForDate(ctx, jan31, "EURUSD")
	require.NoError(t, err)
	require.Equal(t, 3, next.calls)
}

func TestCachedProviderWithoutClientDelegates(t *testing.T) {
	next := &fakeProvider{quotes: map[string]Quote{"EURUSD": {Spot: dec("1.1")}}}
	cached := NewCachedProvider(next, nil, 0)
	for i := 0; i < 2; i++ {
		_, ok, err := cached.QuoteForDate(context.Background(), jan31, "EURUSD")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 2, next.calls)
}

func TestCachedProviderNormalisesPairForLookupAndKey(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &fakeProvider{quotes: map[string]Quote{"USDCHF": {Average: dec("1.3"), Spot: dec("1.36")}}}
	cached := NewCachedProvider(next, client, time.Minute)
	ctx := context.Background()

	for _, pair := range []string{"usdchf", "USDCHF", " UsdChf "} {
		quote, ok, err := cached.QuoteForDate(ctx, jan31, pair)
		require.NoError(t, err)
		require.True(t, ok, pair)
		require.True(t, quote.Average.Equal(dec("1.3")))
	}
	require.Equal(t, 1, next.calls)
	require.Equal(t, []string{"fx:quote:USDCHF:2018-01-31"}, mr.Keys())
}

// cancellingProvider cancels the caller's context while the lookup is in flight.
type cancellingProvider struct {
	cancel context.CancelFunc
	seen   error
}

func (p *cancellingProvider) QuoteForDate(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error) {
	p.cancel()
	p.seen = ctx.Err()
	return Quote{Spot: dec("1.1")}, true, nil
}

func TestCachedProviderSharedLookupOutlivesCaller(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	next := &cancellingProvider{cancel: cancel}
	cached := NewCachedProvider(next, client, time.Minute)

	_, ok, err := cached.QuoteForDate(ctx, jan31, "EURUSD")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, next.seen)
	require.True(t, mr.Exists("fx:quote:EURUSD:2018-01-31"))
}
