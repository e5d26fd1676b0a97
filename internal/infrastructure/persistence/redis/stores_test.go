package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
)

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheWithClient(client), mr
}

func TestRankingCache(t *testing.T) {
	cache, mr := setupCache(t)
	rc := NewRankingCache(cache)
	ctx := context.Background()

	_, ok, err := rc.GetRanking(ctx, "ranking:v1:founder-1:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	ranked := []matching.ScoredCandidate{
		{
			Profile: matching.Profile{ID: "cofounder-1", Role: matching.RoleCoFounder, Skills: []string{"go"}},
			Score:   87,
			Reasons: []string{"Complementary skills"},
		},
		{
			Profile: matching.Profile{ID: "mentor-1", Role: matching.RoleMentor},
			Score:   41,
		},
	}
	require.NoError(t, rc.SetRanking(ctx, "ranking:v1:founder-1:abc", ranked, time.Minute))

	got, ok, err := rc.GetRanking(ctx, "ranking:v1:founder-1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "cofounder-1", got[0].ID())
	assert.Equal(t, matching.MatchScore(87), got[0].Score)
	assert.Equal(t, []string{"Complementary skills"}, got[0].Reasons)

	mr.FastForward(2 * time.Minute)
	_, ok, err = rc.GetRanking(ctx, "ranking:v1:founder-1:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRankingCacheCorruptEntry(t *testing.T) {
	cache, mr := setupCache(t)
	require.NoError(t, mr.Set("ranking:broken", "{not json"))

	_, ok, err := NewRankingCache(cache).GetRanking(context.Background(), "ranking:broken")
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCacheSerialization)
	assert.True(t, shared.IsValidation(err))
}

func TestIntentStore(t *testing.T) {
	cache, mr := setupCache(t)
	store := NewIntentStore(cache, time.Hour)
	ctx := context.Background()

	ok, err := store.HasIntent(ctx, "cofounder-1", "founder-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.RecordIntent(ctx, "cofounder-1", "founder-1"))
	require.NoError(t, store.RecordIntent(ctx, "cofounder-1", "founder-1"))

	ok, err = store.HasIntent(ctx, "cofounder-1", "founder-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasIntent(ctx, "founder-1", "cofounder-1")
	require.NoError(t, err)
	assert.False(t, ok, "intent is one-directional")

	members, err := mr.SMembers(IntentKey("cofounder-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"founder-1"}, members)
	assert.Equal(t, time.Hour, mr.TTL(IntentKey("cofounder-1")))
}

func TestIntentPolicyOverRedis(t *testing.T) {
	cache, _ := setupCache(t)
	policy := matching.NewIntentPolicy(NewIntentStore(cache, 0))
	ctx := context.Background()

	founder := matching.Profile{ID: "founder-1", Role: matching.RoleFounder}
	cofounder := matching.Profile{ID: "cofounder-1", Role: matching.RoleCoFounder}

	mutual, err := policy.IsMutual(ctx, "founder-1", cofounder)
	require.NoError(t, err)
	assert.False(t, mutual)

	mutual, err = policy.IsMutual(ctx, "cofounder-1", founder)
	require.NoError(t, err)
	assert.True(t, mutual)
}

func TestExplanationStore(t *testing.T) {
	cache, mr := setupCache(t)
	store := NewExplanationStore(cache, 30*time.Minute)
	ctx := context.Background()

	_, ok, err := store.GetExplanation(ctx, "founder-1", "cofounder-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveExplanation(ctx, "founder-1", "cofounder-1", "Both of you ship Go."))

	text, ok, err := store.GetExplanation(ctx, "founder-1", "cofounder-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Both of you ship Go.", text)
	assert.Equal(t, 30*time.Minute, mr.TTL(ExplanationKey("founder-1", "cofounder-1")))
}

func TestStoreErrorsAreRetryable(t *testing.T) {
	cache, mr := setupCache(t)
	mr.Close()

	err := NewExplanationStore(cache, 0).SaveExplanation(context.Background(), "a", "b", "text")
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
}

func TestOptions(t *testing.T) {
	opts, err := Options(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 20})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)

	opts, err = Options(config.RedisConfig{Host: "localhost", Port: 6379, DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)

	_, err = Options(config.RedisConfig{URL: "http://nope"})
	assert.ErrorIs(t, err, ErrCacheConnection)
}
