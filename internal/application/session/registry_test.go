package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
)

func ranked(ids ...string) []matching.ScoredCandidate {
	out := make([]matching.ScoredCandidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, matching.ScoredCandidate{
			Profile: matching.Profile{ID: id, Role: matching.RoleCoFounder},
			Score:   matching.MatchScore(90 - i),
			Reasons: []string{"Open to collaboration"},
		})
	}
	return out
}

func profile(id string) matching.Profile {
	return matching.Profile{ID: id, Role: matching.RoleFounder}
}

type intentSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (s *intentSet) RecordIntent(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	s.seen[from+">"+to] = true
	return nil
}

func (s *intentSet) HasIntent(_ context.Context, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[from+">"+to], nil
}

func TestRegistry_OpenAndGet(t *testing.T) {
	seq := 0
	r := NewRegistry(
		WithPolicy(matching.AlwaysMutual),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("s-%d", seq) }),
	)

	_, err := r.Get("alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	s := r.Open(profile("alice"), ranked("bob", "carol"))
	assert.Equal(t, "s-1", s.ID)
	assert.Equal(t, 2, s.Queue.Len())

	got, err := r.Get("alice")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConnectionsSurviveNewSession(t *testing.T) {
	r := NewRegistry(WithPolicy(matching.AlwaysMutual))

	first := r.Open(profile("alice"), ranked("bob"))
	res, err := first.Queue.Accept(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, res.Connected)

	second := r.Open(profile("alice"), ranked("bob", "carol"))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 0, second.Queue.Cursor())

	res, err = second.Queue.Accept(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, res.Connected)
	assert.True(t, res.AlreadyConnected)
	assert.Equal(t, []string{"bob"}, r.Connections("alice").IDs())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()
	r.Open(profile("alice"), nil)

	assert.True(t, r.Close("alice"))
	assert.False(t, r.Close("alice"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Connections("alice").Len())
}

func TestRegistry_ConcurrentRequesters(t *testing.T) {
	r := NewRegistry(WithPolicy(matching.NeverMutual))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			s := r.Open(profile(id), ranked("x", "y"))
			_, _ = s.Queue.Reject(context.Background(), "x")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, r.Len())
	s, err := r.Get("req-7")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Queue.Cursor())
}

func TestRegistry_SweepIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(WithPolicy(matching.AlwaysMutual), WithClock(func() time.Time { return now }))

	old := r.Open(profile("old"), ranked("bob"))
	_, err := old.Queue.Accept(context.Background(), "bob")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	r.Open(profile("fresh"), ranked("carol"))

	assert.Equal(t, 0, r.SweepIdle(0))
	assert.Equal(t, 1, r.SweepIdle(time.Hour))
	assert.Equal(t, 1, r.Len())

	_, err = r.Get("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, r.Connections("old").Contains("bob"))
}

func TestRegistry_MutualAcceptConnectsBothSides(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(WithPolicy(matching.NewIntentPolicy(&intentSet{})))

	alice := r.Open(profile("alice"), ranked("bob"))
	bob := r.Open(profile("bob"), ranked("alice"))

	res, err := alice.Queue.Accept(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, res.Connected)
	assert.Zero(t, r.Connections("alice").Len())
	assert.Zero(t, r.Connections("bob").Len())

	res, err = bob.Queue.Accept(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Connected)

	assert.Equal(t, []string{"alice"}, r.Connections("bob").IDs())
	assert.Equal(t, []string{"bob"}, r.Connections("alice").IDs())
	assert.Equal(t, matching.RoleFounder, r.Connections("alice").List()[0].Role)
}

func TestRegistry_SweepIdleKeepsActiveSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return now }))

	r.Open(profile("busy"), ranked("bob"))
	r.Open(profile("quiet"), ranked("carol"))

	now = now.Add(50 * time.Minute)
	_, err := r.Get("busy")
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	assert.Equal(t, 1, r.SweepIdle(time.Hour))

	_, err = r.Get("busy")
	require.NoError(t, err)
	_, err = r.Get("quiet")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	now = now.Add(61 * time.Minute)
	assert.Equal(t, 1, r.SweepIdle(time.Hour))
	assert.Zero(t, r.Len())
}
